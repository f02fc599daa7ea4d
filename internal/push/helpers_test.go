package push_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/push"
)

const testOrigin = "https://print.example.com"

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newAgent(t *testing.T, tray push.Tray, windows push.Windows) *push.Agent {
	t.Helper()
	var seq atomic.Int64
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	agent, err := push.NewAgent(push.AgentConfig{
		Tray:    tray,
		Windows: windows,
		Origin:  testOrigin + "/",
		Logger:  zerolog.Nop(),
		NewID:   func() string { return fmt.Sprintf("n%d", seq.Add(1)) },
		Now:     func() time.Time { return base.Add(time.Duration(seq.Load()) * time.Second) },
	})
	require.NoError(t, err)
	return agent
}

type failingTray struct{ push.Tray }

func (failingTray) Show(context.Context, push.Notification) error {
	return errors.New("tray unavailable")
}
