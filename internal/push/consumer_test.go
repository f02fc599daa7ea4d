package push_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/push"
	"github.com/noah-isme/printstore/internal/queue"
)

type slowTray struct {
	push.Tray
	delay time.Duration
	shown atomic.Int32
}

func (s *slowTray) Show(ctx context.Context, n push.Notification) error {
	time.Sleep(s.delay)
	s.shown.Add(1)
	return s.Tray.Show(ctx, n)
}

func TestConsumerReportsDisplayAfterCancel(t *testing.T) {
	tray := &slowTray{Tray: push.RedisTray{R: newRedis(t), Prefix: "cs"}, delay: 100 * time.Millisecond}
	host := push.NewHost(zerolog.Nop())
	consumer := push.Consumer{Agent: newAgent(t, tray, push.NewWindowSet(nil)), Host: host}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := consumer.Handle(ctx, queue.Task{Kind: push.QueueKind, Payload: []byte(`{"title":"late"}`)})
	require.NoError(t, err)
	require.Equal(t, int32(1), tray.shown.Load())

	items, err := tray.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "late", items[0].Title)
}

func TestConsumerReturnsDisplayFailure(t *testing.T) {
	host := push.NewHost(zerolog.Nop())
	consumer := push.Consumer{Agent: newAgent(t, failingTray{}, push.NewWindowSet(nil)), Host: host}
	err := consumer.Handle(context.Background(), queue.Task{Kind: push.QueueKind, Payload: []byte(`{}`)})
	require.Error(t, err)
}

func TestConsumerRefusedByDrainedHost(t *testing.T) {
	host := push.NewHost(zerolog.Nop())
	require.NoError(t, host.Drain(context.Background()))
	consumer := push.Consumer{Agent: newAgent(t, push.RedisTray{R: newRedis(t)}, push.NewWindowSet(nil)), Host: host}
	err := consumer.Handle(context.Background(), queue.Task{Kind: push.QueueKind, Payload: []byte(`{}`)})
	require.ErrorIs(t, err, push.ErrHostClosed)
}
