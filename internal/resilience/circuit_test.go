package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/resilience"
)

func TestBreakerTransitions(t *testing.T) {
	breaker := resilience.NewBreaker(2, 0.5, 50*time.Millisecond)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")
	require.Equal(t, resilience.Open, breaker.State())

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "breaker should admit a probe after cool off")
	require.Equal(t, resilience.HalfOpen, breaker.State())
	require.False(t, breaker.Allow(ctx), "only one probe while half-open")
	breaker.Report(ctx, true)
	require.True(t, breaker.Allow(ctx), "breaker should close after successful probe")
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	breaker := resilience.NewBreaker(1, 0.5, 20*time.Millisecond)
	ctx := context.Background()

	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.Eventually(t, func() bool { return breaker.Allow(ctx) }, time.Second, 5*time.Millisecond)
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-(base*2/5))
	require.LessOrEqual(t, d, base*2+(base*2/5))
}
