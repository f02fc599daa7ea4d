package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/queue"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEnqueueDequeue(t *testing.T) {
	client := newRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "test"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ok, err := enq.Enqueue(ctx, queue.Task{Kind: "push-notification", Payload: []byte("payload"), IdempotencyKey: "1"})
	require.NoError(t, err)
	require.True(t, ok)

	processed := make(chan queue.Task, 1)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "test",
		Kind:              "push-notification",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         10 * time.Millisecond,
		Handler: func(ctx context.Context, task queue.Task) error {
			processed <- task
			cancel()
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	select {
	case task := <-processed:
		require.Equal(t, []byte("payload"), task.Payload)
		require.Equal(t, 1, task.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for payload")
	}
	<-done

	processing, err := client.ZCard(context.Background(), "test:push-notification:processing").Result()
	require.NoError(t, err)
	require.Zero(t, processing)
}

func TestEnqueueDeduplicates(t *testing.T) {
	client := newRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "dedup", DedupTTL: time.Minute}
	ctx := context.Background()

	ok, err := enq.Enqueue(ctx, queue.Task{Kind: "push-notification", Payload: []byte("a"), IdempotencyKey: "same"})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = enq.Enqueue(ctx, queue.Task{Kind: "push-notification", Payload: []byte("b"), IdempotencyKey: "same"})
	require.NoError(t, err)
	require.False(t, ok)

	depth, err := client.ZCard(ctx, "dedup:queue:push-notification").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestEnqueueRejectsBadKind(t *testing.T) {
	client := newRedis(t)
	enq := queue.Enqueuer{R: client}
	_, err := enq.Enqueue(context.Background(), queue.Task{Kind: "Has Spaces"})
	require.Error(t, err)
	_, err = queue.Enqueuer{}.Enqueue(context.Background(), queue.Task{Kind: "ok"})
	require.Error(t, err)
}

func TestWorkerRetries(t *testing.T) {
	client := newRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "retry"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := enq.Enqueue(ctx, queue.Task{Kind: "demo", Payload: []byte("retry"), IdempotencyKey: "r1", MaxAttempts: 3})
	require.NoError(t, err)

	var attempts atomic.Int32
	worker := queue.Worker{
		R:                 client,
		Prefix:            "retry",
		Kind:              "demo",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		RetryJitter:       0.1,
		Handler: func(ctx context.Context, task queue.Task) error {
			if attempts.Add(1) == 1 {
				return errors.New("fail first")
			}
			cancel()
			return nil
		},
	}

	go func() { _ = worker.Run(ctx) }()

	select {
	case <-ctx.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not retry in time")
	}

	require.GreaterOrEqual(t, attempts.Load(), int32(2))
}
