package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/printstore/internal/resilience"
)

const defaultMaxAttempts = 10

// Task represents a message travelling through the queue.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Delay          time.Duration
	// Attempt is set on delivery and starts at 1.
	Attempt int
}

// Enqueuer publishes tasks to Redis backed queues.
type Enqueuer struct {
	R           redis.UniversalClient
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue inserts the task into the queue. If an idempotency key is supplied the
// task is only enqueued once within the configured deduplication window.
// It reports whether the task was accepted.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) (bool, error) {
	if e.R == nil {
		return false, errors.New("queue: redis client not configured")
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return false, errors.New("queue: task kind is required")
	}
	msg := taskMessage{
		ID:          uuid.NewString(),
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		MaxAttempts: t.MaxAttempts,
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = e.MaxAttempts
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = defaultMaxAttempts
	}
	msg.AvailableAt = time.Now().Add(t.Delay).UnixNano()

	keys := keyspace{prefix: e.Prefix, kind: kind}
	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.R.SetNX(ctx, keys.dedup(msg.Key), "1", ttl).Result()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	if err := e.R.ZAdd(ctx, keys.queue(), redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err(); err != nil {
		return false, err
	}
	observeDepth(ctx, e.R, keys)
	return true, nil
}

func sanitizeKind(kind string) string {
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		if c >= 'a' && c <= 'z' {
			continue
		}
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '-' || c == '_' || c == ':' {
			continue
		}
		return ""
	}
	return kind
}

// Worker consumes tasks for a specific kind.
type Worker struct {
	R                 redis.UniversalClient
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	// SoftDeadline bounds a single handler call. Zero leaves it unbounded.
	SoftDeadline time.Duration
	Handler      func(context.Context, Task) error
	RetryBase    time.Duration
	RetryJitter  float64
	Logger       *zerolog.Logger
}

// Run starts processing tasks until the context is cancelled. Active tasks are
// tracked in a processing set to enable redelivery when workers crash. Run
// waits for in-flight handlers before returning.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	kind := sanitizeKind(w.Kind)
	if kind == "" {
		return errors.New("queue: worker kind is required")
	}
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}
	keys := keyspace{prefix: w.Prefix, kind: kind}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	sweep := visibility / 4
	if sweep < 10*time.Millisecond {
		sweep = 10 * time.Millisecond
	}
	requeueTicker := time.NewTicker(sweep)
	defer requeueTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-requeueTicker.C:
			if err := w.requeueExpired(ctx, keys); err != nil && ctx.Err() == nil {
				return err
			}
			continue
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-sem
			return nil
		}

		raw, msg, ok, err := w.claim(ctx, keys, visibility)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !ok {
			<-sem
			if !sleepCtx(ctx, 50*time.Millisecond) {
				return nil
			}
			continue
		}

		wg.Add(1)
		go func(raw string, m taskMessage) {
			defer func() { <-sem }()
			defer wg.Done()
			w.process(ctx, keys, raw, m, retryBase)
		}(raw, msg)
	}
}

// claim pops the next due message and records it in the processing set.
func (w Worker) claim(ctx context.Context, keys keyspace, visibility time.Duration) (string, taskMessage, bool, error) {
	now := time.Now().UnixNano()
	due, err := w.R.ZRangeByScore(ctx, keys.queue(), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now), Count: 1}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", taskMessage{}, false, err
	}
	if len(due) == 0 {
		return "", taskMessage{}, false, nil
	}
	member := due[0]
	removed, err := w.R.ZRem(ctx, keys.queue(), member).Result()
	if err != nil {
		return "", taskMessage{}, false, err
	}
	if removed == 0 {
		// another worker claimed it first
		return "", taskMessage{}, false, nil
	}
	msg, err := decodeMessage(member)
	if err != nil {
		w.logger().Warn().Err(err).Str("kind", keys.kind).Msg("queue: dropping undecodable message")
		return "", taskMessage{}, false, nil
	}
	msg.Attempt++
	encoded, err := json.Marshal(msg)
	if err != nil {
		return "", taskMessage{}, false, err
	}
	deadline := time.Now().Add(visibility).UnixNano()
	if err := w.R.ZAdd(ctx, keys.processing(), redis.Z{Score: float64(deadline), Member: string(encoded)}).Err(); err != nil {
		return "", taskMessage{}, false, err
	}
	return string(encoded), msg, true, nil
}

func (w Worker) process(ctx context.Context, keys keyspace, raw string, msg taskMessage, retryBase time.Duration) {
	jobCtx, cancel := context.WithCancel(ctx)
	if w.SoftDeadline > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.SoftDeadline)
	}
	defer cancel()

	task := Task{
		Kind:           keys.kind,
		Payload:        msg.Payload,
		IdempotencyKey: msg.Key,
		MaxAttempts:    msg.MaxAttempts,
		Attempt:        msg.Attempt,
	}
	err := w.Handler(jobCtx, task)

	// Bookkeeping must finish even when the worker is shutting down.
	bookCtx, bookCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer bookCancel()
	if err != nil {
		w.handleFailure(bookCtx, keys, raw, msg, retryBase, err)
		return
	}
	w.ack(bookCtx, keys, raw, msg)
}

func (w Worker) handleFailure(ctx context.Context, keys keyspace, raw string, msg taskMessage, base time.Duration, cause error) {
	_ = w.R.ZRem(ctx, keys.processing(), raw).Err()
	msg.LastError = cause.Error()
	if msg.MaxAttempts > 0 && msg.Attempt >= msg.MaxAttempts {
		failedAt := time.Now().UTC()
		msg.FailedAt = &failedAt
		encoded, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := w.R.LPush(ctx, keys.dlq(), encoded).Err(); err != nil {
			w.logger().Error().Err(err).Str("kind", keys.kind).Msg("queue: dead-letter push failed")
			return
		}
		if msg.Key != "" {
			_ = w.R.Del(ctx, keys.dedup(msg.Key)).Err()
		}
		w.logger().Error().Err(cause).Str("kind", keys.kind).Str("task_id", msg.ID).Int("attempt", msg.Attempt).Msg("queue: task dead-lettered")
		observeProcessed(keys.kind, "dead")
		observeDLQ(ctx, w.R, keys)
		return
	}
	delay := resilience.Backoff(base, msg.Attempt, w.RetryJitter)
	msg.AvailableAt = time.Now().Add(delay).UnixNano()
	encoded, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, keys.queue(), redis.Z{Score: float64(msg.AvailableAt), Member: string(encoded)}).Err()
	w.logger().Warn().Err(cause).Str("kind", keys.kind).Str("task_id", msg.ID).Int("attempt", msg.Attempt).Dur("retry_in", delay).Msg("queue: task failed, retrying")
	observeProcessed(keys.kind, "retry")
}

func (w Worker) ack(ctx context.Context, keys keyspace, raw string, msg taskMessage) {
	_ = w.R.ZRem(ctx, keys.processing(), raw).Err()
	if msg.Key != "" {
		_ = w.R.Del(ctx, keys.dedup(msg.Key)).Err()
	}
	observeProcessed(keys.kind, "ok")
	observeDepth(ctx, w.R, keys)
}

func (w Worker) requeueExpired(ctx context.Context, keys keyspace) error {
	now := time.Now().UnixNano()
	due, err := w.R.ZRangeByScore(ctx, keys.processing(), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now)}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, raw := range due {
		removed, err := w.R.ZRem(ctx, keys.processing(), raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		msg.AvailableAt = time.Now().UnixNano()
		encoded, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, keys.queue(), redis.Z{Score: float64(msg.AvailableAt), Member: string(encoded)}).Err()
		w.logger().Warn().Str("kind", keys.kind).Str("task_id", msg.ID).Msg("queue: visibility timeout expired, requeued")
	}
	return nil
}

func (w Worker) logger() *zerolog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type keyspace struct {
	prefix string
	kind   string
}

func (k keyspace) base() string {
	if k.prefix == "" {
		return "queue"
	}
	return k.prefix
}

func (k keyspace) queue() string      { return fmt.Sprintf("%s:queue:%s", k.base(), k.kind) }
func (k keyspace) processing() string { return fmt.Sprintf("%s:%s:processing", k.base(), k.kind) }
func (k keyspace) dlq() string        { return fmt.Sprintf("%s:%s:dlq", k.base(), k.kind) }
func (k keyspace) dedup(key string) string {
	return fmt.Sprintf("%s:dedup:%s:%s", k.base(), k.kind, key)
}

func decodeMessage(raw string) (taskMessage, error) {
	var msg taskMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return taskMessage{}, err
	}
	return msg, nil
}

type taskMessage struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Key         string     `json:"key,omitempty"`
	Payload     []byte     `json:"payload"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	AvailableAt int64      `json:"available_at"`
	LastError   string     `json:"last_error,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
}
