package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeadLetter is a task that exhausted its attempts.
type DeadLetter struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	Payload        []byte     `json:"payload"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"lastError,omitempty"`
	FailedAt       *time.Time `json:"failedAt,omitempty"`

	raw string
}

// Stats describes one queue kind.
type Stats struct {
	Kind       string `json:"kind"`
	Ready      int64  `json:"ready"`
	Processing int64  `json:"processing"`
	DLQ        int64  `json:"dlq"`
	OldestLag  int64  `json:"oldest_lag_ms"`
}

// DLQ lists and replays dead-lettered tasks of a queue.
type DLQ struct {
	Queue Enqueuer
}

// List returns up to limit dead letters of kind, newest first.
func (d DLQ) List(ctx context.Context, kind string, offset, limit int) ([]DeadLetter, int64, error) {
	keys, err := d.keys(kind)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	total, err := d.Queue.R.LLen(ctx, keys.dlq()).Result()
	if err != nil {
		return nil, 0, err
	}
	raws, err := d.Queue.R.LRange(ctx, keys.dlq(), int64(offset), int64(offset+limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}
	out := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		out = append(out, DeadLetter{
			ID:             msg.ID,
			Kind:           msg.Kind,
			IdempotencyKey: msg.Key,
			Payload:        msg.Payload,
			Attempts:       msg.Attempt,
			LastError:      msg.LastError,
			FailedAt:       msg.FailedAt,
			raw:            raw,
		})
	}
	return out, total, nil
}

// Replay re-enqueues the dead letters with the given ids, or up to limit of
// the oldest ones when ids is empty. It returns the replayed ids.
func (d DLQ) Replay(ctx context.Context, kind string, ids []string, limit int) ([]string, error) {
	keys, err := d.keys(kind)
	if err != nil {
		return nil, err
	}
	letters, _, err := d.List(ctx, kind, 0, 1000)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	if limit <= 0 {
		limit = len(letters)
	}

	replayed := make([]string, 0)
	var errs []error
	// oldest entries sit at the tail
	for i := len(letters) - 1; i >= 0 && len(replayed) < limit; i-- {
		letter := letters[i]
		if len(want) > 0 {
			if _, ok := want[letter.ID]; !ok {
				continue
			}
		}
		removed, err := d.Queue.R.LRem(ctx, keys.dlq(), 1, letter.raw).Result()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed == 0 {
			continue
		}
		if letter.IdempotencyKey != "" {
			_ = d.Queue.R.Del(ctx, keys.dedup(letter.IdempotencyKey)).Err()
		}
		if _, err := d.Queue.Enqueue(ctx, Task{
			Kind:           keys.kind,
			Payload:        letter.Payload,
			IdempotencyKey: letter.IdempotencyKey,
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		replayed = append(replayed, letter.ID)
	}
	observeDLQ(ctx, d.Queue.R, keys)
	return replayed, errors.Join(errs...)
}

// Stats reports queue sizes for kind.
func (d DLQ) Stats(ctx context.Context, kind string) (Stats, error) {
	keys, err := d.keys(kind)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Kind: keys.kind}
	if st.Ready, err = d.Queue.R.ZCard(ctx, keys.queue()).Result(); err != nil {
		return Stats{}, err
	}
	if st.Processing, err = d.Queue.R.ZCard(ctx, keys.processing()).Result(); err != nil {
		return Stats{}, err
	}
	if st.DLQ, err = d.Queue.R.LLen(ctx, keys.dlq()).Result(); err != nil {
		return Stats{}, err
	}
	oldest, err := d.Queue.R.ZRangeWithScores(ctx, keys.queue(), 0, 0).Result()
	if err == nil && len(oldest) > 0 {
		ts := time.Unix(0, int64(oldest[0].Score))
		if ts.Before(time.Now()) {
			st.OldestLag = time.Since(ts).Milliseconds()
		}
	}
	return st, nil
}

func (d DLQ) keys(kind string) (keyspace, error) {
	if d.Queue.R == nil {
		return keyspace{}, errors.New("queue: redis client not configured")
	}
	k := sanitizeKind(kind)
	if k == "" {
		return keyspace{}, errors.New("queue: kind is required")
	}
	return keyspace{prefix: d.Queue.Prefix, kind: k}, nil
}
