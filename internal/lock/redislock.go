package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another holder is left alone.
var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker provides a Redis-backed mutual exclusion shared by every agent
// replica using the same Redis.
type Locker struct {
	R            redis.UniversalClient
	RetryBackoff time.Duration
}

// WithLock runs fn while holding key. The lock is released when fn returns,
// or expires after ttl if the holder dies. It waits for the lock until ctx is
// done.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 20 * time.Millisecond
	}
	token := uuid.NewString()

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	defer func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}
