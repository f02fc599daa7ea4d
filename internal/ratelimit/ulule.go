package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed adapts a ulule limiter, a fixed window counter, to Limiter.
type Fixed struct {
	L *limiter.Limiter
}

// NewFixed builds a Fixed limiter from a formatted rate such as "10-S" or
// "120-M". A nil store keeps counters in process memory.
func NewFixed(rate string, store limiter.Store) (Fixed, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return Fixed{}, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	if store == nil {
		store = memory.NewStore()
	}
	return Fixed{L: limiter.New(store, parsed)}, nil
}

// NewRedisStore shares counters across agent replicas.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// Allow implements Limiter.
func (f Fixed) Allow(ctx context.Context, key string) (Decision, error) {
	if f.L == nil {
		return Decision{Allowed: true}, nil
	}
	lc, err := f.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lc.Reached,
		Limit:     int(lc.Limit),
		Remaining: int(lc.Remaining),
		ResetAt:   time.Unix(lc.Reset, 0),
	}, nil
}
