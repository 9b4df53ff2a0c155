package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/cart-totals/internal/resilience"
)

// Limiter decides whether another event for key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// StoreLimiter implements Limiter on top of a ulule/limiter store.
type StoreLimiter struct {
	Store limiter.Store
}

// NewMemoryLimiter returns a process-local limiter.
func NewMemoryLimiter(prefix string) StoreLimiter {
	return StoreLimiter{Store: memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: limiter.DefaultCleanUpInterval})}
}

// NewRedisLimiter returns a limiter sharing its counters through Redis.
func NewRedisLimiter(client *redis.Client, prefix string) (StoreLimiter, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix, MaxRetry: 3})
	if err != nil {
		return StoreLimiter{}, fmt.Errorf("redis limiter store: %w", err)
	}
	return StoreLimiter{Store: store}, nil
}

// Allow registers an event for key and reports whether it is within max per window.
func (l StoreLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if l.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lim := limiter.New(l.Store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}

// GuardedLimiter trips a circuit breaker when the underlying store keeps
// failing, so requests stop waiting on an unavailable Redis.
type GuardedLimiter struct {
	Limiter Limiter
	Breaker *resilience.Breaker
}

// Allow delegates to the wrapped limiter while the breaker is closed. An open
// breaker yields resilience.ErrOpenCircuit.
func (g GuardedLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	var (
		allowed   bool
		remaining int
		reset     time.Time
	)
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		allowed, remaining, reset, err = g.Limiter.Allow(ctx, key, window, max)
		return err
	})
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return allowed, remaining, reset, nil
}
