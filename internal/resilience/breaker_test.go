package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(metrics *Metrics) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(Options{Target: "redis", MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Second, Metrics: metrics})
	b.now = clock.now
	return b, clock
}

func TestBreakerTransitions(t *testing.T) {
	b, clock := newTestBreaker(nil)
	ctx := context.Background()

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx))

	clock.advance(time.Second)
	require.True(t, b.Allow(ctx), "cool-off elapsed")
	require.Equal(t, HalfOpen, b.State())
	require.False(t, b.Allow(ctx), "only one probe while half-open")

	b.Report(ctx, true)
	require.Equal(t, Closed, b.State())
	require.True(t, b.Allow(ctx))
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(nil)
	ctx := context.Background()
	b.Report(ctx, false)
	b.Report(ctx, false)

	clock.advance(2 * time.Second)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx))
}

func TestBreakerDo(t *testing.T) {
	b, _ := newTestBreaker(nil)
	ctx := context.Background()
	boom := errors.New("boom")

	require.ErrorIs(t, b.Do(ctx, func(context.Context) error { return boom }), boom)
	require.ErrorIs(t, b.Do(ctx, func(context.Context) error { return boom }), boom)

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, ErrOpenCircuit)
	require.False(t, called)

	var nilBreaker *Breaker
	require.NoError(t, nilBreaker.Do(ctx, func(context.Context) error { return nil }))
}

func TestBreakerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics("cart", reg)
	require.Same(t, metrics.State, NewMetrics("cart", reg).State)

	b, clock := newTestBreaker(metrics)
	ctx := context.Background()
	b.Report(ctx, false)
	b.Report(ctx, false)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.State.WithLabelValues("redis")))

	clock.advance(time.Second)
	require.True(t, b.Allow(ctx))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.State.WithLabelValues("redis")))

	b.Report(ctx, true)
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.State.WithLabelValues("redis")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("redis", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("redis", "half_open", "closed")))
}
