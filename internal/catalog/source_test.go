package catalog_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cart-totals/internal/cart"
	"github.com/noah-isme/cart-totals/internal/catalog"
	"github.com/noah-isme/cart-totals/internal/lock"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSeedItemsAreValid(t *testing.T) {
	items := catalog.SeedItems()
	require.Len(t, items, 3)
	require.NoError(t, cart.ValidateItems(items))
}

func TestStaticSourceReturnsCopy(t *testing.T) {
	src := catalog.StaticSource(catalog.SeedItems())
	items, err := src.Items(context.Background())
	require.NoError(t, err)
	items[0].Quantity = 4

	again, err := src.Items(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, again[0].Quantity)
}

func TestRedisSourceFallsBackWhenKeyMissing(t *testing.T) {
	_, client := newRedis(t)
	src := catalog.RedisSource{
		Cache:    catalog.NewCache(client, 0),
		Fallback: catalog.StaticSource(catalog.SeedItems()),
	}
	items, err := src.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	empty := catalog.RedisSource{Cache: catalog.NewCache(client, 0)}
	items, err = empty.Items(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestRedisSourceSeedRoundTrip(t *testing.T) {
	mr, client := newRedis(t)
	src := catalog.RedisSource{Cache: catalog.NewCache(client, 0), Key: "demo:seed"}
	ctx := context.Background()

	seed := []cart.LineItem{{ID: "k", Name: "Keyboard", UnitPrice: decimal.RequireFromString("49.95"), Limit: 2, Quantity: 2}}
	require.NoError(t, src.Seed(ctx, seed))
	require.True(t, mr.Exists("demo:seed"))

	items, err := src.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Keyboard", items[0].Name)
	require.True(t, items[0].UnitPrice.Equal(decimal.RequireFromString("49.95")))
}

func TestRedisSourceRejectsInvalidSeed(t *testing.T) {
	mr, client := newRedis(t)
	src := catalog.RedisSource{Cache: catalog.NewCache(client, 0)}
	ctx := context.Background()

	require.ErrorIs(t, src.Seed(ctx, []cart.LineItem{{ID: "a", Limit: 1, Quantity: 5}}), cart.ErrValidation)

	require.NoError(t, mr.Set(catalog.DefaultKey, `[{"id":"a","price":"1","limit":1,"quantity":3}]`))
	_, err := src.Items(ctx)
	require.ErrorIs(t, err, cart.ErrValidation)

	require.NoError(t, mr.Set(catalog.DefaultKey, `not json`))
	_, err = src.Items(ctx)
	require.Error(t, err)
}

func TestRedisSourceSeedIfAbsent(t *testing.T) {
	mr, client := newRedis(t)
	src := catalog.RedisSource{
		Cache:  catalog.NewCache(client, 0),
		Locker: &lock.Locker{Client: client},
	}
	ctx := context.Background()

	written, err := src.SeedIfAbsent(ctx, catalog.SeedItems())
	require.NoError(t, err)
	require.True(t, written)
	require.False(t, mr.Exists("lock:"+catalog.DefaultKey))

	replacement := []cart.LineItem{{ID: "k", Name: "Keyboard", UnitPrice: decimal.RequireFromString("49.95"), Limit: 2, Quantity: 1}}
	written, err = src.SeedIfAbsent(ctx, replacement)
	require.NoError(t, err)
	require.False(t, written)

	items, err := src.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)

	_, err = src.SeedIfAbsent(ctx, []cart.LineItem{{ID: "", Limit: 1, Quantity: 1}})
	require.ErrorIs(t, err, cart.ErrValidation)
}

func TestCacheHonoursTTL(t *testing.T) {
	mr, client := newRedis(t)
	cache := catalog.NewCache(client, 0)
	require.NoError(t, cache.SetJSON(context.Background(), "k", map[string]int{"a": 1}))
	require.Zero(t, mr.TTL("k"))

	var nilCache *catalog.Cache
	found, err := nilCache.GetJSON(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	require.False(t, found)
}

func TestCacheSetIfAbsentAndTTL(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	cache := catalog.NewCache(client, time.Minute)

	written, err := cache.SetJSONIfAbsent(ctx, "k", []string{"first"})
	require.NoError(t, err)
	require.True(t, written)
	require.Equal(t, time.Minute, mr.TTL("k"))

	written, err = cache.SetJSONIfAbsent(ctx, "k", []string{"second"})
	require.NoError(t, err)
	require.False(t, written)

	var got []string
	found, err := cache.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"first"}, got)

	var nilCache *catalog.Cache
	require.ErrorIs(t, nilCache.SetJSON(ctx, "k", 1), catalog.ErrNoClient)
}
