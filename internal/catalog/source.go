package catalog

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/cart-totals/internal/cart"
	"github.com/noah-isme/cart-totals/internal/lock"
)

// DefaultKey is the Redis key holding the seed collection.
const DefaultKey = "catalog:seed"

// Source supplies the initial line items of a shopping session.
type Source interface {
	Items(ctx context.Context) ([]cart.LineItem, error)
}

// SeedItems returns the storefront's demo products, one of each in the cart.
func SeedItems() []cart.LineItem {
	return []cart.LineItem{
		{
			ID:          "1",
			Name:        "Wireless Headphones",
			UnitPrice:   decimal.RequireFromString("159.99"),
			Image:       "https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=500&q=80",
			Description: "premium wireless headphones with noise cancellation and 30-hour battery life.",
			Limit:       5,
			Quantity:    1,
		},
		{
			ID:          "2",
			Name:        "Minimalist Watch",
			UnitPrice:   decimal.RequireFromString("129.50"),
			Image:       "https://images.unsplash.com/photo-1523275335684-37898b6baf30?w=500&q=80",
			Description: "A sleek, minimalist watch that fits any style. Water resistant.",
			Limit:       3,
			Quantity:    1,
		},
		{
			ID:          "3",
			Name:        "Modern Camera",
			UnitPrice:   decimal.RequireFromString("899.00"),
			Image:       "https://images.unsplash.com/photo-1526170375885-4d8ecf77b99f?w=500&q=80",
			Description: "Compact mirrorless camera perfect for travel and street photography.",
			Limit:       2,
			Quantity:    1,
		},
	}
}

// StaticSource serves a fixed collection.
type StaticSource []cart.LineItem

// Items returns a copy of the collection.
func (s StaticSource) Items(context.Context) ([]cart.LineItem, error) {
	return slices.Clone([]cart.LineItem(s)), nil
}

// RedisSource reads the seed collection from a JSON document in Redis,
// falling back to Fallback when the key is absent.
type RedisSource struct {
	Cache    *Cache
	Key      string
	Fallback Source
	// Locker, when set, serializes SeedIfAbsent across processes.
	Locker *lock.Locker
}

func (s RedisSource) key() string {
	if s.Key == "" {
		return DefaultKey
	}
	return s.Key
}

// Items loads and validates the stored collection.
func (s RedisSource) Items(ctx context.Context) ([]cart.LineItem, error) {
	var items []cart.LineItem
	found, err := s.Cache.GetJSON(ctx, s.key(), &items)
	if err != nil {
		return nil, fmt.Errorf("load catalog seed: %w", err)
	}
	if !found {
		if s.Fallback == nil {
			return nil, nil
		}
		return s.Fallback.Items(ctx)
	}
	if err := cart.ValidateItems(items); err != nil {
		return nil, fmt.Errorf("catalog seed %s: %w", s.key(), err)
	}
	return items, nil
}

// Seed stores items under the source key after validating them.
func (s RedisSource) Seed(ctx context.Context, items []cart.LineItem) error {
	if err := cart.ValidateItems(items); err != nil {
		return err
	}
	return s.Cache.SetJSON(ctx, s.key(), items)
}

// SeedIfAbsent stores items only when the key does not exist yet and reports
// whether it wrote them. With a Locker, concurrent seeders queue up behind
// one another instead of racing on validation and encoding.
func (s RedisSource) SeedIfAbsent(ctx context.Context, items []cart.LineItem) (bool, error) {
	if err := cart.ValidateItems(items); err != nil {
		return false, err
	}
	var written bool
	seed := func(ctx context.Context) error {
		var err error
		written, err = s.Cache.SetJSONIfAbsent(ctx, s.key(), items)
		return err
	}
	if s.Locker == nil {
		return written, seed(ctx)
	}
	err := s.Locker.WithLock(ctx, s.key(), 10*time.Second, seed)
	return written, err
}
