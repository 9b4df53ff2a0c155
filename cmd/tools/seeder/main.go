package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/cart-totals/internal/cart"
	"github.com/noah-isme/cart-totals/internal/catalog"
	"github.com/noah-isme/cart-totals/internal/config"
	"github.com/noah-isme/cart-totals/internal/lock"
	"github.com/noah-isme/cart-totals/internal/obs"
)

// The seeder writes the initial cart collection to Redis so API instances
// start from the same items. Items come from -file (a JSON array of line
// items) or the built-in storefront seed.
func main() {
	file := flag.String("file", "", "path to a JSON array of line items")
	key := flag.String("key", "", "redis key (defaults to CATALOG_KEY)")
	force := flag.Bool("force", false, "overwrite an existing collection")
	flag.Parse()

	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	items := catalog.SeedItems()
	if *file != "" {
		items, err = readItems(*file)
		if err != nil {
			logger.Fatal().Err(err).Str("file", *file).Msg("read items")
		}
	}

	target := cfg.CatalogKey
	if *key != "" {
		target = *key
	}
	src := catalog.RedisSource{
		Cache:  catalog.NewCache(client, 0),
		Key:    target,
		Locker: &lock.Locker{Client: client},
	}
	if *force {
		if err := src.Seed(ctx, items); err != nil {
			logger.Fatal().Err(err).Msg("seed catalog")
		}
		logger.Info().Str("key", target).Int("items", len(items)).Msg("catalog overwritten")
		return
	}
	written, err := src.SeedIfAbsent(ctx, items)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed catalog")
	}
	if !written {
		logger.Info().Str("key", target).Msg("catalog already seeded, use -force to overwrite")
		return
	}
	logger.Info().Str("key", target).Int("items", len(items)).Msg("catalog seeded")
}

func readItems(path string) ([]cart.LineItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []cart.LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
