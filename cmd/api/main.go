package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/cart-totals/internal/cart"
	"github.com/noah-isme/cart-totals/internal/catalog"
	"github.com/noah-isme/cart-totals/internal/config"
	"github.com/noah-isme/cart-totals/internal/events"
	"github.com/noah-isme/cart-totals/internal/health"
	"github.com/noah-isme/cart-totals/internal/obs"
	"github.com/noah-isme/cart-totals/internal/pricing"
	"github.com/noah-isme/cart-totals/internal/promo"
	"github.com/noah-isme/cart-totals/internal/queue"
	"github.com/noah-isme/cart-totals/internal/ratelimit"
	"github.com/noah-isme/cart-totals/internal/resilience"
	"github.com/noah-isme/cart-totals/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), registry)
	cartMetrics := obs.NewCartMetrics(cfg.MetricsNamespace, registry)
	breakerMetrics := resilience.NewMetrics(cfg.MetricsNamespace, registry)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "cart-api",
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		redisClient *redis.Client
		source      catalog.Source = catalog.StaticSource(catalog.SeedItems())
		limiter     ratelimit.Limiter = ratelimit.NewMemoryLimiter("promo:")
		probes      = map[string]health.Probe{}
		notifiers   = []events.Notifier{obs.LogNotifier{Logger: logger}, cartMetrics}
	)
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if tracingEnabled {
			if err := redisotel.InstrumentTracing(redisClient); err != nil {
				logger.Error().Err(err).Msg("instrument redis tracing")
			}
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("ping redis")
		}

		source = catalog.RedisSource{
			Cache:    catalog.NewCache(redisClient, 0),
			Key:      cfg.CatalogKey,
			Fallback: source,
		}
		redisLimiter, err := ratelimit.NewRedisLimiter(redisClient, "promo")
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise promo limiter")
		}
		limiter = ratelimit.GuardedLimiter{
			Limiter: redisLimiter,
			Breaker: resilience.NewBreaker(resilience.Options{
				Target:      "redis_ratelimit",
				MinRequests: 5,
				OpenFor:     30 * time.Second,
				Logger:      &logger,
				Metrics:     breakerMetrics,
			}),
		}
		if cfg.EventsQueueEnabled {
			notifiers = append(notifiers, queue.EventPublisher{
				Enqueuer: queue.Enqueuer{Client: redisClient, Prefix: cfg.EventsQueuePrefix},
				Breaker: resilience.NewBreaker(resilience.Options{
					Target:      "redis_events",
					MinRequests: 5,
					OpenFor:     30 * time.Second,
					Logger:      &logger,
					Metrics:     breakerMetrics,
				}),
			})
		}
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	items, err := source.Items(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("load catalog seed, using built-in items")
		items = catalog.SeedItems()
	}

	promoCatalog, err := promo.NewCatalog(cfg.Promos()...)
	if err != nil {
		logger.Fatal().Err(err).Msg("build promo catalog")
	}
	engine := pricing.NewEngine(cfg.ShippingCost)
	bus := &events.Bus{Notifiers: notifiers}

	session, err := cart.NewSession(cart.Config{
		Items:   items,
		Catalog: promoCatalog,
		Engine:  &engine,
		Bus:     bus,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise cart session")
	}
	defer session.Close()
	unsubscribeMetrics := session.SubscribeTotals(cartMetrics.ObserveTotals)
	defer unsubscribeMetrics()

	cartHandler := &cart.Handler{Session: session, Logger: logger, Heartbeat: cfg.StreamHeartbeat}
	promoLimit := ratelimit.Handler{
		Limiter: limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("submit:"),
			Window: cfg.PromoRateWindow,
			Max:    cfg.PromoRateLimit,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("promo rate limit unavailable") },
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	healthHandler := health.Handler{Probes: probes, Timeout: 300 * time.Millisecond}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.Headers{Enable: cfg.SecureHeaders, EnableHSTS: cfg.EnableHSTS, NoStore: true}.Middleware)
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		cartHandler.Routes(v, promoLimit.Middleware)
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = otelhttp.NewHandler(r, "cart-api")
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serve(srv, logger)
}

// serve runs srv until SIGINT or SIGTERM, then drains in-flight requests.
func serve(srv *http.Server, logger zerolog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Streaming handlers only return once their request context ends.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv.BaseContext = func(net.Listener) context.Context { return baseCtx }
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
