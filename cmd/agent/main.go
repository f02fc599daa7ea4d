package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/printstore/internal/config"
	"github.com/noah-isme/printstore/internal/health"
	"github.com/noah-isme/printstore/internal/obs"
	"github.com/noah-isme/printstore/internal/push"
	"github.com/noah-isme/printstore/internal/queue"
	"github.com/noah-isme/printstore/internal/ratelimit"
	"github.com/noah-isme/printstore/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireRedis(); err != nil {
		panic(err)
	}

	logger := obs.NewLogger(obs.LogOptions{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "agent"}).
		With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	queue.MustRegisterMetrics(cfg.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			Enabled:       true,
			ServiceName:   "printstore-agent",
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	tray := push.RedisTray{R: redisClient, Prefix: cfg.PushQueuePrefix}
	windows := push.NewWindowSet(func(_ context.Context, url string) error {
		logger.Info().Str("url", url).Msg("open window")
		return nil
	})
	agent, err := push.NewAgent(push.AgentConfig{
		Tray:    tray,
		Windows: windows,
		Origin:  cfg.StoreOrigin,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise agent")
	}
	host := push.NewHost(logger)

	enqueuer := queue.Enqueuer{
		R:           redisClient,
		Prefix:      cfg.PushQueuePrefix,
		DedupTTL:    cfg.PushDedupTTL,
		MaxAttempts: cfg.PushMaxAttempts,
	}
	worker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.PushQueuePrefix,
		Kind:              push.QueueKind,
		Concurrency:       cfg.PushQueueConcurrency,
		VisibilityTimeout: cfg.PushQueueVisibility,
		SoftDeadline:      cfg.PushQueueVisibility / 2,
		Handler:           push.Consumer{Agent: agent, Host: host}.Handle,
		Logger:            &logger,
	}

	pushStore, err := ratelimit.NewRedisStore(redisClient, cfg.PushQueuePrefix+":ratelimit:push")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise push limiter store")
	}
	pushLimiter, err := ratelimit.NewFixed(cfg.PushRateLimit, pushStore)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise push limiter")
	}
	onLimiterError := func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") }
	pushLimit := ratelimit.Handler{Limiter: pushLimiter, Key: ratelimit.ClientIP, OnError: onLimiterError}
	replayLimit := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{
			Client: redisClient,
			Prefix: cfg.PushQueuePrefix + ":ratelimit:replay:",
			Window: cfg.ReplayRateWindow,
			Max:    cfg.ReplayRateMax,
		},
		Key:     ratelimit.ClientIP,
		OnError: onLimiterError,
	}

	pushHandler := &push.Handler{
		Agent:          agent,
		Host:           host,
		Tray:           tray,
		Windows:        windows,
		Logger:         logger,
		PushMiddleware: []func(http.Handler) http.Handler{pushLimit.Middleware},
	}
	adminHandler := &queue.AdminHandler{DLQ: queue.DLQ{Queue: enqueuer}, Kind: push.QueueKind, Logger: logger}
	healthHandler := health.Handler{
		Probes:  map[string]health.Probe{"redis": health.RedisProbe(redisClient)},
		Timeout: cfg.HealthTimeout,
	}

	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, cfg.MetricsBucketsMS, nil)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.HTTPObs{Metrics: httpMetrics, Logger: &logger, Tracer: "printstore.agent"}.Middleware)
	r.Use(security.Headers{HSTSMaxAge: 31536000}.Middleware)
	r.Use(security.BodyLimit{Max: 64 << 10}.Middleware)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	pushHandler.Routes(r)
	r.Route("/admin/queue", func(a chi.Router) {
		a.Get("/dlq", adminHandler.ListDLQ)
		a.With(replayLimit.Middleware).Post("/dlq/replay", adminHandler.ReplayDLQ)
		a.Get("/stats", adminHandler.Stats)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("kind", push.QueueKind).Msg("push consumer starting")
		if err := worker.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("push consumer stopped with error")
			stop()
		}
	}()

	srv := &http.Server{Addr: cfg.AgentAddr(), Handler: r}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server exited unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PushDrainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	wg.Wait()
	if err := host.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("pending notification work cancelled")
	}
	logger.Info().Msg("agent shutdown complete")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
