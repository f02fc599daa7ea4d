package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/printstore/internal/config"
	"github.com/noah-isme/printstore/internal/health"
	"github.com/noah-isme/printstore/internal/obs"
	"github.com/noah-isme/printstore/internal/projector"
	"github.com/noah-isme/printstore/internal/ratelimit"
	"github.com/noah-isme/printstore/internal/resilience"
	"github.com/noah-isme/printstore/internal/security"
	"github.com/noah-isme/printstore/internal/storefront"
	"github.com/noah-isme/printstore/internal/widget"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(obs.LogOptions{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "widget"}).
		With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			Enabled:       true,
			ServiceName:   "printstore-widget",
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

	breaker := resilience.NewBreaker(cfg.SyncBreakerMinRequests, cfg.SyncBreakerFailureRatio, cfg.SyncBreakerOpenFor).
		WithTarget("storefront").
		WithLogger(logger)
	view := projector.NewLatest(nil)
	session, err := storefront.NewSession(storefront.SessionConfig{
		BaseURL: cfg.StoreBaseURL,
		Timeout: cfg.SyncTimeout,
		Breaker: breaker,
		View:    view,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise storefront session")
	}

	// Page load: a failure leaves the empty cart drawn.
	if _, err := session.Cart.SyncSummary(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial cart sync failed")
	}

	refreshLimiter, err := ratelimit.NewFixed(cfg.RefreshRateLimit, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise refresh limiter")
	}
	widgetHandler := &widget.Handler{
		Session:        session,
		View:           view,
		RefreshLimiter: refreshLimiter,
		Logger:         logger,
	}

	healthHandler := health.Handler{
		Probes: map[string]health.Probe{
			"storefront": health.HTTPProbe(&http.Client{Timeout: cfg.HealthTimeout}, cfg.StoreBaseURL+"/api/cart-summary"),
		},
		Timeout: cfg.HealthTimeout,
	}

	r := newRouter(cfg, logger)
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	widgetHandler.Routes(r)

	serve(ctx, &http.Server{Addr: cfg.HTTPAddr(), Handler: r}, logger)
}

func newRouter(cfg *config.Config, logger zerolog.Logger) chi.Router {
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, cfg.MetricsBucketsMS, nil)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.HTTPObs{Metrics: httpMetrics, Logger: &logger, Tracer: "printstore.widget"}.Middleware)
	r.Use(security.Headers{HSTSMaxAge: 31536000}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{cfg.StoreOrigin}
	}
	return cfg.CORSAllowedOrigins
}

func serve(ctx context.Context, srv *http.Server, logger zerolog.Logger) {
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	logger.Info().Msg("server stopped")
}
