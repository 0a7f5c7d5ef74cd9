package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/quackform/vibes/internal/api/handlers"
	"github.com/quackform/vibes/internal/api/middleware"
	"github.com/quackform/vibes/internal/bootstrap"
	"github.com/quackform/vibes/internal/config"
	"github.com/quackform/vibes/internal/observability"
	"github.com/quackform/vibes/internal/service"
	"github.com/quackform/vibes/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	components     *bootstrap.Components
	server         *http.Server
	river          *river.Client[pgx.Tx]
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

const riverQueueDepthInterval = 15 * time.Second

// setupMetrics creates the meter provider and vibes metrics. When the exporter is disabled it
// returns all nils.
func setupMetrics(ctx context.Context, cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, *observability.Metrics, error) {
	mp, handler, err := observability.NewMeterProvider(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter(observability.MeterScope))
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), mp); err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, handler, metrics, nil
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	var (
		meterProvider  *sdkmetric.MeterProvider
		metricsHandler http.Handler
		metrics        *observability.Metrics
		err            error
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metricsHandler, metrics, err = setupMetrics(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(ctx, cfg)
		if err != nil {
			if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after tracer provider error", "error", err2)
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	fail := func(err error) (*App, error) {
		if err2 := shutdownObservability(context.Background(), tracerProvider, meterProvider); err2 != nil {
			slog.Error("shutdown observability after startup error", "error", err2)
		}

		return nil, err
	}

	components, err := bootstrap.New(ctx, cfg, metrics, slog.Default())
	if err != nil {
		return fail(err)
	}

	if err := bootstrap.MigrateRiver(ctx, components.Pool); err != nil {
		components.Close()

		return fail(err)
	}

	var (
		reembedMetrics observability.ReembedMetrics
		apiMetrics     observability.APIMetrics
	)

	if metrics != nil {
		reembedMetrics = metrics.Reembed
		apiMetrics = metrics.API
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.EmbeddingRateLimit), 1)
	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewVibeReembedWorker(components.Service, limiter, reembedMetrics))

	riverClient, err := river.NewClient(riverpgxv5.New(components.Pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			service.ReembedQueueName: {MaxWorkers: cfg.ReembedMaxConcurrent},
		},
		Workers:      riverWorkers,
		ErrorHandler: &workers.ErrorHandler{Logger: slog.Default()},
	})
	if err != nil {
		components.Close()

		return fail(fmt.Errorf("create River client: %w", err))
	}

	components.Service.SetReembedInserter(riverClient)

	server := newHTTPServer(
		cfg,
		handlers.NewHealthHandler(components),
		handlers.NewVibesHandler(components.Service),
		metricsHandler,
		apiMetrics,
		meterProvider, tracerProvider,
	)

	return &App{
		cfg:            cfg,
		components:     components,
		server:         server,
		river:          riverClient,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health and /metrics, API key on /v1/).
// Handler chain: RequestID -> otelhttp -> Metrics -> Logging -> MaxBody -> mux. Metrics sits
// directly outside the mux's own request so it can read the matched route pattern.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	vibes *handlers.VibesHandler,
	metricsHandler http.Handler,
	apiMetrics observability.APIMetrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/vibes", vibes.List)
	protected.HandleFunc("POST /v1/vibes", vibes.Create)
	protected.HandleFunc("GET /v1/vibes/{uid}", vibes.Get)
	protected.HandleFunc("POST /v1/vibes/search", vibes.Search)
	protected.HandleFunc("POST /v1/vibes/placeholder", vibes.Placeholder)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Check)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	mux.Handle("/v1/", middleware.Auth(cfg.APIKey)(protected))

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks and scrapes.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	var handler http.Handler = middleware.MaxBody(cfg.MaxRequestBodyBytes, apiMetrics)(mux)
	// Logging runs inside otelhttp so r.Context() has the span when we log.
	handler = middleware.Logging(handler)
	handler = middleware.Metrics(apiMetrics)(handler)
	handler = otelhttp.NewHandler(handler, "vibes-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 15 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled (e.g. signal)
// or a component fails. It cancels the internal River context before returning so River and the
// queue depth poller stop. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if a.metrics != nil && a.metrics.Reembed != nil {
		go runReembedQueueDepthPoller(riverCtx, a.components.Pool, a.metrics.Reembed)
	}

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// runReembedQueueDepthPoller periodically updates the reembed queue depth gauge.
func runReembedQueueDepthPoller(ctx context.Context, db *pgxpool.Pool, reembedMetrics observability.ReembedMetrics) {
	ticker := time.NewTicker(riverQueueDepthInterval)
	defer ticker.Stop()

	update := func() {
		var count int

		err := db.QueryRow(ctx,
			`SELECT COUNT(*) FROM river_job WHERE queue = $1 AND state IN ($2, $3, $4)`,
			service.ReembedQueueName,
			rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
		).Scan(&count)
		if err != nil {
			slog.WarnContext(ctx, "reembed queue depth poll failed", "error", err)

			return
		}

		reembedMetrics.SetQueueDepth(count)
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server and River in order, then closes the stores. Call after Run returns.
// Observability is shut down last; its error is returned only when server and River shut down cleanly.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		a.components.Close()

		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
