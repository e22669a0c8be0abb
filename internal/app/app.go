// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/simplecrawler/internal/config"
	"github.com/JakeFAU/simplecrawler/internal/crawler"
	"github.com/JakeFAU/simplecrawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/simplecrawler/internal/fetcher/colly"
	"github.com/JakeFAU/simplecrawler/internal/hash/sha256"
	"github.com/JakeFAU/simplecrawler/internal/policy/ratelimit"
	"github.com/JakeFAU/simplecrawler/internal/progress"
	"github.com/JakeFAU/simplecrawler/internal/progress/sinks"
	"github.com/JakeFAU/simplecrawler/internal/storage"
	"github.com/JakeFAU/simplecrawler/internal/telemetry"
)

// App holds all the shared, long-lived services of one crawl run: the
// logger, the storage backend, the progress hub and the engine wired to
// them. It is built once at startup and closed when the command finishes.
type App struct {
	logger  *zap.Logger
	backend *storage.Backend
	hub     *progress.Hub
	tally   *sinks.TallySink
	engine  *crawler.Engine
	tracer  *sdktrace.TracerProvider
}

// Option customizes how New wires the services.
type Option func(*options)

type options struct {
	fetcher       crawler.Fetcher
	registerer    prometheus.Registerer
	handlers      []dispatcher.Option
	clientOptions []option.ClientOption
}

// WithFetcher replaces the colly fetcher, typically in tests.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithRegisterer sets the registry for progress collectors.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHandlers registers the fulfilled and rejected callbacks.
func WithHandlers(handlers ...dispatcher.Option) Option {
	return func(o *options) { o.handlers = append(o.handlers, handlers...) }
}

// WithClientOptions passes options to the GCS client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOptions = append(o.clientOptions, opts...) }
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStorage exposes the configured blob storage backend.
func (a *App) GetStorage() storage.Provider {
	return a.backend.Provider
}

// GetEngine returns the crawl engine.
func (a *App) GetEngine() *crawler.Engine {
	return a.engine
}

// Sites returns the per-site fetch totals recorded so far. It is empty when
// progress reporting is disabled.
func (a *App) Sites() []sinks.SiteStats {
	if a.tally == nil {
		return nil
	}
	return a.tally.Sites()
}

// Sessions returns the crawl sessions seen by this app. It is empty when
// progress reporting is disabled.
func (a *App) Sessions() []sinks.SessionStatus {
	if a.tally == nil {
		return nil
	}
	return a.tally.Sessions()
}

// New creates and initializes the services described by cfg. It fails fast
// if the storage backend or the engine cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	logger.Debug("Initializing application services", zap.String("storage", cfg.Storage.Backend))

	backend, err := storage.Open(ctx, cfg.Storage, o.clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &App{logger: logger, backend: backend}

	var emitter progress.Emitter
	if cfg.Progress.Enabled {
		promSink, err := sinks.NewPrometheusSink(o.registerer)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("failed to initialize progress metrics: %w", err)
		}
		a.tally = sinks.NewTallySink()
		hubCfg := cfg.HubConfig()
		hubCfg.Logger = logger
		a.hub = progress.NewHub(hubCfg, sinks.NewLogSink(logger), promSink, a.tally)
		emitter = a.hub
	}

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing, nil)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.tracer = tp
	}

	fetcher := o.fetcher
	if fetcher == nil {
		var fetchOpts []collyfetcher.Option
		if a.tracer != nil {
			fetchOpts = append(fetchOpts, collyfetcher.WithTracerProvider(a.tracer))
		}
		fetcher = collyfetcher.New(cfg.FetcherConfig(), ratelimit.New(cfg.HTTP.Delay), fetchOpts...)
	}

	engine, err := crawler.NewEngine(
		cfg.CrawlerOptions(),
		fetcher,
		backend,
		sha256.New(),
		dispatcher.New(logger, o.handlers...),
		emitter,
		nil,
		nil,
		logger,
	)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize crawler: %w", err)
	}
	a.engine = engine

	logger.Debug("Application services initialized")
	return a, nil
}

// Run crawls until the engine stops. See crawler.Engine.Run for the
// meaning of the returned error.
func (a *App) Run(ctx context.Context) (crawler.Result, error) {
	return a.engine.Run(ctx)
}

// Close flushes the progress hub and pending spans, then releases the
// storage backend. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	if a.tracer != nil {
		if err := telemetry.Shutdown(ctx, a.tracer); err != nil {
			errs = append(errs, err)
		}
		a.tracer = nil
	}
	if err := a.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	// Syncing stdout-backed loggers fails on some platforms; nothing to do about it.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
