// Package app builds the long-lived services from configuration and runs
// them, acting as the dependency container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TsaiLintung/paper-scroll/internal/api"
	"github.com/TsaiLintung/paper-scroll/internal/clock/system"
	"github.com/TsaiLintung/paper-scroll/internal/config"
	"github.com/TsaiLintung/paper-scroll/internal/crossref"
	"github.com/TsaiLintung/paper-scroll/internal/feed"
	"github.com/TsaiLintung/paper-scroll/internal/fetcher"
	"github.com/TsaiLintung/paper-scroll/internal/id/uuid"
	"github.com/TsaiLintung/paper-scroll/internal/openalex"
	"github.com/TsaiLintung/paper-scroll/internal/policy/pacing"
	"github.com/TsaiLintung/paper-scroll/internal/policy/retry"
	"github.com/TsaiLintung/paper-scroll/internal/progress"
	progresssinks "github.com/TsaiLintung/paper-scroll/internal/progress/sinks"
	"github.com/TsaiLintung/paper-scroll/internal/scroll"
	"github.com/TsaiLintung/paper-scroll/internal/settings"
	boltstore "github.com/TsaiLintung/paper-scroll/internal/storage/bolt"
	memorystore "github.com/TsaiLintung/paper-scroll/internal/storage/memory"
	pgstore "github.com/TsaiLintung/paper-scroll/internal/storage/postgres"
	"github.com/TsaiLintung/paper-scroll/internal/syncer"
)

// App holds every service built from one Config.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    scroll.Store
	settings *settings.Service
	orch     *syncer.Orchestrator
	receiver *syncer.Receiver
	sync     *syncer.Service
	feed     *feed.Assembler
	sampler  *feed.Sampler
	hub      *progress.Hub
	history  *progresssinks.HistorySink
	api      *api.Server
}

// Option customizes Build.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	store      scroll.Store
}

// WithRegisterer registers the sync collectors against reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithStore uses store instead of opening the configured driver.
func WithStore(store scroll.Store) Option {
	return func(o *options) { o.store = store }
}

// Build creates the application's dependencies. ctx bounds background work
// such as the progress hub and pacing waits.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies", zap.String("storage", cfg.Storage.Driver))

	a.store = o.store
	if a.store == nil {
		store, err := openStore(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	lister, works := setupClients(ctx, cfg, logger)
	a.settings = settings.New(a.store, logger.Named("settings"))

	if err := a.setupProgress(ctx, o.registerer); err != nil {
		_ = a.store.Close()
		return nil, err
	}

	a.orch = syncer.New(lister, a.hub, system.New(), uuid.New(), syncer.Config{}, logger.Named("sync"))
	a.receiver = syncer.NewReceiver(a.store, a.orch.Events(), logger.Named("receiver"))
	a.sync = syncer.NewService(a.settings, a.store, a.orch, a.receiver, logger.Named("sync"))

	a.feed = feed.NewAssembler(a.store, works, a.settings, logger.Named("feed"))
	a.sampler = feed.NewSampler(works, a.settings, logger.Named("sampler"))
	a.receiver.OnDone(func(ctx context.Context, res syncer.Result) {
		size, err := a.feed.Reload(ctx)
		if err != nil {
			a.logger.Warn("feed reload failed", zap.String("run_id", res.RunID), zap.Error(err))
			return
		}
		a.logger.Debug("feed reloaded", zap.String("run_id", res.RunID), zap.Int("pool", size))
	})

	a.api = api.NewServer(api.Deps{
		Settings: a.settings,
		Sync:     a.sync,
		Feed:     a.feed,
		Sampler:  a.sampler,
		History:  a.history,
		Store:    a.store,
		Clock:    system.New(),
		Logger:   logger,
	}, api.Options{
		InitialBatch:   cfg.Feed.InitialBatch,
		LoadMoreBatch:  cfg.Feed.LoadMoreBatch,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (scroll.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Info("using in-memory store, nothing survives a restart")
		return memorystore.New(), nil
	case config.DriverPostgres:
		store, err := pgstore.NewStore(ctx, pgstore.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		logger.Info("using postgres store")
		return store, nil
	default:
		store, err := boltstore.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("bolt store init failed: %w", err)
		}
		logger.Info("using bolt store", zap.String("path", cfg.Path))
		return store, nil
	}
}

func setupClients(ctx context.Context, cfg config.Config, logger *zap.Logger) (*crossref.Client, *openalex.Client) {
	lister := crossref.New(crossref.Config{
		BaseURL:  cfg.Crossref.BaseURL,
		PageSize: cfg.Crossref.PageSize,
		Timeout:  cfg.Crossref.Timeout,
	}, fetcher.New(fetcher.Config{
		Name:         "crossref",
		UserAgent:    cfg.HTTP.UserAgent,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, nil, logger.Named("crossref")), logger.Named("crossref"))

	scheduler := pacing.New(pacing.Config{
		WithEmail:    cfg.Pacing.WithEmail,
		WithoutEmail: cfg.Pacing.WithoutEmail,
		BaseContext:  ctx,
	})
	policy := retry.New(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	})
	works := openalex.New(openalex.Config{
		BaseURL: cfg.OpenAlex.BaseURL,
		Timeout: cfg.OpenAlex.Timeout,
	}, fetcher.New(fetcher.Config{
		Name:         "openalex",
		UserAgent:    cfg.HTTP.UserAgent,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, nil, logger.Named("openalex")), scheduler, policy, logger.Named("openalex"))

	logger.Info("upstream clients ready",
		zap.String("crossref", cfg.Crossref.BaseURL),
		zap.String("openalex", cfg.OpenAlex.BaseURL),
		zap.Duration("pacing_with_email", scheduler.Interval(true)),
		zap.Duration("pacing_without_email", scheduler.Interval(false)),
		zap.Int("retry_attempts", policy.MaxAttempts()),
	)
	return lister, works
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	a.history = progresssinks.NewHistorySink(0)
	hubCfg := progress.Config{
		BaseContext: ctx,
		Logger:      a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
		a.history,
	)
	return nil
}

// Serve runs the HTTP API, the orchestrator, and the receiver until ctx is
// canceled or one of them fails, then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	a.runWorkers(gctx, g)

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// SyncOnce runs a single sync from the stored settings and returns its
// result. onStatus, when set, sees every status update of the run.
func (a *App) SyncOnce(ctx context.Context, onStatus func(scroll.Status)) (syncer.Result, error) {
	if onStatus != nil {
		a.receiver.OnStatus(onStatus)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	a.runWorkers(gctx, g)

	res, err := a.syncAndWait(gctx)
	cancel()
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	return res, err
}

func (a *App) syncAndWait(ctx context.Context) (syncer.Result, error) {
	runID, err := a.sync.Trigger(ctx)
	if err != nil {
		return syncer.Result{}, err
	}
	return a.sync.Wait(ctx, runID)
}

func (a *App) runWorkers(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		a.orch.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return a.receiver.Run(ctx)
	})
}

// Close flushes telemetry and releases the store.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close progress hub: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the persistence backend.
func (a *App) Store() scroll.Store { return a.store }

// Settings returns the settings service.
func (a *App) Settings() *settings.Service { return a.settings }

// Sync returns the sync facade.
func (a *App) Sync() *syncer.Service { return a.sync }

// Feed returns the snapshot-backed feed.
func (a *App) Feed() *feed.Assembler { return a.feed }

// Sampler returns the sampling feed.
func (a *App) Sampler() *feed.Sampler { return a.sampler }

// History returns recent sync run summaries.
func (a *App) History() []progresssinks.RunSummary { return a.history.Recent() }

// Handler exposes the HTTP API for tests and embedding.
func (a *App) Handler() http.Handler { return a.api.Handler() }
