package main

import (
	"context"
	"fmt"
	"time"

	extractionapp "github.com/erp/priceimport/internal/application/extraction"
	"github.com/erp/priceimport/internal/application/priceimport"
	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/erp/priceimport/internal/infrastructure/cache"
	"github.com/erp/priceimport/internal/infrastructure/config"
	"github.com/erp/priceimport/internal/infrastructure/logger"
	"github.com/erp/priceimport/internal/infrastructure/persistence"
	"github.com/erp/priceimport/internal/infrastructure/scrape"
	"github.com/erp/priceimport/internal/infrastructure/snapshot"
	"github.com/erp/priceimport/internal/infrastructure/storage"
	"github.com/erp/priceimport/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// app is the wired import pipeline of one process
type app struct {
	logger  *zap.Logger
	service *priceimport.Service
	closers []func()
}

// newApp loads configuration and connects every collaborator of the
// service. A dry run never touches the catalog, so it needs no database.
func newApp(ctx context.Context, opts cliOptions, dryRun bool) (_ *app, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.snapshotDir != "" {
		cfg.Import.SnapshotDir = opts.snapshotDir
	}

	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	providers, err := telemetry.Setup(ctx, telemetry.FromAppConfig(cfg.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.onClose(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	})

	logCfg := logger.FromAppConfig(cfg.Log)
	log, err := logger.New(logCfg, providers.ZapCore(logger.ParseLevel(logCfg.Level)))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = log
	a.onClose(func() { _ = log.Sync() })

	log.Info("starting price import",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Bool("dry_run", dryRun),
		zap.Bool("telemetry", providers.Enabled()),
	)

	metrics, err := telemetry.NewImportMetrics(providers.Meter(telemetry.MeterName))
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	reconciler, err := a.newReconciler(ctx, cfg, log, dryRun)
	if err != nil {
		return nil, err
	}

	browser := scrape.NewBrowser(&scrape.BrowserConfig{
		NavigationTimeout: cfg.Scrape.NavigationTimeout,
		RemoteURL:         cfg.Scrape.BrowserURL,
		Headful:           !cfg.Scrape.Headless,
		NoSandbox:         cfg.Scrape.NoSandbox,
		UserAgent:         cfg.Scrape.UserAgent,
		Logger:            log.Named("browser"),
	})
	a.onClose(func() { _ = browser.Close() })

	chain := extractionapp.NewChain(log.Named("extraction"), providerChain(cfg, browser, log)...)
	matrix := scrape.NewMatrixScraper(browser, scrape.MatrixConfig{
		PollInterval:  cfg.Scrape.PollInterval,
		SettleTimeout: cfg.Scrape.SettleTimeout,
		Retry:         retryPolicy(cfg.Scrape.RetryAttempts),
	}, log.Named("matrix"))

	writerOpts := []snapshot.Option{snapshot.WithLogger(log.Named("snapshot"))}
	if cfg.Storage.Enabled() {
		store, err := storage.NewS3SnapshotStore(ctx, &cfg.Storage, storage.WithLogger(log.Named("s3")))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize snapshot storage: %w", err)
		}
		if cfg.Storage.CreateBucket {
			if err := store.EnsureBucket(ctx); err != nil {
				return nil, fmt.Errorf("failed to prepare snapshot bucket: %w", err)
			}
		}
		writerOpts = append(writerOpts, snapshot.WithUploader(store))
	}

	serviceOpts := []priceimport.Option{
		priceimport.WithMatrixScraper(matrix),
		priceimport.WithSnapshots(snapshot.NewWriter(cfg.Import.SnapshotDir, writerOpts...)),
		priceimport.WithMetrics(metrics),
		priceimport.WithMaxSkippedErrors(cfg.Import.MaxSkippedErrors),
	}
	if !dryRun {
		lock, err := cache.NewLockFactory(cfg.Redis, cache.WithLogger(log.Named("lock"))).CreateLock()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize import lock: %w", err)
		}
		a.onClose(func() { _ = lock.Close() })
		serviceOpts = append(serviceOpts, priceimport.WithLocker(lock, cfg.Import.LockTTL))
	}

	a.service = priceimport.NewService(chain, reconciler, log, serviceOpts...)
	return a, nil
}

func (a *app) newReconciler(ctx context.Context, cfg *config.Config, log *zap.Logger, dryRun bool) (*priceimport.Reconciler, error) {
	if dryRun {
		return nil, nil
	}
	db, err := persistence.NewDatabase(ctx, &cfg.Database, persistence.WithLogger(
		logger.NewGormLogger(log.Named("gorm"), logger.GormLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh),
	))
	if err != nil {
		return nil, err
	}
	a.onClose(func() {
		if stats, err := db.Stats(); err == nil {
			log.Debug("closing database pool",
				zap.Int("open", stats.OpenConnections),
				zap.Int("in_use", stats.InUse),
				zap.Int64("wait_count", stats.WaitCount),
				zap.Duration("wait_duration", stats.WaitDuration),
			)
		}
		_ = db.Close()
	})

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingFromAppConfig(cfg.Telemetry), log); err != nil {
		return nil, fmt.Errorf("failed to register database tracing: %w", err)
	}

	return priceimport.NewReconciler(
		persistence.NewGormProductRepository(db.DB),
		persistence.NewGormAttributeRepository(db.DB),
		persistence.NewGormPriceRowRepository(db.DB),
		log.Named("reconciler"),
	), nil
}

// providerChain orders the providers hosted, browser, static. Without an
// API key the hosted provider fails fast, so its failure still shows up in
// the fallback errors of every extraction.
func providerChain(cfg *config.Config, browser *scrape.Browser, log *zap.Logger) []extraction.Provider {
	if cfg.Hosted.APIKey == "" {
		log.Warn("hosted scraping API key not configured, the hosted provider will fail every extraction")
	}
	return []extraction.Provider{
		scrape.NewHostedProvider(scrape.HostedConfig{
			BaseURL:           cfg.Hosted.BaseURL,
			APIKey:            cfg.Hosted.APIKey,
			Timeout:           cfg.Hosted.Timeout,
			RequestsPerSecond: cfg.Scrape.RequestsPerSecond,
		}, log.Named("hosted")),
		scrape.NewBrowserProvider(browser, log.Named("browser")),
		scrape.NewStaticProvider(scrape.StaticConfig{
			Timeout:           cfg.Scrape.StaticTimeout,
			UserAgent:         cfg.Scrape.UserAgent,
			RequestsPerSecond: cfg.Scrape.RequestsPerSecond,
		}, log.Named("static")),
	}
}

func retryPolicy(attempts int) shared.RetryPolicy {
	p := scrape.DefaultRetryPolicy()
	if attempts > 0 {
		p.MaxAttempts = attempts
	}
	return p
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
