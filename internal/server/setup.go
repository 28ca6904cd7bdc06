package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/api"
	"github.com/JakeFAU/restock-watch/internal/cache"
	"github.com/JakeFAU/restock-watch/internal/checker"
	"github.com/JakeFAU/restock-watch/internal/clock/system"
	"github.com/JakeFAU/restock-watch/internal/config"
	"github.com/JakeFAU/restock-watch/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/restock-watch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/restock-watch/internal/fetcher/headless"
	"github.com/JakeFAU/restock-watch/internal/hash/sha256"
	"github.com/JakeFAU/restock-watch/internal/headless/detector"
	"github.com/JakeFAU/restock-watch/internal/headless/pool"
	"github.com/JakeFAU/restock-watch/internal/id/uuid"
	"github.com/JakeFAU/restock-watch/internal/monitor"
	"github.com/JakeFAU/restock-watch/internal/notify"
	"github.com/JakeFAU/restock-watch/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/restock-watch/internal/publisher/pubsub"
	"github.com/JakeFAU/restock-watch/internal/scheduler"
	"github.com/JakeFAU/restock-watch/internal/service"
	gcsstorage "github.com/JakeFAU/restock-watch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/restock-watch/internal/storage/local"
	memorystorage "github.com/JakeFAU/restock-watch/internal/storage/memory"
	pgstore "github.com/JakeFAU/restock-watch/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/restock-watch/internal/storage/sqlite"
	"github.com/JakeFAU/restock-watch/internal/telemetry"
	"github.com/JakeFAU/restock-watch/internal/worker"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Build creates the application's dependencies. On error everything acquired
// so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, version string) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Enabled:     cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.onClose("tracer", tp.Shutdown)

	clock := system.New()
	ids := uuid.NewUUIDGenerator()

	store, err := setupStore(ctx, app)
	if err != nil {
		return nil, err
	}
	blobs, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	notifier, err := setupNotifier(ctx, app, clock)
	if err != nil {
		return nil, err
	}
	factory, err := setupSessionFactory(app)
	if err != nil {
		return nil, err
	}

	app.pool, err = pool.New(ctx, pool.Config{
		Capacity:       cfg.Pool.Capacity,
		WarmSize:       cfg.Pool.WarmSize,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		IdleWait:       cfg.Pool.IdleWait,
		PingTimeout:    cfg.Pool.PingTimeout,
		ResetTimeout:   cfg.Pool.ResetTimeout,
	}, factory, logger.Named("pool"))
	if err != nil {
		return nil, fmt.Errorf("session pool init failed: %w", err)
	}
	app.onClose("pool", app.pool.Shutdown)

	deps := checker.Deps{
		Cache: cache.NewResults(cache.Config{
			SnapshotTTL:     cfg.Cache.SnapshotTTL,
			ReachabilityTTL: cfg.Cache.ReachabilityTTL,
			MaxEntries:      cfg.Cache.MaxEntries,
			Now:             clock.Now,
		}),
		Prober: collyfetcher.NewProber(collyfetcher.ProberConfig{
			UserAgent: cfg.Probe.UserAgent,
			Timeout:   cfg.Probe.Timeout,
		}),
		Pool: app.pool,
		Detector: detector.New(detector.Config{
			Keyword:            cfg.Detector.Keyword,
			SelectorHint:       cfg.Detector.SelectorHint,
			UnavailablePhrases: cfg.Detector.UnavailablePhrases,
			Proximity:          cfg.Detector.Proximity,
		}, logger.Named("detector")),
		Hasher: sha256.New(),
		Clock:  clock,
		Tracer: telemetry.Tracer(),
		Logger: logger.Named("checker"),
	}
	if cfg.RateLimit.RPS > 0 {
		deps.Limiter = ratelimit.New(ratelimit.Config{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst})
	}
	check, err := checker.New(checker.Config{
		Keyword:        cfg.Detector.Keyword,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("checker init failed: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		Unit:          cfg.Scheduler.Unit,
		LowAfter:      cfg.Scheduler.LowAfter,
		ColdAfter:     cfg.Scheduler.ColdAfter,
		VolatileFlips: cfg.Scheduler.VolatileFlips,
	}, scheduler.NewMemoryStore(), clock)

	w := worker.New(worker.Deps{
		Checker:   check,
		Scheduler: sched,
		Store:     store,
		Notifier:  notifier,
		BlobStore: blobs,
		IDs:       ids,
		Clock:     clock,
	}, worker.Config{
		BlobPrefix:   cfg.Archive.Prefix,
		CheckTimeout: cfg.Monitor.CheckTimeout,
	}, logger.Named("worker"))
	logger.Info("worker config",
		zap.String("archive", cfg.Archive.Backend),
		zap.String("blob_prefix", cfg.Archive.Prefix),
		zap.Duration("check_timeout", cfg.Monitor.CheckTimeout),
	)

	app.dispatch = dispatcher.New(dispatcher.Config{
		CycleInterval: cfg.Monitor.CycleInterval,
		Workers:       cfg.Monitor.Workers,
		DrainTimeout:  cfg.Monitor.DrainTimeout,
	}, store, sched, w, logger.Named("dispatcher"))

	app.service, err = service.New(service.Deps{
		Store:     store,
		Scheduler: sched,
		Processor: w,
		Checker:   check,
		IDs:       ids,
		Clock:     clock,
		Sessions:  app.pool,
	}, service.Config{AllowedHosts: cfg.Monitor.AllowedHosts}, logger.Named("service"))
	if err != nil {
		return nil, fmt.Errorf("service init failed: %w", err)
	}

	var ping func(context.Context) error
	if p, ok := store.(pinger); ok {
		ping = p.Ping
	}
	app.apiServer = api.NewServer(app.service, ready(ping), cfg, logger.Named("api"))
	return app, nil
}

func setupStore(ctx context.Context, app *App) (monitor.TargetStore, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case "postgres":
		store, err := pgstore.NewTargetStore(ctx, pgstore.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		app.onClose("postgres", func(context.Context) error {
			store.Close()
			return nil
		})
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("postgres migrate failed: %w", err)
		}
		app.logger.Info("using postgres target store")
		return store, nil
	case "sqlite":
		store, err := sqlitestore.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		app.onClose("sqlite", func(context.Context) error { return store.Close() })
		app.logger.Info("using sqlite target store", zap.String("path", cfg.SQLitePath))
		return store, nil
	case "", "memory":
		app.logger.Info("using in-memory target store")
		return memorystorage.NewTargetStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func setupArchive(ctx context.Context, app *App) (monitor.BlobStore, error) {
	cfg := app.cfg.Archive
	switch cfg.Backend {
	case "gcs":
		store, closeFn, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.onClose("gcs", func(context.Context) error { return closeFn() })
		app.logger.Info("archiving snapshots to GCS", zap.String("bucket", cfg.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("archiving snapshots locally", zap.String("path", cfg.BaseDir))
		return store, nil
	case "memory":
		app.logger.Info("archiving snapshots in memory")
		return memorystorage.NewBlobStore(), nil
	case "", "none":
		app.logger.Info("snapshot archive disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", cfg.Backend)
	}
}

func setupNotifier(ctx context.Context, app *App, clock monitor.Clock) (monitor.Notifier, error) {
	cfg := app.cfg.Notify
	logger := app.logger.Named("notify")
	var primary monitor.Notifier
	switch cfg.Type {
	case "webhook":
		primary = notify.NewWebhook(cfg.WebhookURL, cfg.Timeout, clock)
	case "pubsub":
		pub, err := gcppublisher.Dial(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.Topic)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		app.onClose("pubsub", func(context.Context) error { return pub.Close() })
		primary = notify.NewPublisher(pub, app.cfg.PubSub.Topic, clock)
	case "", "log":
		app.logger.Info("notifications are logged only")
		return notify.NewLog(logger), nil
	default:
		return nil, fmt.Errorf("unknown notify type: %s", cfg.Type)
	}
	app.logger.Info("notifications enabled", zap.String("type", cfg.Type))
	return notify.NewFallback(primary, logger), nil
}

func setupSessionFactory(app *App) (monitor.SessionFactory, error) {
	cfg := app.cfg.Headless
	if !cfg.Enabled {
		app.logger.Warn("headless rendering disabled; pages are fetched without running scripts")
		return collyfetcher.NewStaticFactory(collyfetcher.StaticConfig{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.NavigationTimeout,
		}), nil
	}
	factory, err := headlessfetcher.NewFactory(headlessfetcher.Config{
		UserAgent:         cfg.UserAgent,
		ExecPath:          cfg.ExecPath,
		NoSandbox:         cfg.NoSandbox,
		DisableImages:     cfg.DisableImages,
		NavigationTimeout: cfg.NavigationTimeout,
		ReadyTimeout:      cfg.ReadyTimeout,
		SettleDelay:       cfg.SettleDelay,
	}, app.logger.Named("chromedp"))
	if err != nil {
		return nil, fmt.Errorf("headless factory init failed: %w", err)
	}
	app.onClose("chromedp", func(context.Context) error {
		factory.Close()
		return nil
	})
	app.logger.Info("using headless sessions", zap.Int("capacity", app.cfg.Pool.Capacity))
	return factory, nil
}
