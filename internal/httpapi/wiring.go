package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/analyzer"
	"trailblazer_ai/internal/billing"
	"trailblazer_ai/internal/config"
	"trailblazer_ai/internal/judge"
	"trailblazer_ai/internal/logging"
	"trailblazer_ai/internal/metrics"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/providers"
	"trailblazer_ai/internal/queue"
	"trailblazer_ai/internal/ratelimit"
	"trailblazer_ai/internal/registry"
	"trailblazer_ai/internal/storage"
	"trailblazer_ai/internal/utils"
)

const reportTimeout = 10 * time.Second

// BuildDependencies wires every service from configuration. Database and Redis
// are optional: without them usage stays in process and queues are in memory.
// Call Close on shutdown.
func BuildDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	logger := utils.NewLogger("wiring")
	deps := &Dependencies{
		Health: make(map[string]HealthCheck),
		logger: utils.NewLogger("httpapi"),
	}
	fail := func(err error) (*Dependencies, error) {
		_ = deps.Close(context.Background())
		return nil, err
	}

	// Initialize database
	var db *storage.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = storage.NewDB(storage.ConfigFrom(cfg.Database))
		if err != nil {
			return fail(eris.Wrap(err, "failed to initialize database"))
		}
		deps.closers = append(deps.closers, func(context.Context) error { return db.Close() })
		deps.Health["database"] = db.Ping

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return fail(err)
			}
		}
	} else {
		logger.Warn("DATABASE_URL not set: analyses, metrics and stored credentials are disabled")
	}

	// Initialize Redis client
	redisClient, err := storage.NewRedisClient(storage.RedisConfig{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return fail(eris.Wrap(err, "failed to initialize Redis"))
	}
	if redisClient != nil {
		deps.closers = append(deps.closers, func(context.Context) error { return redisClient.Close() })
		deps.Health["redis"] = redisClient.Health
	}

	// Usage accounting
	limits := billing.LimitsFromConfig(cfg.Budget)
	tracker := billing.NewTracker(nil, limits)
	deps.Tracker = tracker

	var budgets *storage.BudgetRepository
	if db != nil {
		budgets = storage.NewBudgetRepository(db)
		deps.Budgets = budgets
		if stored, err := budgets.Get(ctx, storage.GlobalBudgetScope); err == nil {
			tracker.SetLimits(billing.LimitsFromSettings(stored))
		} else if !errors.Is(err, storage.ErrBudgetNotFound) {
			logger.Warn("Failed to load stored budget, using configured limits", "error", err)
		}
	}

	prom := metrics.NewPrometheus("trailblazer")
	deps.Metrics = prom
	reporters := []billing.Reporter{prom}

	// Queue workers for async processing
	var queueClient = redisClient.Client()
	if !cfg.Queue.UseRedis {
		queueClient = nil
	}

	if db != nil {
		metricsRepo := storage.NewMetricsRepository(db)
		monthStart := billing.WindowMonth.Start(time.Now())
		if recs, err := metricsRepo.ListSince(ctx, monthStart); err != nil {
			logger.Warn("Failed to load month-to-date usage", "error", err)
		} else {
			events := make([]models.UsageEvent, 0, len(recs))
			for _, rec := range recs {
				events = append(events, rec.UsageEvent())
			}
			tracker.Load(events)
		}

		qcfg := queueConfig(cfg.Queue, "metrics")
		q, dlq := queue.New(qcfg, queueClient)
		worker := storage.NewMetricsQueueWorker(q, dlq, metricsRepo, qcfg)
		worker.Start(context.Background())
		deps.closers = append(deps.closers, func(context.Context) error { return worker.Stop() })
		reporters = append(reporters, worker)
	}

	var spend billing.SpendService = billing.NewTrackerSpendService(tracker)
	if client := redisClient.Client(); client != nil {
		redisSpend := billing.NewRedisSpendService(client)
		spend = redisSpend
		deps.Spend = redisSpend

		qcfg := queueConfig(cfg.Queue, "spend")
		q, dlq := queue.New(qcfg, queueClient)
		worker := billing.NewSpendWorker(q, dlq, redisSpend, qcfg)
		worker.Start(context.Background())
		deps.closers = append(deps.closers, func(context.Context) error { return worker.Stop() })
		reporters = append(reporters, worker)
	}

	recorder := billing.NewRecorder(tracker, reportTimeout, reporters...)
	recorder.OnBudgetAlert(func(a billing.BudgetAlerts) {
		logger.Warn("Budget alert",
			"daily_spend", a.DailySpend.StringFixed(4),
			"monthly_spend", a.MonthlySpend.StringFixed(4),
			"daily_exceeded", a.DailyExceeded,
			"monthly_exceeded", a.MonthlyExceeded,
			"daily_warning", a.DailyWarning,
			"monthly_warning", a.MonthlyWarning,
		)
	})
	deps.closers = append(deps.closers, func(context.Context) error { recorder.Wait(); return nil })

	var guardStore billing.BudgetStore
	if budgets != nil {
		guardStore = budgets
	}
	deps.Guard = billing.NewBudgetGuard(guardStore, limits, spend)

	// Provider registry
	factory := providers.NewFactory(providers.ProxySettings{
		BaseURL:        cfg.BillingProxy.URL,
		Timeout:        cfg.BillingProxy.Timeout,
		UseCaseVersion: cfg.BillingProxy.UseCaseVersion,
		AccountName:    cfg.BillingProxy.AccountName,
		LimitIDs:       cfg.BillingProxy.LimitIDs,
	})
	strategies := []registry.Strategy{}
	if db != nil {
		keys, err := storage.NewKeyRing(cfg.Provider.MasterKey, cfg.Provider.CredentialKeys.ByProvider())
		if err != nil {
			return fail(err)
		}
		strategies = append(strategies, registry.NewDatabaseStrategy(
			storage.NewCredentialRepository(db), keys, cfg.Provider.RequestTimeout, cfg.Provider.MaxTokens))
	}
	strategies = append(strategies, registry.NewEnvironmentStrategy(cfg.Provider, cfg.Judge))
	reg := registry.New(factory, strategies...)

	// Audit archive
	deps.Audit = logging.NewNoopSink()
	if cfg.Audit.Enabled {
		sink, err := logging.NewS3Sink(ctx, logging.SinkConfigFrom(cfg.Audit), nil)
		if err != nil {
			return fail(eris.Wrap(err, "failed to initialize audit sink"))
		}
		deps.Audit = sink
		deps.closers = append(deps.closers, sink.Shutdown)
	}

	// Rate limiter
	deps.RateLimit = ratelimit.NewNoopLimiter()
	if cfg.RateLimit.Enabled {
		if client := redisClient.Client(); client != nil {
			deps.RateLimit = ratelimit.NewRateLimiterWithWindow(client, cfg.RateLimit.Window)
		} else {
			deps.RateLimit = ratelimit.NewLocalLimiter(cfg.RateLimit.Window)
		}
	}

	var analyses analyzer.AnalysisStore
	if db != nil {
		analyses = storage.NewAnalysisRepository(db)
	}
	deps.Analyzer = analyzer.NewService(analyzer.Options{
		Resolver:  reg,
		Verifier:  judge.NewEvaluator(reg, recorder, judge.ConfigFrom(cfg.Judge)),
		Recorder:  recorder,
		Store:     analyses,
		Audit:     deps.Audit,
		Metrics:   deps.Metrics,
		Budget:    deps.Guard,
		Tenant:    cfg.Provider.Tenant,
		Proxied:   factory.Proxied(),
		MaxTokens: cfg.Provider.MaxTokens,
	})

	logger.Info("Dependencies ready",
		"database", db != nil,
		"redis", redisClient != nil,
		"billing_proxy", factory.Proxied(),
		"audit", cfg.Audit.Enabled,
		"rate_limit", cfg.RateLimit.Enabled,
	)
	return deps, nil
}

// Close stops workers and releases connections in reverse order of creation.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func queueConfig(qc config.QueueConfig, name string) *queue.Config {
	cfg := queue.DefaultConfig(name)
	if qc.BatchSize > 0 {
		cfg.BatchSize = qc.BatchSize
	}
	if qc.BatchTimeout > 0 {
		cfg.BatchTimeout = qc.BatchTimeout
	}
	if qc.MaxRetries > 0 {
		cfg.MaxRetries = qc.MaxRetries
	}
	if qc.RetryBackoff > 0 {
		cfg.RetryBackoff = qc.RetryBackoff
	}
	return cfg
}
