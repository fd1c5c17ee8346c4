package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pario-ai/quotaguard/pkg/audit"
	"github.com/pario-ai/quotaguard/pkg/budget"
	"github.com/pario-ai/quotaguard/pkg/cache"
	cachepkg "github.com/pario-ai/quotaguard/pkg/cache/sqlite"
	"github.com/pario-ai/quotaguard/pkg/config"
	"github.com/pario-ai/quotaguard/pkg/ledger"
	"github.com/pario-ai/quotaguard/pkg/logging"
	"github.com/pario-ai/quotaguard/pkg/orchestrator"
	"github.com/pario-ai/quotaguard/pkg/provider"
	"github.com/pario-ai/quotaguard/pkg/router"
	"github.com/pario-ai/quotaguard/pkg/store/memory"
	redisstore "github.com/pario-ai/quotaguard/pkg/store/redis"
	sqlitestore "github.com/pario-ai/quotaguard/pkg/store/sqlite"
	"github.com/pario-ai/quotaguard/pkg/worker"
)

var errNoProviders = errors.New("no providers configured")

// app holds everything a command may need, built from one config.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	budget  *budget.Manager
	cache   *cachepkg.Cache // nil when caching is disabled
	ledger  *ledger.SQLiteLedger
	audit   *audit.Logger
	queue   *worker.Queue
	orch    *orchestrator.Orchestrator // nil when no provider is configured
	closers []func() error
}

// loadApp reads the config at path and builds the app.
func loadApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	a, err := buildApp(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func buildApp(cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	if a.ledger, err = ledger.New(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	a.closers = append(a.closers, a.ledger.Close)

	if a.audit, err = audit.New(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("init audit log: %w", err)
	}
	a.closers = append(a.closers, a.audit.Close)

	var cacheStore cache.Store
	if cfg.Cache.Enabled {
		if a.cache, err = cachepkg.New(cfg.DBPath, cfg.Cache.Namespace, logger); err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		a.closers = append(a.closers, a.cache.Close)
		cacheStore = a.cache
	}

	// The queue drains before the stores it writes to are closed.
	a.queue = worker.New(cfg.Worker.QueueSize, cfg.Worker.JobTimeout, logger.Named("worker"))
	a.closers = append(a.closers, func() error { a.queue.Close(); return nil })

	a.budget = budget.NewManager(store, budget.Options{
		DefaultLimit: cfg.Budget.DefaultLimit,
		Bounds:       cfg.Budget.Bounds,
		Thresholds:   cfg.Budget.Thresholds,
		Strict:       cfg.Budget.Consistency == config.ConsistencyStrict,
		Audit:        a.audit,
		Dispatcher:   a.queue,
		Logger:       logger.Named("budget"),
	})

	if len(cfg.Providers) == 0 {
		return a, nil
	}
	r, err := router.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init router: %w", err)
	}
	fetchers := make(map[string]provider.Fetcher, len(cfg.Providers))
	for _, p := range cfg.Providers {
		f, err := provider.New(p)
		if err != nil {
			return nil, err
		}
		fetchers[p.Name] = f
	}
	a.orch, err = orchestrator.New(orchestrator.Deps{
		Budget:   a.budget,
		Cache:    cacheStore,
		Ledger:   a.ledger,
		Router:   r,
		Fetchers: fetchers,
		Queue:    a.queue,
		Logger:   logger.Named("orchestrator"),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

type budgetStore interface {
	budget.Store
	Close() error
}

func openStore(cfg *config.Config) (budgetStore, error) {
	switch cfg.Budget.Store.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverRedis:
		rc := cfg.Budget.Store.Redis
		s, err := redisstore.New(redisstore.Config{
			Addrs:    rc.Addrs,
			Username: rc.Username,
			Password: rc.Password,
			DB:       rc.DB,
			Key:      rc.Key,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis budget store: %w", err)
		}
		return s, nil
	default:
		s, err := sqlitestore.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite budget store: %w", err)
		}
		return s, nil
	}
}

// requireOrchestrator fails commands that call the provider when none is
// configured.
func (a *app) requireOrchestrator() error {
	if a.orch == nil {
		return errNoProviders
	}
	return nil
}

// Close releases resources in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.log.Sync()
}
