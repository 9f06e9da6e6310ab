package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/healthloop/companion/config"
	"github.com/healthloop/companion/internal/application/eventhandler"
	"github.com/healthloop/companion/internal/application/saga"
	"github.com/healthloop/companion/internal/application/store"
	"github.com/healthloop/companion/internal/domain/patient"
	"github.com/healthloop/companion/internal/domain/shared"
	"github.com/healthloop/companion/internal/infrastructure/external/guidance"
	"github.com/healthloop/companion/internal/infrastructure/messaging"
	"github.com/healthloop/companion/internal/infrastructure/persistence/memory"
	"github.com/healthloop/companion/internal/infrastructure/persistence/postgres"
	redisrepo "github.com/healthloop/companion/internal/infrastructure/persistence/redis"
	"github.com/healthloop/companion/internal/infrastructure/persistence/sqlite"
	"github.com/healthloop/companion/internal/interface/http/handlers"
	"github.com/healthloop/companion/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ══════════════════════════════════════════════════════════════════════════════

// app holds every long-lived component of one process.
type app struct {
	cfg *config.Config
	log *slog.Logger

	store  *store.Store
	bus    *messaging.InMemoryEventBus
	flow   *saga.GuidanceFlowSaga
	health *handlers.CompositeHealthChecker

	// cancelSession ends background guidance fetches.
	cancelSession context.CancelFunc
	closers       []func() error
}

// newApp connects storage, loads the patient and wires events and guidance.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    log,
		health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. Storage
	// ─────────────────────────────────────────────────────────────────────────
	repo, err := a.openRepository(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Event bus and notifications
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	a.bus = messaging.NewInMemoryEventBus(busCfg)
	if cfg.App.Debug {
		a.bus.Use(messaging.LoggingMiddleware(log))
	}
	a.closers = append(a.closers, a.bus.Close)
	a.health.AddStats("event_bus", func() any { return a.bus.Stats() })
	a.health.AddStats("features", func() any { return cfg.Features.List() })

	if err := eventhandler.Register(a.bus, eventhandler.NewLogNotifier(log), cfg.Features, log); err != nil {
		a.Close()
		return nil, fmt.Errorf("register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Patient store
	// ─────────────────────────────────────────────────────────────────────────
	a.store = store.New(repo, timeutil.NewSystemClock(cfg.App.Location),
		store.WithPublisher(a.bus),
		store.WithLogger(log),
		store.WithRolloverWatch(func() bool {
			return cfg.Features.IsEnabled(config.FeatureTrackerRolloverWatch)
		}),
	)
	if err := a.store.Open(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("open patient store: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Guidance
	// ─────────────────────────────────────────────────────────────────────────
	session, cancel := context.WithCancel(context.Background())
	a.cancelSession = cancel
	a.flow = saga.NewGuidanceFlowSaga(session, a.store, a.guidanceProvider(), log)

	return a, nil
}

func (a *app) openRepository(ctx context.Context) (patient.Repository, error) {
	cfg := a.cfg
	key := cfg.Storage.Key

	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		repo, err := sqlite.Open(ctx, cfg.Storage.SQLitePath, key)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		a.health.AddCheck("storage", handlers.NewPingCheck(repo))
		a.log.Debug("using sqlite storage", "path", cfg.Storage.SQLitePath)
		return repo, nil

	case config.StorageRedis:
		client, err := redisrepo.NewClient(ctx, redisrepo.Config{
			URL:          cfg.Redis.URL,
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		repo := redisrepo.NewPatientRepository(client, key)
		a.health.AddCheck("storage", handlers.NewPingCheck(repo))
		return repo, nil

	case config.StoragePostgres:
		pgCfg := postgres.DefaultConfig(cfg.Database.URL)
		pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
		pgCfg.MinConns = int32(cfg.Database.MaxIdleConns)
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
		pgCfg.QueryTimeout = cfg.Database.QueryTimeout

		db, err := postgres.Open(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			db.Close()
			return nil
		})

		applied, err := db.Migrate(ctx)
		if err != nil {
			return nil, err
		}
		a.log.Info("postgres schema ready", "applied_migrations", applied)
		repo := postgres.NewPatientRepository(db, key)
		a.health.AddCheck("storage", handlers.NewPingCheck(repo))
		return repo, nil

	case config.StorageMemory:
		a.log.Warn("using in-memory storage, patient data is lost on exit")
		return memory.NewPatientRepository(), nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// guidanceProvider returns the LLM client, or a provider that always fails
// so every log gets the fallback text.
func (a *app) guidanceProvider() saga.GuidanceProvider {
	if !a.cfg.Features.IsEnabled(config.FeatureGuidanceAI) {
		a.log.Info("AI guidance disabled by feature flag")
		return guidance.Unavailable{}
	}

	g := a.cfg.Guidance
	clientCfg := guidance.DefaultClientConfig(g.APIKey)
	clientCfg.BaseURL = g.BaseURL
	clientCfg.Model = g.Model
	clientCfg.MaxTokens = g.MaxTokens
	clientCfg.Temperature = g.Temperature
	clientCfg.RequestTimeout = g.RequestTimeout
	clientCfg.MaxAttempts = g.MaxRetries + 1
	clientCfg.RetryBaseDelay = g.RetryBaseDelay
	clientCfg.RetryMaxDelay = g.RetryMaxDelay
	clientCfg.BreakerThreshold = g.CircuitBreakerThreshold
	clientCfg.BreakerTimeout = g.CircuitBreakerTimeout
	clientCfg.BreakerHalfOpenMax = g.CircuitBreakerHalfOpenMax
	clientCfg.RateLimit.RequestsPerMinute = g.RequestsPerMinute
	clientCfg.RateLimit.Burst = g.Burst
	clientCfg.Logger = a.log

	client, err := guidance.NewClient(clientCfg)
	if err != nil {
		if errors.Is(err, shared.ErrGuidanceUnavailable) {
			a.log.Info("no guidance API key configured, side effects get fallback guidance")
		} else {
			a.log.Warn("guidance client unavailable", "error", err)
		}
		return guidance.Unavailable{}
	}
	a.health.AddDegradedCheck("guidance", handlers.NewPingCheck(client))
	return client
}

// Close ends the guidance session and releases storage. Pending fetches are
// abandoned; their logs stay pending.
func (a *app) Close() {
	if a.cancelSession != nil {
		a.cancelSession()
	}
	if a.flow != nil {
		a.flow.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging. JSON in production, text
// everywhere else unless LOG_FORMAT says otherwise.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Observability.LogLevel)}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() || cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func slogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
