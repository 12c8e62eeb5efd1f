// Package control wires the connection layer together and manages its
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/homelink/internal/conn"
	"github.com/vietddude/homelink/internal/core/config"
	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/health"
	"github.com/vietddude/homelink/internal/infra/netmon"
	"github.com/vietddude/homelink/internal/infra/storage"
	"github.com/vietddude/homelink/internal/infra/storage/memory"
	redisstore "github.com/vietddude/homelink/internal/infra/storage/redis"
	"github.com/vietddude/homelink/internal/infra/storage/sqlite"
	"github.com/vietddude/homelink/internal/infra/transport"
	"github.com/vietddude/homelink/internal/resilience/cachepolicy"
	"github.com/vietddude/homelink/internal/resilience/retry"
)

// App is the composition root: explicit service instances with clear
// ownership, no global accessors.
type App struct {
	cfg          *config.AppConfig
	repo         storage.ServerRepository
	observer     netmon.Observer
	coordinator  *conn.Coordinator
	retryPolicy  *retry.Policy
	cacheEngine  *cachepolicy.Engine
	healthServer *health.Server
	db           *sqlite.DB
	redisRepo    *redisstore.ServerRepo
	log          *slog.Logger
}

// New builds the full service graph from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	log := slog.Default()

	app := &App{cfg: cfg, log: log}

	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, cfg.Storage.SQLite)
		if err != nil {
			return nil, fmt.Errorf("failed to init sqlite store: %w", err)
		}
		app.db = db
		app.repo = sqlite.NewServerRepo(db)
		log.Info("using sqlite configuration store", "path", cfg.Storage.SQLite.Path)
	case "redis":
		repo, err := redisstore.NewServerRepo(cfg.Storage.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis store: %w", err)
		}
		app.redisRepo = repo
		app.repo = repo
		log.Info("using redis configuration store")
	default:
		app.repo = memory.NewServerRepo()
		log.Info("using in-memory configuration store")
	}

	app.observer = netmon.NewPollingObserver(cfg.Network)

	app.coordinator = conn.New(app.repo, conn.NewHTTPProber(), app.observer, cfg.Conn, log)

	app.retryPolicy = retry.NewPolicy(retry.Config{})
	app.cacheEngine = cachepolicy.NewEngine(cachepolicy.Strategy(cfg.Cache.Strategy), app.observer)

	app.healthServer = health.NewServer(app.coordinator, app.observer, app.repo, cfg.Server.Port)

	return app, nil
}

// Start seeds the store, initializes the coordinator and launches the
// background loops and the observability endpoint.
func (a *App) Start(ctx context.Context) error {
	if err := a.seedServers(ctx); err != nil {
		return err
	}

	if err := a.coordinator.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize coordinator: %w", err)
	}
	a.coordinator.Start()

	go func() {
		if err := a.healthServer.Start(); err != nil && err != http.ErrServerClosed {
			a.log.Error("health server stopped", "error", err)
		}
	}()
	a.log.Info("homelink started", "port", a.cfg.Server.Port)
	return nil
}

// seedServers adds configured servers through the regular validated add
// workflow, only when the store is still empty.
func (a *App) seedServers(ctx context.Context) error {
	existing, err := a.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}
	if len(existing) > 0 || len(a.cfg.Seeds) == 0 {
		return nil
	}

	for i := range a.cfg.Seeds {
		seed := a.cfg.Seeds[i]
		seed.IsEnabled = true
		if err := a.coordinator.AddServer(ctx, &seed); err != nil {
			a.log.Warn("skipping invalid seed server", "name", seed.Name, "error", err)
		}
	}
	return nil
}

// Coordinator exposes the connection coordinator to embedding callers.
func (a *App) Coordinator() *conn.Coordinator {
	return a.coordinator
}

// NewRequestClient builds an HTTP client for the given server with the
// retry and cache policies attached to the pipeline.
func (a *App) NewRequestClient(server *domain.ServerConfig) *http.Client {
	return transport.NewClient(server, a.cacheEngine, a.retryPolicy)
}

// Stop shuts everything down in reverse order with a bounded wait.
func (a *App) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.healthServer.Stop(shutdownCtx); err != nil {
		a.log.Warn("health server shutdown failed", "error", err)
	}

	a.coordinator.Stop()
	a.observer.Close()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close sqlite store", "error", err)
		}
	}
	if a.redisRepo != nil {
		if err := a.redisRepo.Close(); err != nil {
			a.log.Warn("failed to close redis store", "error", err)
		}
	}
	a.log.Info("homelink stopped")
}
