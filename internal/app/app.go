package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dipteshhh/learnease-backend/internal/data/db"
	apphttp "github.com/dipteshhh/learnease-backend/internal/http"
	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
	"github.com/dipteshhh/learnease-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Metrics  *observability.Metrics
	Repos    Repos
	Clients  Clients
	Services Services
	Hub      *realtime.Hub
	Server   *apphttp.Server

	pg         *db.PostgresService
	cancelRuns context.CancelFunc
}

func New(log *logger.Logger, cfg Config) (*App, error) {
	pg, err := db.NewPostgresService(log, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := pg.DB()

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	clients, err := wireClients(log, cfg, metrics)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	// Generation runs outlive their requests; they stop when Close cancels runCtx.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(runCtx, log, cfg, metrics, reposet, clients)
	if err != nil {
		cancelRuns()
		_ = clients.EventBus.Close()
		_ = pg.Close()
		return nil, err
	}

	hub := realtime.NewHub(log)
	handlerset := wireHandlers(log, cfg, theDB, serviceset, hub)
	middleware := wireMiddleware(log, cfg)
	server := apphttp.NewServer(log, ":"+cfg.Port, apphttp.RouterConfig{
		Log:               log,
		Metrics:           metrics,
		ServiceName:       otelServiceName(cfg),
		CORSOrigins:       cfg.CORSOrigins,
		AuthMiddleware:    middleware.Auth,
		HealthHandler:     handlerset.Health,
		DocumentHandler:   handlerset.Document,
		GenerationHandler: handlerset.Generation,
		RealtimeHandler:   handlerset.Realtime,
	})
	server.RegisterOnShutdown(hub.CloseAll)

	return &App{
		Log:        log,
		DB:         theDB,
		Cfg:        cfg,
		Metrics:    metrics,
		Repos:      reposet,
		Clients:    clients,
		Services:   serviceset,
		Hub:        hub,
		Server:     server,
		pg:         pg,
		cancelRuns: cancelRuns,
	}, nil
}

func otelServiceName(cfg Config) string {
	if !cfg.Otel.Enabled {
		return ""
	}
	return cfg.Otel.ServiceName
}

// Start fails flows orphaned by a previous process and forwards bus events to local streams.
func (a *App) Start(ctx context.Context) error {
	n, err := a.Services.Flows.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("reconcile interrupted runs: %w", err)
	}
	a.Log.Info("startup reconcile finished", "reconciled", n)

	if err := a.Clients.EventBus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}
	return nil
}

// Serve blocks until ctx is cancelled or the server fails.
func (a *App) Serve(ctx context.Context) error {
	return a.Server.Run(ctx, a.Cfg.ShutdownTimeout)
}

// Sweep periodically fails processing flows whose run is gone. A non-positive interval disables it.
func (a *App) Sweep(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := a.Services.Flows.ReconcileAll(ctx); err != nil && ctx.Err() == nil {
				a.Log.Warn("reconcile sweep failed", "error", err)
			}
		}
	}
}

// Close interrupts running generations, waits for them to record their outcome and releases clients.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancelRuns != nil {
		a.cancelRuns()
		a.cancelRuns = nil
	}
	a.Services.Generation.Wait()
	if err := a.Clients.EventBus.Close(); err != nil {
		a.Log.Warn("event bus close failed", "error", err)
	}
	if err := a.pg.Close(); err != nil {
		a.Log.Warn("database close failed", "error", err)
	}
	a.Log.Sync()
}
