package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/db"
	httpserver "github.com/MartinPaviot/Nareo-sub004/internal/http"
	"github.com/MartinPaviot/Nareo-sub004/internal/observability"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Repos    Repos
	Clients  Clients
	Services Services
	Handlers Handlers
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

// Open connects the database and runs migrations. Used by every command.
func Open(cfg Config) (*logger.Logger, *db.Service, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	svc, err := db.Open(cfg.Database, log)
	if err != nil {
		log.Sync()
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		_ = svc.Close()
		log.Sync()
		return nil, nil, fmt.Errorf("database automigrate: %w", err)
	}
	return log, svc, nil
}

func New(ctx context.Context, cfg Config) (*App, error) {
	log, dbService, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	theDB := dbService.DB()

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Tracing.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		Headers:     cfg.Tracing.Headers,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.Init(log)
	}

	clients, err := wireClients(log, cfg)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, hub)
	if err != nil {
		clients.Close()
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           theDB,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Handlers:     wireHandlers(theDB, log, serviceset, hub),
		SSEHub:       hub,
		Metrics:      metrics,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Serve runs the HTTP API until ctx is canceled. With a bus configured, bus
// messages are forwarded into the local hub; otherwise the hub is fed
// directly. An in-process worker pool runs when WORKER_IN_PROCESS is set.
func (a *App) Serve(ctx context.Context) error {
	if a.Clients.SSEBus != nil {
		if err := a.Clients.SSEBus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start SSE bus forwarder: %w", err)
		}
	}
	if a.Cfg.Worker.InProcess {
		a.startWorker(ctx)
	}

	srv := httpserver.NewServer(httpserver.RouterConfig{
		Log:             a.Log,
		Metrics:         a.Metrics,
		CORSOrigins:     a.Cfg.CORSOrigins,
		ServiceName:     a.Cfg.ServiceName,
		QuizHandler:     a.Handlers.Quiz,
		ReviewHandler:   a.Handlers.Review,
		JobHandler:      a.Handlers.Job,
		RealtimeHandler: a.Handlers.Realtime,
		HealthHandler:   a.Handlers.Health,
	})
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	err := srv.Run(ctx, a.Cfg.HTTPAddr)
	if a.Cfg.Worker.InProcess {
		a.Services.JobWorker.Wait()
	}
	return err
}

// RunWorker processes queued jobs until ctx is canceled.
func (a *App) RunWorker(ctx context.Context) error {
	a.startWorker(ctx)
	<-ctx.Done()
	a.Services.JobWorker.Wait()
	return nil
}

func (a *App) startWorker(ctx context.Context) {
	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
	a.Services.JobWorker.Start(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
