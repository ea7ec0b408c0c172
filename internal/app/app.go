package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/moveatlas/moveatlas-backend/internal/db"
	"github.com/moveatlas/moveatlas-backend/internal/observability"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/server"
	"github.com/moveatlas/moveatlas-backend/internal/sse"
)

const drainTimeout = 30 * time.Second

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Router   *gin.Engine
	Hub      *sse.Hub
	Clients  Clients
	Repos    Repos
	Services Services

	srv          *server.Server
	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = os.Getenv("APP_ENV")
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "moveatlas-backend",
		Environment: cfg.Environment,
		Version:     os.Getenv("APP_VERSION"),
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	hub := sse.NewHub(log)

	clientset, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(log, cfg, clientset, reposet, hub)
	if err != nil {
		clientset.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, serviceset, hub, clientset.Vectors)
	srv := wireRouter(log, cfg, handlerset)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           theDB,
		Router:       srv.Engine,
		Hub:          hub,
		Clients:      clientset,
		Repos:        reposet,
		Services:     serviceset,
		srv:          srv,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background pieces: the ingest worker pool and, when
// Redis is wired, the event forwarder feeding the local SSE hub.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.Worker != nil {
		a.Services.Worker.Start(ctx)
	}
	if a.Services.JobEvents != nil {
		if err := a.Services.JobEvents.StartForwarder(ctx); err != nil {
			a.Log.Warn("job event forwarder failed to start", "error", err)
		}
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.srv == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("http server listening", "addr", addr)
	return a.srv.Run(addr)
}

// Close stops the worker pool, waits for in-flight jobs, drains the HTTP
// server and releases the clients. Safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil

		if a.Services.Worker != nil {
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			if err := a.Services.Worker.Drain(ctx); err != nil {
				a.Log.Warn("worker drain incomplete", "error", err)
			}
			cancel()
		}
	}
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.srv.Shutdown(ctx); err != nil {
			a.Log.Warn("http shutdown incomplete", "error", err)
		}
		cancel()
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
