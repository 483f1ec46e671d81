package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cipherd/api"
	"cipherd/config"
	"cipherd/ingest"
	"cipherd/util/goroutine"

	"go.uber.org/zap"
)

const (
	apiShutdownTimeout     = 5 * time.Second
	serviceShutdownTimeout = 10 * time.Second
)

// App represents the cipherd application with all its components.
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Storage
	Storage *StorageComponents

	// Services
	Pipeline  *ingest.Pipeline
	APIServer *api.API

	// Lifecycle
	serviceWg     *sync.WaitGroup
	listener      net.Listener
	serverErrCh   chan error
	metricsCancel context.CancelFunc
	shutdownOnce  sync.Once
}

// NewApp creates a new application instance and initializes all components.
// configFile may be empty to search the default locations.
func NewApp(ctx context.Context, configFile string) (*App, error) {
	logger, sugar, err := InitLogger("console")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := InitConfig(configFile, sugar)
	if err != nil {
		return nil, err
	}

	if cfg.Logging.Format != "console" {
		if logger, sugar, err = InitLogger(cfg.Logging.Format); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	if err := SetLogLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}

	return NewAppWithConfig(ctx, cfg, logger)
}

// NewAppWithConfig builds the application from an already loaded configuration.
func NewAppWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sugar := logger.Sugar()
	sugar.Info("cipherd starting...")

	app := &App{
		Config:      cfg,
		Logger:      logger,
		Sugar:       sugar,
		serviceWg:   &sync.WaitGroup{},
		serverErrCh: make(chan error, 1),
	}

	storageComponents, err := InitStorage(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Storage = storageComponents

	app.Pipeline = InitPipeline(cfg, storageComponents.Logs, sugar)
	health := ServiceHealth{DB: storageComponents.DB, Pipeline: app.Pipeline}
	app.APIServer = api.NewAPI(cfg, app.Pipeline, storageComponents.Logs, health, sugar)

	return app, nil
}

// Start starts all application services. A log table that cannot be
// provisioned is fatal.
func (a *App) Start(ctx context.Context) error {
	if err := a.Pipeline.Start(ctx); err != nil {
		return fmt.Errorf("failed to start log pipeline: %w", err)
	}

	metricsCtx, cancel := context.WithCancel(context.Background())
	a.metricsCancel = cancel
	a.Storage.DB.StartMetricsCollection(metricsCtx, a.Config.Storage.MetricsInterval)

	return a.startAPIServer()
}

// startAPIServer binds the listen address synchronously so that port
// conflicts fail Start, then serves in the background.
func (a *App) startAPIServer() error {
	ln, err := net.Listen("tcp", a.Config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Config.Addr(), err)
	}
	a.listener = ln

	goroutine.Go(a.serviceWg, "api-server", a.Sugar, func() {
		if err := a.APIServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorw("API server failed", "error", err)
			a.serverErrCh <- err
		}
	})
	return nil
}

// Addr returns the address the API server is bound to, or "" before Start
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// WaitForShutdown blocks until a shutdown signal is received or the API server fails.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-a.serverErrCh:
		a.Sugar.Errorw("Shutting down after API server failure", "error", err)
	}
}

// Shutdown gracefully shuts down all components. Safe to call more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(a.shutdown)
}

func (a *App) shutdown() {
	a.Sugar.Info("Shutting down...")

	// Phase 1 - Stop API server so no new records are emitted
	a.Sugar.Info("Phase 1: Stopping API server...")
	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
		cancel()
	}

	// Phase 2 - Drain the log pipeline
	a.Sugar.Info("Phase 2: Draining log pipeline...")
	if a.Pipeline != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.Pipeline.ShutdownTimeout)
		if err := a.Pipeline.Shutdown(ctx); err != nil {
			a.Sugar.Errorw("Log pipeline shutdown timed out", "error", err, "pending", a.Pipeline.Pending())
		}
		cancel()
	}

	// Phase 3 - Wait for service goroutines
	a.Sugar.Info("Phase 3: Waiting for service goroutines to complete...")
	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.Sugar.Info("All service goroutines stopped successfully")
	case <-time.After(serviceShutdownTimeout):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	// Phase 4 - Stop pool metrics collection
	a.Sugar.Info("Phase 4: Stopping metrics collection...")
	if a.metricsCancel != nil {
		a.metricsCancel()
	}

	// Phase 5 - Close database connections
	a.Sugar.Info("Phase 5: Closing database connections...")
	if err := a.Storage.Close(); err != nil {
		a.Sugar.Errorw("Failed to close database", "error", err)
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
