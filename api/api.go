// Package api serves the cipherd HTTP interface: RSA encrypt and decrypt,
// the request log read endpoint, health and metrics.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"cipherd/config"
	"cipherd/core"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// EventEmitter accepts request log records. Implementations must not block on storage.
type EventEmitter interface {
	Emit(rec core.LogRecord)
}

// LogLister reads persisted log records
type LogLister interface {
	ListLogs(ctx context.Context, size, offset int) ([]core.LogRecord, error)
	CountLogs(ctx context.Context) (int64, error)
}

// HealthChecker reports storage reachability
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// API holds the API server
type API struct {
	router      *mux.Router
	handler     http.Handler
	server      *http.Server
	emitter     EventEmitter
	logStorage  LogLister
	health      HealthChecker
	rateLimiter RateLimiter
	config      *config.Config
	logger      *zap.SugaredLogger
}

// NewAPI creates a new API server. health may be nil, in which case /health always reports ok.
func NewAPI(cfg *config.Config, emitter EventEmitter, logStorage LogLister, health HealthChecker, logger *zap.SugaredLogger) *API {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	a := &API{
		router:     mux.NewRouter(),
		emitter:    emitter,
		logStorage: logStorage,
		health:     health,
		config:     cfg,
		logger:     logger,
	}
	if cfg.Server.RateLimit.Enabled {
		a.rateLimiter = NewRateLimiter(cfg, logger)
	}

	a.setupRoutes()
	return a
}

// setupRoutes sets up the API routes and the middleware chain.
// Middleware wraps the router rather than using router.Use so that unmatched
// routes and preflight requests are logged and rate limited too.
func (a *API) setupRoutes() {
	a.router.HandleFunc("/api/v1/encrypt", a.encrypt).Methods("POST")
	a.router.HandleFunc("/api/v1/decrypt", a.decrypt).Methods("POST")
	a.router.HandleFunc("/api/v1/logs", a.getLogs).Methods("GET")
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	var h http.Handler = a.router
	h = a.rateLimitMiddleware(h)
	h = a.requestLogMiddleware(h)
	h = a.corsMiddleware(h)
	h = a.errorRecoveryMiddleware(h)
	a.handler = h
}

// Handler returns the full middleware chain
func (a *API) Handler() http.Handler {
	return a.handler
}

func (a *API) newServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadTimeout:       a.config.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.config.Server.WriteTimeout,
		IdleTimeout:       a.config.Server.IdleTimeout,
	}
}

// Start starts the API server. It returns http.ErrServerClosed after Stop.
func (a *API) Start(addr string) error {
	a.server = a.newServer(addr)
	a.logger.Infow("API server listening", "addr", addr)
	return a.server.ListenAndServe()
}

// Serve serves on an existing listener
func (a *API) Serve(ln net.Listener) error {
	a.server = a.newServer(ln.Addr().String())
	a.logger.Infow("API server listening", "addr", ln.Addr().String())
	return a.server.Serve(ln)
}

// Stop gracefully stops the API server and releases the rate limiter
func (a *API) Stop(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	if a.rateLimiter != nil {
		if cerr := a.rateLimiter.Close(); cerr != nil {
			a.logger.Warnw("Failed to close rate limiter", "error", cerr)
		}
	}
	return err
}
