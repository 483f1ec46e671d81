package api

import (
	"fmt"
	"net/http"
	"runtime"

	"cipherd/core"
	"cipherd/util/goroutine"
)

// corsMiddleware adds CORS headers for allowed origins and answers preflight requests
func (a *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range a.config.Server.AllowedOrigins {
			if origin != "" && (allowed == "*" || origin == allowed) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogMiddleware emits one log record per request before it is handled.
// Emit never blocks on storage, so logging cannot slow down or fail a request.
func (a *API) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.emitter != nil {
			ip := getRealIP(r, a.config.Server.TrustProxy, a.config.Server.TrustedProxyNetworks)
			a.emitRequest(core.NewRequestLogRecord(r.Method, r.URL.Path, ip))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) emitRequest(rec core.LogRecord) {
	defer goroutine.Recover("request-log-emit", a.logger)
	a.emitter.Emit(rec)
}

// rateLimitMiddleware rejects clients that exceed their request budget
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.rateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := core.NormalizeIP(getRealIP(r, a.config.Server.TrustProxy, a.config.Server.TrustedProxyNetworks))
		if !a.rateLimiter.Allow(r.Context(), ip) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// errorRecoveryMiddleware turns handler panics into 500 responses.
// The stack trace is logged server-side only.
func (a *API) errorRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				stackBuf := make([]byte, goroutine.StackTraceBufferSize)
				stackLen := runtime.Stack(stackBuf, false)

				a.logger.Errorw("PANIC RECOVERED",
					"error", fmt.Sprintf("%v", err),
					"method", r.Method,
					"path", r.URL.Path,
					"client_ip", getRealIP(r, a.config.Server.TrustProxy, a.config.Server.TrustedProxyNetworks),
					"stack_trace", string(stackBuf[:stackLen]),
				)

				writeError(w, http.StatusInternalServerError, "Internal server error", fmt.Errorf("panic: %v", err), a.logger)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
