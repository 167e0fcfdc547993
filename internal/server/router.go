// Package server exposes username resolution over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
)

// DefaultRequestTimeout bounds a request. It exceeds the fast path and race deadlines
// combined so that a resolution is never cut short by the router.
const DefaultRequestTimeout = 30 * time.Second

// Options configures NewRouter.
type Options struct {
	Logger         hclog.Logger
	RequestTimeout time.Duration

	// Metrics, when set, is served at MetricsPath.
	Metrics     http.Handler
	MetricsPath string
}

// NewRouter creates the chi router with all middleware and routes.
//
// Routes:
//   - GET /ping - liveness probe
//   - POST /auth_ad - authenticate a username and password
//   - GET /metrics - Prometheus metrics, when enabled
func NewRouter(resolver Resolver, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(middleware.Timeout(timeout))

	auth := &authHandler{resolver: resolver, logger: logger.Named("auth")}

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/auth_ad", auth.Authenticate)

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics)
	}

	return r
}

// requestLogger logs request start at debug and completion at info.
func requestLogger(logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())

			logger.Debug("HTTP request started",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("HTTP request completed",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			)
		})
	}
}

// recoverer turns a handler panic into a 500 JSON response.
func recoverer(logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logger.Error("Handler panicked",
					"request_id", middleware.GetReqID(r.Context()),
					"path", r.URL.Path,
					"panic", rvr,
				)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Auth error"})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
