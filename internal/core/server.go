// Package core is the HTTP chassis shared by the local server and the Lambda
// entrypoint. It owns the chi router, the middleware chain, JSON responses and
// request validation; domain handlers are mounted by cmd/api.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tourism/internal/config"
)

// MetricsCollector records per-request telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint string, status int, duration time.Duration)
}

// RouteRegistrar mounts a group of routes on a router.
type RouteRegistrar func(r chi.Router)

// Server holds the router and the dependencies of the middleware chain.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator
	HealthProbes  []HealthProbe

	// V1Routes are mounted under /v1 behind AuthMiddleware.
	V1Routes []RouteRegistrar
	// PublicRoutes are mounted at the root without authentication
	// (e.g. provider webhooks that carry their own signature).
	PublicRoutes []RouteRegistrar

	closers []func() error
	router  *chi.Mux
}

// NewServer validates its inputs and returns a Server ready for route
// registration. Call MountRoutes once all registrars are set.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router for http.ListenAndServe or the Lambda adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// OnShutdown registers fn to run during Shutdown, in registration order.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown releases resources registered with OnShutdown (database pools).
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	var firstErr error
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			s.Logger.ErrorContext(ctx, "shutdown hook failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return firstErr
}
