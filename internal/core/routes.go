package core

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tourism/internal/types"
)

const defaultRequestTimeout = 29 * time.Second

const errCodeNotFoundRoute types.ErrorCode = "not_found_route"

// Header values masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
}

// MountRoutes registers the global middleware chain and all route groups.
//
// Order:
//  1. Recoverer        outermost so every panic becomes a JSON 500
//  2. ContextTimeout   soft deadline below the API Gateway limit
//  3. RequestID
//  4. SecurityHeaders
//  5. RequestLogger
//  6. CORS             answers preflight before auth
//  7. Metrics
//
// AuthMiddleware applies only to the /v1 group.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)

	s.router.Get("/health", s.HandleHealth)
	for _, register := range s.PublicRoutes {
		register(s.router)
	}
	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		for _, register := range s.V1Routes {
			register(r)
		}
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError(errCodeNotFoundRoute, "route not found", nil))
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}
