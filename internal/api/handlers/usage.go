package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tourism/internal/core"
	"tourism/internal/types"
)

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	types.Decision
	FreeTierLimit int `json:"free_tier_limit"`
}

// UsageHandler reports the caller's current entitlement.
type UsageHandler struct {
	engine EntitlementEvaluator
	limit  int
	clock  types.Clock
	logger *slog.Logger
}

// NewUsageHandler creates a UsageHandler. limit is echoed to clients so they
// can render "n of limit" without a second call.
func NewUsageHandler(engine EntitlementEvaluator, limit int, clock types.Clock, l *slog.Logger) *UsageHandler {
	if l == nil {
		l = slog.Default()
	}
	return &UsageHandler{engine: engine, limit: limit, clock: clockOrReal(clock), logger: l}
}

// RegisterRoutes mounts GET /usage.
func (h *UsageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/usage", h.GetCurrent)
}

// GetCurrent handles GET /v1/usage. Evaluating has the same side effects as
// before an analysis: a first-time user gets a record and an expired pass is
// downgraded.
func (h *UsageHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	decision, err := h.engine.Evaluate(r.Context(), actor.ID, h.clock.Now())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, UsageResponse{Decision: decision, FreeTierLimit: h.limit})
}
