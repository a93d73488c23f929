package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tourism/internal/core"
	"tourism/internal/types"
)

// UserProfile is the body of GET /v1/users/me.
type UserProfile struct {
	UserID            string          `json:"user_id"`
	Email             string          `json:"email,omitempty"`
	PlanType          types.PlanType  `json:"user_type"`
	PremiumExpiresAt  *time.Time      `json:"premium_expiry,omitempty"`
	MonthlyUsageCount int             `json:"monthly_analysis_count"`
	TotalUsageCount   int             `json:"total_analysis_count"`
	CreatedAt         time.Time       `json:"created_at"`
	Usage             *types.Decision `json:"usage"`
}

// UserStats is the body of GET /v1/users/me/stats.
// TotalSpent sums completed payments only, in major currency units.
type UserStats struct {
	AnalysisCount int   `json:"analysis_count"`
	PaymentCount  int   `json:"payment_count"`
	TotalSpent    int64 `json:"total_spent"`
}

// statsPaymentWindow is the number of most recent payments the stats cover.
const statsPaymentWindow = 100

// UserHandler serves the caller's own entitlement record and account stats.
type UserHandler struct {
	engine   EntitlementEvaluator
	store    RecordReader
	payments PaymentStore
	clock    types.Clock
	logger   *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(engine EntitlementEvaluator, store RecordReader, payments PaymentStore, clock types.Clock, l *slog.Logger) *UserHandler {
	if l == nil {
		l = slog.Default()
	}
	return &UserHandler{engine: engine, store: store, payments: payments, clock: clockOrReal(clock), logger: l}
}

// RegisterRoutes mounts GET /users/me and GET /users/me/stats.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/users/me", h.GetMe)
	r.Get("/users/me/stats", h.GetStats)
}

// GetMe handles GET /v1/users/me.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	decision, rec, err := h.evaluatedRecord(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, UserProfile{
		UserID:            rec.UserID,
		Email:             actor.Email,
		PlanType:          rec.PlanType,
		PremiumExpiresAt:  rec.PremiumExpiresAt,
		MonthlyUsageCount: rec.MonthlyUsageCount,
		TotalUsageCount:   rec.TotalUsageCount,
		CreatedAt:         rec.CreatedAt,
		Usage:             &decision,
	})
}

// GetStats handles GET /v1/users/me/stats.
func (h *UserHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	_, rec, err := h.evaluatedRecord(ctx, actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	payments, err := h.payments.ListByUser(ctx, actor.ID, statsPaymentWindow)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	stats := UserStats{AnalysisCount: rec.TotalUsageCount, PaymentCount: len(payments)}
	for _, p := range payments {
		if p.Status == types.PaymentStatusCompleted {
			stats.TotalSpent += p.Amount
		}
	}
	core.JSON(w, r, http.StatusOK, stats)
}

// evaluatedRecord evaluates first so a lazy create or downgrade is reflected
// in the record that is read back.
func (h *UserHandler) evaluatedRecord(ctx context.Context, userID string) (types.Decision, *types.EntitlementRecord, error) {
	decision, err := h.engine.Evaluate(ctx, userID, h.clock.Now())
	if err != nil {
		return types.Decision{}, nil, err
	}
	rec, err := h.store.Get(ctx, userID)
	if err != nil {
		return types.Decision{}, nil, types.NewAppError(types.ErrCodeUpstreamStore, "entitlement record unavailable", err)
	}
	if rec == nil {
		return types.Decision{}, nil, types.NewAppError(types.ErrCodeNotFoundUser, "user record not found", nil)
	}
	rec.Sanitize()
	return decision, rec, nil
}
