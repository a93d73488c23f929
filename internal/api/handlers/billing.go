package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tourism/internal/billing"
	"tourism/internal/core"
	"tourism/internal/external"
	"tourism/internal/types"
)

// CreateCheckoutRequest is the body of POST /v1/billing/checkout.
//
// Redirect URLs are built server-side from FRONTEND_URL and never taken from
// the client.
type CreateCheckoutRequest struct {
	PlanType string `json:"plan_type" validate:"required"`
}

// PaymentListResponse is the body of GET /v1/billing/payments.
type PaymentListResponse struct {
	Payments []types.PaymentRecord `json:"payments"`
}

// BillingHandler sells premium passes and lists the caller's purchases.
type BillingHandler struct {
	checkout    external.CheckoutProvider
	catalog     *billing.Catalog
	payments    PaymentStore
	validator   *core.Validator
	frontendURL string
	logger      *slog.Logger
}

// NewBillingHandler creates a BillingHandler. frontendURL is the site root
// without a trailing slash.
func NewBillingHandler(
	checkout external.CheckoutProvider,
	catalog *billing.Catalog,
	payments PaymentStore,
	frontendURL string,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator()
	}
	return &BillingHandler{
		checkout:    checkout,
		catalog:     catalog,
		payments:    payments,
		validator:   v,
		frontendURL: frontendURL,
		logger:      l,
	}
}

// RegisterRoutes mounts the billing endpoints.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout", h.CreateCheckoutSession)
	r.Get("/billing/payments", h.ListPayments)
}

// CreateCheckoutSession handles POST /v1/billing/checkout. It returns the
// hosted checkout URL; premium is granted later by the webhook.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan, err := h.catalog.ForCheckout(req.PlanType)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	session, err := h.checkout.CreateCheckoutSession(ctx, types.CheckoutRequest{
		UserID:     actor.ID,
		Email:      actor.Email,
		PlanKey:    plan.Key,
		PriceID:    plan.PriceID,
		SuccessURL: h.frontendURL + "/tourism-guide.html?payment=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  h.frontendURL + "/tourism-guide.html?payment=cancel",
	})
	if err != nil {
		types.LoggerFromContext(ctx, h.logger).ErrorContext(ctx, "failed to create checkout session",
			"plan_type", plan.Key, "error", err)
		core.Error(w, r, err)
		return
	}

	types.LoggerFromContext(ctx, h.logger).InfoContext(ctx, "checkout session created",
		"plan_type", plan.Key, "session_id", session.ID)
	core.JSON(w, r, http.StatusOK, session)
}

// ListPayments handles GET /v1/billing/payments?limit=N.
func (h *BillingHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			core.Error(w, r, types.NewAppErrorWithDetails(errCodeValidationInvalidLimit,
				"limit must be between 1 and 100", err, map[string]any{"limit": raw}))
			return
		}
		limit = n
	}

	payments, err := h.payments.ListByUser(r.Context(), actor.ID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if payments == nil {
		payments = []types.PaymentRecord{}
	}
	core.JSON(w, r, http.StatusOK, PaymentListResponse{Payments: payments})
}

const errCodeValidationInvalidLimit types.ErrorCode = "validation_invalid_limit"
