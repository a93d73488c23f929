package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tourism/internal/billing"
	"tourism/internal/core"
	"tourism/internal/external"
	"tourism/internal/types"
)

// maxWebhookBodySize caps Stripe webhook payloads (64 KB).
const maxWebhookBodySize = 64 * 1024

// StripeWebhookHandler turns completed checkouts into premium passes.
// It is mounted outside /v1 and authenticates Stripe by signature.
type StripeWebhookHandler struct {
	verifier external.WebhookVerifier
	payments PaymentStore
	granter  PremiumGranter
	records  RecordReader
	catalog  *billing.Catalog
	secret   types.SecretString
	clock    types.Clock
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	payments PaymentStore,
	granter PremiumGranter,
	records RecordReader,
	catalog *billing.Catalog,
	secret types.SecretString,
	clock types.Clock,
	l *slog.Logger,
) *StripeWebhookHandler {
	if l == nil {
		l = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		payments: payments,
		granter:  granter,
		records:  records,
		catalog:  catalog,
		secret:   secret,
		clock:    clockOrReal(clock),
		logger:   l,
	}
}

// RegisterRoutes mounts POST /webhooks/stripe.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle verifies the Stripe-Signature header and processes the event.
// Once the signature is valid it answers 200 unless granting the pass failed,
// in which case the error status makes Stripe retry.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := types.LoggerFromContext(ctx, h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.WarnContext(ctx, "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "failed to read request body", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		log.WarnContext(ctx, "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing Stripe-Signature header", nil))
		return
	}
	if err := h.verifier.Verify(payload, sigHeader, h.secret.Unmask()); err != nil {
		log.WarnContext(ctx, "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "webhook signature verification failed", err))
		return
	}

	event, err := external.ParseCheckoutCompleted(payload)
	switch {
	case err != nil:
		log.ErrorContext(ctx, "failed to parse webhook event", "error", err)
	case event == nil:
		log.DebugContext(ctx, "ignoring unhandled webhook event type")
	default:
		if err := h.handleCheckoutCompleted(ctx, log, event); err != nil {
			// Non-2xx makes Stripe redeliver the event.
			core.Error(w, r, err)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted stores the payment and grants the pass. Only a
// failed grant is returned; everything else is logged because a redelivery
// would not change the outcome.
//
// A redelivered session is granted again only when the user's record does not
// already carry a pass at least as long as this one, so retries after a failed
// grant recover without pushing out the expiry of a successful one.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, log *slog.Logger, ev *external.CheckoutCompleted) error {
	log = log.With("event_id", ev.EventID, "session_id", ev.SessionID, "user_id", ev.UserID, "plan_type", ev.PlanKey)
	if ev.UserID == "" {
		log.ErrorContext(ctx, "checkout completed without user id")
		return nil
	}

	created, err := h.payments.RecordPayment(ctx, types.PaymentRecord{
		UserID:          ev.UserID,
		SessionID:       ev.SessionID,
		PaymentIntentID: ev.PaymentIntentID,
		PlanKey:         ev.PlanKey,
		Amount:          billing.MajorUnits(ev.AmountTotal, ev.Currency),
		Currency:        ev.Currency,
		Status:          types.PaymentStatusCompleted,
		Provider:        types.PaymentProviderStripe,
		CreatedAt:       ev.CreatedAt,
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to record payment, granting anyway", "error", err)
	}

	plan, ok := h.catalog.Lookup(ev.PlanKey)
	if !ok {
		log.ErrorContext(ctx, "unknown plan type on completed checkout, premium not granted")
		return nil
	}

	if err == nil && !created {
		rec, err := h.records.Get(ctx, ev.UserID)
		if err != nil {
			log.ErrorContext(ctx, "failed to read entitlement for redelivered session", "error", err)
			return types.NewAppError(types.ErrCodeUpstreamStore, "failed to read entitlement", err)
		}
		if passInEffect(rec, plan, ev.CreatedAt) {
			log.InfoContext(ctx, "checkout session already processed")
			return nil
		}
		log.WarnContext(ctx, "redelivered session has no pass on record, granting")
	}

	expiresAt, err := h.granter.GrantPremium(ctx, ev.UserID, plan, h.clock.Now())
	if err != nil {
		log.ErrorContext(ctx, "failed to grant premium", "error", err)
		return err
	}
	log.InfoContext(ctx, "premium granted", "expires_at", expiresAt)
	return nil
}

// passInEffect reports whether rec holds a premium pass that a grant for this
// session, made at paidAt or later, would have produced.
func passInEffect(rec *types.EntitlementRecord, plan billing.Plan, paidAt time.Time) bool {
	if rec == nil || !rec.PlanType.IsPremium() || rec.PremiumExpiresAt == nil {
		return false
	}
	return !rec.PremiumExpiresAt.Before(paidAt.Add(plan.Duration()))
}
