package external

import (
	"context"
	"time"

	"tourism/internal/types"
)

// ---------------------------------------------------------------------------
// Billing Integration (Stripe)
// ---------------------------------------------------------------------------

// CheckoutProvider creates hosted payment pages for premium passes.
type CheckoutProvider interface {
	// CreateCheckoutSession returns the hosted page URL and the session ID that
	// the completion webhook will carry back.
	CreateCheckoutSession(ctx context.Context, req types.CheckoutRequest) (*types.CheckoutSession, error)
}

// WebhookVerifier abstracts Stripe webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature header
	// and signing secret. Returns nil on success.
	Verify(payload []byte, header string, secret string) error
}

// EventStripeCheckoutCompleted is the only event type the webhook acts on.
const EventStripeCheckoutCompleted = "checkout.session.completed"

// CheckoutCompleted is the subset of a checkout.session.completed event the
// backend needs. AmountTotal is in the currency's minor units.
type CheckoutCompleted struct {
	EventID         string
	SessionID       string
	PaymentIntentID string
	UserID          string
	PlanKey         string
	AmountTotal     int64
	Currency        string
	CreatedAt       time.Time
}

// ---------------------------------------------------------------------------
// Image Analysis (Gemini)
// ---------------------------------------------------------------------------

// Analyzer describes a single image. Each successful call is one chargeable use.
type Analyzer interface {
	Analyze(ctx context.Context, req types.AnalysisRequest) (*types.AnalysisResult, error)
}
