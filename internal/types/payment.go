package types

import "time"

// PaymentStatus is the settlement state reported by the payment provider.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusPending   PaymentStatus = "pending"
)

// PaymentProviderStripe is the only provider this service integrates with.
const PaymentProviderStripe = "stripe"

// PaymentRecord is the stored history entry for a captured checkout session.
// Amount is in major currency units (JPY has none, so it equals the minor amount).
type PaymentRecord struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	SessionID       string        `json:"session_id"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	PlanKey         string        `json:"plan_type"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	Status          PaymentStatus `json:"status"`
	Provider        string        `json:"provider"`
	CreatedAt       time.Time     `json:"created_at"`
}

// CheckoutSession is the result of creating a hosted checkout page.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"checkout_url"`
}

// CheckoutRequest describes a one-off premium purchase.
type CheckoutRequest struct {
	UserID     string
	Email      string
	PlanKey    string
	PriceID    string
	SuccessURL string
	CancelURL  string
}
