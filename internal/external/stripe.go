package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"tourism/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey types.SecretString
	BaseURL   string // defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient creates one-off Checkout sessions for premium passes. Requests
// go straight to the REST API through BaseClient so they share the breaker and
// retry behaviour of every other outbound call.
type StripeClient struct {
	base      *BaseClient
	secretKey types.SecretString
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient. httpClient should carry a timeout;
// 20 seconds is what cmd/api uses.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{MaxRetries: 2, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second},
		"TourismAssistant/1.0",
		logger,
		WithUpstreamCode(types.ErrCodeUpstreamStripe),
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient around an existing BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{base: base, secretKey: cfg.SecretKey, baseURL: baseURL, logger: logger}
}

// CreateCheckoutSession opens a single-payment Checkout session for the plan.
// The user ID and plan key travel in the session metadata so the webhook can
// grant the pass without any other lookup.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, req types.CheckoutRequest) (*types.CheckoutSession, error) {
	if req.UserID == "" || req.PlanKey == "" || req.PriceID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "user, plan and price are required for checkout", nil)
	}

	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("payment_method_types[0]", "card")
	params.Set("line_items[0][price]", req.PriceID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("success_url", req.SuccessURL)
	params.Set("cancel_url", req.CancelURL)
	params.Set("client_reference_id", req.UserID)
	params.Set("metadata[user_id]", req.UserID)
	params.Set("metadata[plan_type]", req.PlanKey)
	if req.Email != "" {
		params.Set("customer_email", req.Email)
	}

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripe.CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode Stripe checkout session response", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe, "Stripe returned a checkout session without id or url", nil)
	}

	s.logger.InfoContext(ctx, "checkout session created", "user_id", req.UserID, "plan_type", req.PlanKey, "session_id", session.ID)
	return &types.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	return s.base.Do(req)
}

type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
}

func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode), readErr)
	}

	var stripeErr stripeErrorResponse
	if err := json.Unmarshal(body, &stripeErr); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode), err)
	}
	return mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

func mapStripeError(operation string, statusCode int, e *stripeErrorBody) error {
	if e.Code == "card_declined" || e.DeclineCode != "" {
		return types.NewAppErrorWithDetails(types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, e.Message), nil,
			map[string]any{"decline_code": e.DeclineCode, "stripe_code": e.Code})
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, operation+": Stripe rate limit exceeded", nil)
	case e.Type == "invalid_request_error" && e.Param == "line_items[0][price]":
		// A price ID that Stripe does not know means the plan is misconfigured.
		return types.NewAppError(types.ErrCodeValidationInvalidPlan, operation+": plan price is not available", nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, e.Message), nil)
	}
}

func (s *StripeClient) wrapStripeError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamStripe, fmt.Sprintf("%s: Stripe request failed: %v", operation, err), err)
}

// StripeVerifier checks the Stripe-Signature header (HMAC-SHA256 plus the
// default five minute timestamp tolerance).
type StripeVerifier struct{}

// Verify returns nil when header is a valid signature of payload under secret.
func (StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return webhook.ValidatePayload(payload, header, secret)
}

// ParseCheckoutCompleted decodes a verified webhook payload. It returns
// (nil, nil) for event types other than checkout.session.completed.
func ParseCheckoutCompleted(payload []byte) (*CheckoutCompleted, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "malformed webhook event", err)
	}
	if string(event.Type) != EventStripeCheckoutCompleted {
		return nil, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "webhook event has no data object", nil)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "malformed checkout session in webhook", err)
	}

	out := &CheckoutCompleted{
		EventID:     event.ID,
		SessionID:   session.ID,
		UserID:      session.Metadata["user_id"],
		PlanKey:     session.Metadata["plan_type"],
		AmountTotal: session.AmountTotal,
		Currency:    string(session.Currency),
		CreatedAt:   time.Unix(event.Created, 0).UTC(),
	}
	if out.UserID == "" {
		out.UserID = session.ClientReferenceID
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	return out, nil
}
