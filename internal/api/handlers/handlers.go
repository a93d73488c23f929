// Package handlers contains the HTTP handlers for the tourism assistant API.
//
// Each handler declares the narrow interfaces it depends on and is mounted by
// cmd/api through its RegisterRoutes method. Everything except the Stripe
// webhook sits behind core.Server.AuthMiddleware, so handlers can rely on an
// actor being present in the request context.
package handlers

import (
	"context"
	"net/http"
	"time"

	"tourism/internal/core"
	"tourism/internal/entitlement"
	"tourism/internal/types"
)

// EntitlementEvaluator produces the current decision for a user.
// Implemented by entitlement.Engine.
type EntitlementEvaluator interface {
	Evaluate(ctx context.Context, userID string, now time.Time) (types.Decision, error)
}

// UsageRecorder counts one consumed analysis. Implemented by entitlement.Recorder.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, userID string) error
}

// PremiumGranter activates a purchased pass. Implemented by entitlement.Granter.
type PremiumGranter interface {
	GrantPremium(ctx context.Context, userID string, plan entitlement.PremiumPlan, now time.Time) (time.Time, error)
}

// RecordReader reads the stored entitlement record. Implemented by every entitlement.Store.
type RecordReader interface {
	Get(ctx context.Context, userID string) (*types.EntitlementRecord, error)
}

// PaymentStore persists captured payments. Implemented by db.PaymentRepository,
// dynamo.PaymentStore and billing.MemoryLedger.
type PaymentStore interface {
	RecordPayment(ctx context.Context, p types.PaymentRecord) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]types.PaymentRecord, error)
}

// requireActor returns the authenticated actor or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok || actor.ID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return types.Actor{}, false
	}
	return actor, true
}

func clockOrReal(c types.Clock) types.Clock {
	if c == nil {
		return types.RealClock{}
	}
	return c
}
