package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tourism/internal/types"
)

// PremiumPlan is the part of a purchasable plan that the grant needs.
// billing.Plan satisfies it.
type PremiumPlan interface {
	UserType() types.PlanType
	Duration() time.Duration
}

// Granter moves a user onto a premium plan after a captured payment.
type Granter struct {
	store  Store
	logger *slog.Logger
}

// NewGranter creates a Granter.
func NewGranter(store Store, logger *slog.Logger) *Granter {
	return &Granter{store: store, logger: loggerOrDefault(logger)}
}

// GrantPremium sets the user's plan to plan.UserType() expiring at now+plan.Duration().
// Counters are untouched and a missing record is created. A repeat grant resets
// the expiry from now rather than extending the previous one.
func (g *Granter) GrantPremium(ctx context.Context, userID string, plan PremiumPlan, now time.Time) (time.Time, error) {
	if err := ValidateUserID(userID); err != nil {
		return time.Time{}, err
	}
	if plan == nil || !plan.UserType().IsPremium() || plan.Duration() <= 0 {
		return time.Time{}, types.NewAppError(types.ErrCodeValidationInvalidPlan, "plan is not a premium plan", nil)
	}

	expiresAt := now.Add(plan.Duration())
	err := g.store.Update(ctx, userID, types.RecordMutation{
		Plan:      &types.PlanChange{Type: plan.UserType(), ExpiresAt: &expiresAt},
		UpdatedAt: now,
	})
	if err != nil {
		return time.Time{}, types.NewAppError(types.ErrCodeUpstreamStore, "failed to grant premium plan",
			fmt.Errorf("grant %s to %s: %w", plan.UserType(), userID, err))
	}

	g.logger.Info("premium plan granted", "user_id", userID, "plan_type", plan.UserType(), "expires_at", expiresAt)
	return expiresAt, nil
}
