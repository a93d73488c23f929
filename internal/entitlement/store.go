// Package entitlement decides whether a user may run a chargeable analysis and
// records the usage and plan changes that follow from that decision.
package entitlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"tourism/internal/types"
)

// DefaultFreeTierLimit is the number of analyses a free user gets per accounting period.
const DefaultFreeTierLimit = 5

// Store persists entitlement records keyed by user ID.
// Implemented by db.EntitlementRepository, dynamo.EntitlementStore and MemoryStore.
type Store interface {
	// Get returns the record for userID, or (nil, nil) if none exists.
	Get(ctx context.Context, userID string) (*types.EntitlementRecord, error)

	// PutIfAbsent writes rec only if no record exists for rec.UserID.
	// An existing record is not an error.
	PutIfAbsent(ctx context.Context, rec *types.EntitlementRecord) error

	// Update applies m to the record for userID, creating a Free record first
	// if none exists. Usage increments are atomic at the store.
	Update(ctx context.Context, userID string, m types.RecordMutation) error
}

// DecisionObserver receives every decision produced by the Engine.
// Implemented by metrics.CloudWatchMetrics.
type DecisionObserver interface {
	ObserveDecision(ctx context.Context, d types.Decision)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(context.Context, types.Decision) {}

var userIDValidate = validator.New(validator.WithRequiredStructEnabled())

// ValidateUserID rejects empty or malformed user IDs before any store access.
func ValidateUserID(userID string) error {
	if err := userIDValidate.Var(userID, "required,max=128,printascii"); err != nil {
		return types.NewAppError(
			types.ErrCodeValidationInvalidUser,
			"user id must be 1-128 printable ASCII characters",
			fmt.Errorf("user id %q: %w", userID, err),
		)
	}
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
