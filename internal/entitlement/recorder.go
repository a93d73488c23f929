package entitlement

import (
	"context"
	"log/slog"

	"tourism/internal/types"
)

// Recorder applies usage increments after a chargeable action completed.
// It does not re-check entitlement; callers must already hold an allowed decision.
type Recorder struct {
	store  Store
	clock  types.Clock
	logger *slog.Logger
}

// NewRecorder creates a Recorder. A nil clock uses types.RealClock.
func NewRecorder(store Store, clock types.Clock, logger *slog.Logger) *Recorder {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Recorder{store: store, clock: clock, logger: loggerOrDefault(logger)}
}

// RecordUsage adds one to both usage counters and stamps updatedAt.
// Store failures return upstream_entitlement_store_unavailable; the action that
// was charged has already happened, so callers usually log and continue.
func (r *Recorder) RecordUsage(ctx context.Context, userID string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	err := r.store.Update(ctx, userID, types.RecordMutation{
		UsageIncrement: 1,
		UpdatedAt:      r.clock.Now(),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStore, "failed to record usage", err)
	}
	r.logger.Info("usage recorded", "user_id", userID)
	return nil
}
