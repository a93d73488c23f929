package entitlement

import (
	"context"
	"log/slog"
	"time"

	"tourism/internal/types"
)

// Engine evaluates a user's entitlement. It is safe for concurrent use and
// holds no per-user state; the Store is the only shared resource.
type Engine struct {
	store    Store
	limit    int
	logger   *slog.Logger
	observer DecisionObserver
}

// EngineOption configures optional Engine collaborators.
type EngineOption func(*Engine)

// WithObserver attaches a DecisionObserver (metrics).
func WithObserver(o DecisionObserver) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEngine creates an Engine. A non-positive limit falls back to DefaultFreeTierLimit.
func NewEngine(store Store, limit int, logger *slog.Logger, opts ...EngineOption) *Engine {
	if limit <= 0 {
		limit = DefaultFreeTierLimit
	}
	e := &Engine{
		store:    store,
		limit:    limit,
		logger:   loggerOrDefault(logger),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FreeTierLimit returns the configured free quota.
func (e *Engine) FreeTierLimit() int { return e.limit }

// Evaluate decides whether userID may perform one chargeable action at now.
//
// The only error returned is validation_invalid_user_id. Store failures never
// surface: a failed read yields the degraded fail-open decision, and failed
// create-if-absent or downgrade writes are logged while the decision stands.
//
// The read and the decision are not atomic. Two concurrent callers at the quota
// boundary can both be allowed.
func (e *Engine) Evaluate(ctx context.Context, userID string, now time.Time) (types.Decision, error) {
	if err := ValidateUserID(userID); err != nil {
		return types.Decision{}, err
	}
	log := e.logger.With("user_id", userID)

	rec, err := e.store.Get(ctx, userID)
	if err != nil {
		log.Warn("entitlement store read failed, failing open", "error", err)
		return e.observe(ctx, types.AllowDegraded(e.limit)), nil
	}

	if rec == nil {
		rec = types.NewFreeRecord(userID, now)
		if err := e.store.PutIfAbsent(ctx, rec); err != nil {
			log.Warn("failed to create entitlement record", "error", err)
		}
	}
	rec.Sanitize()

	if rec.PlanType.IsPremium() {
		if rec.PremiumExpiresAt != nil && rec.PremiumExpiresAt.After(now) {
			return e.observe(ctx, types.AllowPremium(types.CeilDays(rec.PremiumExpiresAt.Sub(now)))), nil
		}
		e.downgrade(ctx, log, userID, rec, now)
		return e.observe(ctx, e.freeDecision(rec.MonthlyUsageCount, rec.PremiumExpiresAt != nil)), nil
	}

	return e.observe(ctx, e.freeDecision(rec.MonthlyUsageCount, false)), nil
}

// downgrade rewrites an expired premium record to Free. Counters are untouched.
// A premium record without an expiry is also rewritten, but the decision does
// not report it as just expired.
func (e *Engine) downgrade(ctx context.Context, log *slog.Logger, userID string, rec *types.EntitlementRecord, now time.Time) {
	expiredAt := rec.PremiumExpiresAt
	err := e.store.Update(ctx, userID, types.RecordMutation{
		Plan:      &types.PlanChange{Type: types.PlanTypeFree},
		UpdatedAt: now,
	})
	if err != nil {
		log.Error("failed to downgrade expired premium plan", "plan_type", rec.PlanType, "error", err)
		return
	}
	log.Info("premium plan expired, downgraded to free", "plan_type", rec.PlanType, "expired_at", expiredAt)
}

func (e *Engine) freeDecision(monthly int, justExpired bool) types.Decision {
	remaining := e.limit - monthly
	if remaining <= 0 {
		return types.DenyQuota(justExpired)
	}
	return types.AllowFree(remaining, justExpired)
}

func (e *Engine) observe(ctx context.Context, d types.Decision) types.Decision {
	e.observer.ObserveDecision(ctx, d)
	return d
}
