package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tourism/internal/types"
)

// EntitlementRepository stores entitlement records in the entitlements table.
// It implements entitlement.Store.
//
// Key invariants:
//   - Usage increments are applied in SQL (count = count + $n), never by
//     read-modify-write, so concurrent increments are never lost.
//   - A plan change without an expiry clears premium_expiry.
type EntitlementRepository struct {
	db DBTX
}

// NewEntitlementRepository creates a new EntitlementRepository backed by the
// given database connection (pool or transaction).
func NewEntitlementRepository(db DBTX) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

const selectEntitlementSQL = `
	SELECT user_id, user_type, premium_expiry,
	       monthly_analysis_count, total_analysis_count,
	       created_at, updated_at
	FROM entitlements
	WHERE user_id = $1`

// Get returns the record for userID, or (nil, nil) if the user has none.
// Unknown plan values and negative counters are coerced.
func (r *EntitlementRepository) Get(ctx context.Context, userID string) (*types.EntitlementRecord, error) {
	var (
		rec      types.EntitlementRecord
		userType string
	)
	err := r.db.QueryRow(ctx, selectEntitlementSQL, userID).Scan(
		&rec.UserID,
		&userType,
		&rec.PremiumExpiresAt,
		&rec.MonthlyUsageCount,
		&rec.TotalUsageCount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get entitlement record", err)
	}
	rec.PlanType = types.PlanType(userType)
	rec.Sanitize()
	return &rec, nil
}

// PutIfAbsent inserts rec unless a row for rec.UserID already exists.
func (r *EntitlementRepository) PutIfAbsent(ctx context.Context, rec *types.EntitlementRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO entitlements (
			user_id, user_type, premium_expiry,
			monthly_analysis_count, total_analysis_count,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING`,
		rec.UserID,
		string(types.ParsePlanType(string(rec.PlanType))),
		rec.PremiumExpiresAt,
		max(rec.MonthlyUsageCount, 0),
		max(rec.TotalUsageCount, 0),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create entitlement record", err)
	}
	return nil
}

// upsertEntitlementSQL applies a RecordMutation in one statement.
//
//	$1 user_id
//	$2 new user_type, NULL to keep the current plan
//	$3 new premium_expiry, only used when $2 is not NULL
//	$4 usage increment
//	$5 updated_at
const upsertEntitlementSQL = `
	INSERT INTO entitlements AS e (
		user_id, user_type, premium_expiry,
		monthly_analysis_count, total_analysis_count,
		created_at, updated_at
	) VALUES ($1, COALESCE($2::text, 'free'), $3::timestamptz, $4, $4, $5, $5)
	ON CONFLICT (user_id) DO UPDATE SET
		user_type              = COALESCE($2::text, e.user_type),
		premium_expiry         = CASE WHEN $2::text IS NULL THEN e.premium_expiry ELSE $3::timestamptz END,
		monthly_analysis_count = GREATEST(e.monthly_analysis_count, 0) + $4,
		total_analysis_count   = GREATEST(e.total_analysis_count, 0) + $4,
		updated_at             = $5`

// Update applies m to the row for userID, inserting a Free row first if needed.
func (r *EntitlementRepository) Update(ctx context.Context, userID string, m types.RecordMutation) error {
	var (
		planType  *string
		expiresAt *time.Time
	)
	if m.Plan != nil {
		s := string(m.Plan.Type)
		planType = &s
		expiresAt = m.Plan.ExpiresAt
	}

	_, err := r.db.Exec(ctx, upsertEntitlementSQL,
		userID,
		planType,
		expiresAt,
		m.UsageIncrement,
		m.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update entitlement record", err)
	}
	return nil
}
