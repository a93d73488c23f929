package db

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"tourism/internal/types"
)

// PaymentRepository stores captured checkout sessions in payment_history.
// Writes are idempotent on session_id so Stripe webhook redeliveries are harmless.
type PaymentRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db DBTX, logger *slog.Logger) *PaymentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentRepository{db: db, logger: logger}
}

// RecordPayment inserts p. It reports whether a new row was written; a
// redelivered session returns (false, nil).
func (r *PaymentRepository) RecordPayment(ctx context.Context, p types.PaymentRecord) (bool, error) {
	if p.ID == "" {
		p.ID = "pay_" + uuid.NewString()
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO payment_history (
			id, session_id, user_id, payment_intent_id, plan_type,
			amount, currency, status, provider, created_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO NOTHING`,
		p.ID,
		p.SessionID,
		p.UserID,
		p.PaymentIntentID,
		p.PlanKey,
		p.Amount,
		p.Currency,
		string(p.Status),
		p.Provider,
		p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record payment", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Info("payment already recorded", "session_id", p.SessionID, "user_id", p.UserID)
		return false, nil
	}
	return true, nil
}

// ListByUser returns the user's payments, newest first.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]types.PaymentRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, user_id, COALESCE(payment_intent_id, ''), plan_type,
		       amount, currency, status, provider, created_at
		FROM payment_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list payments", err)
	}
	defer rows.Close()

	var out []types.PaymentRecord
	for rows.Next() {
		var (
			p      types.PaymentRecord
			status string
		)
		if err := rows.Scan(
			&p.ID, &p.SessionID, &p.UserID, &p.PaymentIntentID, &p.PlanKey,
			&p.Amount, &p.Currency, &status, &p.Provider, &p.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan payment row", err)
		}
		p.Status = types.PaymentStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating payment rows", err)
	}
	return out, nil
}
