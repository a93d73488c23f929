package billing

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"tourism/internal/types"
)

// MemoryLedger is an in-process payment history for STORE_BACKEND=memory.
// Like the database stores it is idempotent on SessionID.
type MemoryLedger struct {
	mu       sync.Mutex
	sessions map[string]types.PaymentRecord
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{sessions: make(map[string]types.PaymentRecord)}
}

// RecordPayment stores p and reports whether it was new.
func (l *MemoryLedger) RecordPayment(_ context.Context, p types.PaymentRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sessions[p.SessionID]; ok {
		return false, nil
	}
	if p.ID == "" {
		p.ID = "pay_" + uuid.NewString()
	}
	l.sessions[p.SessionID] = p
	return true, nil
}

// ListByUser returns up to limit payments for userID, newest first.
func (l *MemoryLedger) ListByUser(_ context.Context, userID string, limit int) ([]types.PaymentRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.PaymentRecord, 0)
	for _, p := range l.sessions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
