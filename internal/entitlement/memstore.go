package entitlement

import (
	"context"
	"sync"

	"tourism/internal/types"
)

// MemoryStore is an in-process Store used for STORE_BACKEND=memory and tests.
// Records are copied on the way in and out.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]types.EntitlementRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]types.EntitlementRecord)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, userID string) (*types.EntitlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, rec *types.EntitlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.UserID]; ok {
		return nil
	}
	s.records[rec.UserID] = *cloneRecord(*rec)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, userID string, m types.RecordMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		rec = *types.NewFreeRecord(userID, m.UpdatedAt)
	}
	rec.MonthlyUsageCount += m.UsageIncrement
	rec.TotalUsageCount += m.UsageIncrement
	if m.Plan != nil {
		rec.PlanType = m.Plan.Type
		rec.PremiumExpiresAt = nil
		if m.Plan.ExpiresAt != nil {
			t := *m.Plan.ExpiresAt
			rec.PremiumExpiresAt = &t
		}
	}
	rec.UpdatedAt = m.UpdatedAt
	s.records[userID] = rec
	return nil
}

// Seed stores rec verbatim, replacing any existing record.
func (s *MemoryStore) Seed(rec types.EntitlementRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserID] = *cloneRecord(rec)
}

func cloneRecord(rec types.EntitlementRecord) *types.EntitlementRecord {
	out := rec
	if rec.PremiumExpiresAt != nil {
		t := *rec.PremiumExpiresAt
		out.PremiumExpiresAt = &t
	}
	return &out
}
