package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tourism/internal/billing"
	"tourism/internal/core"
	"tourism/internal/entitlement"
	"tourism/internal/types"
)

var (
	discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testNow       = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
)

// fixture wires the real entitlement components over a MemoryStore.
type fixture struct {
	store    *entitlement.MemoryStore
	engine   *entitlement.Engine
	recorder *entitlement.Recorder
	granter  *entitlement.Granter
	clock    types.FixedClock
}

func newFixture() *fixture {
	store := entitlement.NewMemoryStore()
	clock := types.FixedClock{T: testNow}
	return &fixture{
		store:    store,
		engine:   entitlement.NewEngine(store, 5, discardLogger),
		recorder: entitlement.NewRecorder(store, clock, discardLogger),
		granter:  entitlement.NewGranter(store, discardLogger),
		clock:    clock,
	}
}

func (f *fixture) seed(userID string, plan types.PlanType, expires *time.Time, monthly int) {
	f.store.Seed(types.EntitlementRecord{
		UserID:            userID,
		PlanType:          plan,
		PremiumExpiresAt:  expires,
		MonthlyUsageCount: monthly,
		TotalUsageCount:   monthly,
		CreatedAt:         testNow.Add(-48 * time.Hour),
		UpdatedAt:         testNow.Add(-48 * time.Hour),
	})
}

func testCatalog() *billing.Catalog {
	return billing.NewCatalog(map[string]string{
		billing.PlanKey7Days:  "price_7d",
		billing.PlanKey20Days: "price_20d",
	})
}

func authedRequest(method, target, body, userID string) *http.Request {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, rdr)
	if userID != "" {
		r = r.WithContext(types.WithActor(r.Context(), types.Actor{
			ID:     userID,
			Type:   types.ActorTypeUser,
			Email:  userID + "@example.com",
			Source: types.ActorSourceHeader,
		}))
	}
	return r
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[core.APIErrorResponse](t, rec).Error.Code
}

// failingStore fails every call.
type failingStore struct{}

var errStoreDown = errors.New("store unreachable")

func (failingStore) Get(context.Context, string) (*types.EntitlementRecord, error) {
	return nil, errStoreDown
}

func (failingStore) PutIfAbsent(context.Context, *types.EntitlementRecord) error { return errStoreDown }

func (failingStore) Update(context.Context, string, types.RecordMutation) error { return errStoreDown }
