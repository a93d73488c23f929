package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Mock Rows (payment_history) ---

type paymentRowData struct {
	id, sessionID, userID, intentID, planKey string
	amount                                   int64
	currency, status, provider               string
	createdAt                                time.Time
}

type paymentMockRows struct {
	data    []paymentRowData
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func (r *paymentMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *paymentMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	*dest[0].(*string) = row.id
	*dest[1].(*string) = row.sessionID
	*dest[2].(*string) = row.userID
	*dest[3].(*string) = row.intentID
	*dest[4].(*string) = row.planKey
	*dest[5].(*int64) = row.amount
	*dest[6].(*string) = row.currency
	*dest[7].(*string) = row.status
	*dest[8].(*string) = row.provider
	*dest[9].(*time.Time) = row.createdAt
	return nil
}

func (r *paymentMockRows) Close()                                       { r.closed = true }
func (r *paymentMockRows) Err() error                                   { return r.errVal }
func (r *paymentMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *paymentMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *paymentMockRows) RawValues() [][]byte                          { return nil }
func (r *paymentMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *paymentMockRows) Conn() *pgx.Conn                              { return nil }
