package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

var targetCols = []string{"id", "product_id", "url", "name", "active", "available", "last_checked_at", "last_error", "owner", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*TargetStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store, err := NewTargetStoreWithPool(mock)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mock.ExpectationsWereMet()) })
	return store, mock
}

func sampleTarget() monitor.Target {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return monitor.Target{
		ID:        "t-1",
		ProductID: "1739",
		URL:       "https://www.example.com/us/products/1739/Plush",
		Name:      "Plush",
		Active:    true,
		Owner:     "alice",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestNewTargetStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewTargetStoreWithPool(nil)
	require.Error(t, err)
}

func TestNewTargetStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewTargetStore(context.Background(), Config{})
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, store.Migrate(context.Background()))
}

func TestMigrateError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS targets").WillReturnError(errors.New("denied"))
	require.ErrorContains(t, store.Migrate(context.Background()), "denied")
}

func TestCreate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	target := sampleTarget()
	mock.ExpectExec("INSERT INTO targets").
		WithArgs(target.ID, target.ProductID, target.URL, target.Name, true, false, target.LastCheckedAt, "", "alice", target.CreatedAt, target.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), target))
}

func TestCreateDuplicate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO targets").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := store.Create(context.Background(), sampleTarget())
	require.ErrorIs(t, err, monitor.ErrDuplicateTarget)
}

func TestSave(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	target := sampleTarget()
	now := target.CreatedAt.Add(time.Minute)
	target.LastCheckedAt = &now
	target.Available = true
	mock.ExpectExec("UPDATE targets").
		WithArgs(target.ID, target.Name, true, true, target.LastCheckedAt, "", target.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Save(context.Background(), target))
}

func TestSaveMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE targets").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.ErrorIs(t, store.Save(context.Background(), sampleTarget()), monitor.ErrNotFound)
}

func TestRecordCheck(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)
	yes := true
	mock.ExpectExec(`(?s)UPDATE targets.*COALESCE\(\$2, available\).*WHERE id = \$1 AND active`).
		WithArgs("t-1", &yes, at, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RecordCheck(context.Background(), monitor.CheckUpdate{TargetID: "t-1", Available: &yes, CheckedAt: at}))
}

func TestRecordCheckInactive(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE targets").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.RecordCheck(context.Background(), monitor.CheckUpdate{TargetID: "t-1", LastError: "unreachable"})
	require.ErrorIs(t, err, monitor.ErrInactive)
}

func TestListActive(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	target := sampleTarget()
	checked := target.CreatedAt.Add(time.Hour)
	rows := pgxmock.NewRows(targetCols).
		AddRow(target.ID, target.ProductID, target.URL, target.Name, true, false, nil, "", "alice", target.CreatedAt, target.UpdatedAt).
		AddRow("t-2", "2468", "https://www.example.com/us/products/2468/x", "x", true, true, checked, "boom", "bob", target.CreatedAt, target.UpdatedAt)
	mock.ExpectQuery("FROM targets WHERE active ORDER BY created_at").WillReturnRows(rows)

	got, err := store.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Nil(t, got[0].LastCheckedAt)
	require.NotNil(t, got[1].LastCheckedAt)
	require.True(t, got[1].LastCheckedAt.Equal(checked))
	require.Equal(t, "boom", got[1].LastError)
}

func TestListByOwner(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	target := sampleTarget()
	rows := pgxmock.NewRows(targetCols).
		AddRow(target.ID, target.ProductID, target.URL, target.Name, true, false, nil, "", "alice", target.CreatedAt, target.UpdatedAt)
	mock.ExpectQuery("owner = \\$1").WithArgs("alice").WillReturnRows(rows)

	got, err := store.ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "alice", got[0].Owner)
}

func TestListActiveQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM targets").WillReturnError(errors.New("down"))

	_, err := store.ListActive(context.Background())
	require.ErrorContains(t, err, "down")
}

func TestFindByIdentifierOrURL(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	target := sampleTarget()
	rows := pgxmock.NewRows(targetCols).
		AddRow(target.ID, target.ProductID, target.URL, target.Name, true, false, nil, "", "alice", target.CreatedAt, target.UpdatedAt)
	mock.ExpectQuery("WHERE id = \\$1 OR product_id = \\$1 OR url = \\$1").WithArgs("1739").WillReturnRows(rows)

	got, err := store.FindByIdentifierOrURL(context.Background(), "1739")
	require.NoError(t, err)
	require.Equal(t, target.ID, got.ID)
}

func TestFindByIdentifierOrURLMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM targets").WithArgs("404").WillReturnError(pgx.ErrNoRows)

	_, err := store.FindByIdentifierOrURL(context.Background(), "404")
	require.ErrorIs(t, err, monitor.ErrNotFound)
}

func TestInsertCheck(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	available := true
	record := monitor.CheckRecord{
		ID:        "c-1",
		TargetID:  "t-1",
		Available: &available,
		LatencyMs: 250,
		Changed:   true,
		CheckedAt: time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC),
	}
	mock.ExpectExec("INSERT INTO check_records").
		WithArgs("c-1", "t-1", &available, int64(250), "", true, false, "", record.CheckedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertCheck(context.Background(), record))
}

func TestListChecks(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "target_id", "available", "latency_ms", "error", "changed", "cached", "snapshot_uri", "checked_at"}).
		AddRow("c-2", "t-1", true, int64(120), "", true, false, "memory://a", at.Add(time.Minute)).
		AddRow("c-1", "t-1", nil, int64(3000), "render timed out", false, false, "", at)
	mock.ExpectQuery("FROM check_records").WithArgs("t-1", 10).WillReturnRows(rows)

	got, err := store.ListChecks(context.Background(), "t-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Available)
	require.True(t, *got[0].Available)
	require.Equal(t, 120*time.Millisecond, got[0].Latency)
	require.Nil(t, got[1].Available)
	require.Equal(t, "render timed out", got[1].Error)
}

func TestListChecksWithoutLimit(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"id", "target_id", "available", "latency_ms", "error", "changed", "cached", "snapshot_uri", "checked_at"})
	mock.ExpectQuery("FROM check_records").WithArgs("t-1", nil).WillReturnRows(rows)

	got, err := store.ListChecks(context.Background(), "t-1", 0)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store, err := NewTargetStoreWithPool(mock)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mock.ExpectationsWereMet()) })

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("refused"))
	require.ErrorContains(t, store.Ping(context.Background()), "refused")
}
