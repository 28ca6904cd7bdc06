package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

func newStore(t *testing.T) *TargetStore {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "targets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func target(id, productID, owner string, created time.Time) monitor.Target {
	return monitor.Target{
		ID:        id,
		ProductID: productID,
		URL:       "https://www.example.com/us/products/" + productID + "/Item",
		Name:      "Item",
		Active:    true,
		Owner:     owner,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateAndFind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, target("t-1", "1739", "alice", created)))

	for _, key := range []string{"t-1", "1739", "https://www.example.com/us/products/1739/Item"} {
		got, err := store.FindByIdentifierOrURL(ctx, key)
		require.NoError(t, err, key)
		require.Equal(t, "t-1", got.ID)
		require.True(t, got.CreatedAt.Equal(created))
		require.Nil(t, got.LastCheckedAt)
	}

	_, err := store.FindByIdentifierOrURL(ctx, "missing")
	require.ErrorIs(t, err, monitor.ErrNotFound)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, target("t-1", "1739", "alice", created)))

	err := store.Create(ctx, target("t-2", "1739", "bob", created))
	require.ErrorIs(t, err, monitor.ErrDuplicateTarget)

	err = store.Create(ctx, target("t-1", "2468", "bob", created))
	require.ErrorIs(t, err, monitor.ErrDuplicateTarget)
}

func TestInactiveURLCanBeReadded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := target("t-1", "1739", "alice", created)
	require.NoError(t, store.Create(ctx, old))

	old.Active = false
	old.UpdatedAt = created.Add(time.Minute)
	require.NoError(t, store.Save(ctx, old))

	require.NoError(t, store.Create(ctx, target("t-2", "1739", "alice", created.Add(time.Hour))))

	got, err := store.FindByIdentifierOrURL(ctx, "1739")
	require.NoError(t, err)
	require.Equal(t, "t-2", got.ID)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "t-2", active[0].ID)
}

func TestSave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tg := target("t-1", "1739", "alice", created)
	require.NoError(t, store.Create(ctx, tg))

	checked := created.Add(5 * time.Minute)
	tg.Available = true
	tg.LastCheckedAt = &checked
	tg.LastError = "render timed out"
	require.NoError(t, store.Save(ctx, tg))

	got, err := store.FindByIdentifierOrURL(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, got.Available)
	require.NotNil(t, got.LastCheckedAt)
	require.True(t, got.LastCheckedAt.Equal(checked))
	require.Equal(t, "render timed out", got.LastError)

	require.ErrorIs(t, store.Save(ctx, target("nope", "1", "x", created)), monitor.ErrNotFound)
}

func TestRecordCheckSkipsRemovedTargets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tg := target("t-1", "1739", "alice", created)
	require.NoError(t, store.Create(ctx, tg))

	checked := created.Add(time.Minute)
	yes := true
	require.NoError(t, store.RecordCheck(ctx, monitor.CheckUpdate{TargetID: "t-1", Available: &yes, CheckedAt: checked}))
	require.NoError(t, store.RecordCheck(ctx, monitor.CheckUpdate{TargetID: "t-1", LastError: "pool exhausted", CheckedAt: checked.Add(time.Minute)}))

	got, err := store.FindByIdentifierOrURL(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, got.Active)
	require.True(t, got.Available)
	require.Equal(t, "pool exhausted", got.LastError)
	require.True(t, got.UpdatedAt.Equal(checked.Add(time.Minute)))

	got.Active = false
	require.NoError(t, store.Save(ctx, got))
	err = store.RecordCheck(ctx, monitor.CheckUpdate{TargetID: "t-1", Available: &yes, CheckedAt: checked.Add(time.Hour)})
	require.ErrorIs(t, err, monitor.ErrInactive)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestCorruptTimestampIsAnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, target("t-1", "1739", "alice", created)))
	_, err := store.db.ExecContext(ctx, `UPDATE targets SET created_at = 'yesterday' WHERE id = 't-1'`)
	require.NoError(t, err)

	_, err = store.ListActive(ctx)
	require.ErrorContains(t, err, "created_at")
	_, err = store.FindByIdentifierOrURL(ctx, "t-1")
	require.ErrorContains(t, err, "created_at")
}

func TestListByOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, target("t-1", "1", "alice", created)))
	require.NoError(t, store.Create(ctx, target("t-2", "2", "bob", created.Add(time.Second))))
	require.NoError(t, store.Create(ctx, target("t-3", "3", "alice", created.Add(2*time.Second))))

	got, err := store.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "t-1", got[0].ID)
	require.Equal(t, "t-3", got[1].ID)
}

func TestChecksNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, target("t-1", "1739", "alice", created)))

	yes := true
	for i := 0; i < 3; i++ {
		rec := monitor.CheckRecord{
			ID:        "c-" + string(rune('a'+i)),
			TargetID:  "t-1",
			LatencyMs: int64(100 * (i + 1)),
			CheckedAt: created.Add(time.Duration(i) * time.Minute),
		}
		if i == 2 {
			rec.Available = &yes
			rec.Changed = true
			rec.SnapshotURI = "memory://snap"
		} else {
			rec.Error = "render timed out"
		}
		require.NoError(t, store.InsertCheck(ctx, rec))
	}

	got, err := store.ListChecks(ctx, "t-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c-c", got[0].ID)
	require.NotNil(t, got[0].Available)
	require.True(t, *got[0].Available)
	require.Equal(t, 300*time.Millisecond, got[0].Latency)
	require.Equal(t, "memory://snap", got[0].SnapshotURI)
	require.Nil(t, got[1].Available)
	require.Equal(t, "render timed out", got[1].Error)

	all, err := store.ListChecks(ctx, "t-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestPingAndClose(t *testing.T) {
	t.Parallel()

	store, err := New(context.Background(), filepath.Join(t.TempDir(), "ping.db"))
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	require.Error(t, store.Ping(context.Background()))
}
