// Package sqlite persists targets and check history in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id              TEXT PRIMARY KEY,
	product_id      TEXT NOT NULL,
	url             TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	active          INTEGER NOT NULL DEFAULT 1,
	available       INTEGER NOT NULL DEFAULT 0,
	last_checked_at TEXT,
	last_error      TEXT NOT NULL DEFAULT '',
	owner           TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_targets_active_url ON targets (url) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_targets_owner ON targets (owner, created_at);

CREATE TABLE IF NOT EXISTS check_records (
	id           TEXT PRIMARY KEY,
	target_id    TEXT NOT NULL,
	available    INTEGER,
	latency_ms   INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	changed      INTEGER NOT NULL DEFAULT 0,
	cached       INTEGER NOT NULL DEFAULT 0,
	snapshot_uri TEXT NOT NULL DEFAULT '',
	checked_at   TEXT NOT NULL,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_check_records_target_checked_at ON check_records (target_id, checked_at DESC);
`

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const targetColumns = `id, product_id, url, name, active, available, last_checked_at, last_error, owner, created_at, updated_at`

// TargetStore implements monitor.TargetStore on SQLite.
type TargetStore struct {
	db *sql.DB
}

// New opens (or creates) the database at path and applies the schema.
func New(ctx context.Context, path string) (*TargetStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &TargetStore{db: db}, nil
}

// Ping verifies the database file is usable.
func (s *TargetStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *TargetStore) Close() error { return s.db.Close() }

// Create inserts target. Any uniqueness conflict reports monitor.ErrDuplicateTarget.
func (s *TargetStore) Create(ctx context.Context, target monitor.Target) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO targets (`+targetColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`,
		target.ID,
		target.ProductID,
		target.URL,
		target.Name,
		target.Active,
		target.Available,
		formatTimePtr(target.LastCheckedAt),
		target.LastError,
		target.Owner,
		formatTime(target.CreatedAt),
		formatTime(target.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", monitor.ErrDuplicateTarget, target.URL)
	}
	return nil
}

// Save updates the mutable columns of target.
func (s *TargetStore) Save(ctx context.Context, target monitor.Target) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE targets
SET name = ?, active = ?, available = ?, last_checked_at = ?, last_error = ?, updated_at = ?
WHERE id = ?`,
		target.Name,
		target.Active,
		target.Available,
		formatTimePtr(target.LastCheckedAt),
		target.LastError,
		formatTime(target.UpdatedAt),
		target.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: target %s", monitor.ErrNotFound, target.ID)
	}
	return nil
}

// RecordCheck writes the outcome of a check onto an active target. No
// matching active row means the target was removed meanwhile.
func (s *TargetStore) RecordCheck(ctx context.Context, update monitor.CheckUpdate) error {
	var available sql.NullBool
	if update.Available != nil {
		available = sql.NullBool{Bool: *update.Available, Valid: true}
	}
	checkedAt := formatTime(update.CheckedAt)
	res, err := s.db.ExecContext(ctx, `
UPDATE targets
SET available = COALESCE(?, available), last_checked_at = ?, last_error = ?, updated_at = ?
WHERE id = ? AND active = 1`,
		available,
		checkedAt,
		update.LastError,
		checkedAt,
		update.TargetID,
	)
	if err != nil {
		return fmt.Errorf("failed to record check: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: target %s", monitor.ErrInactive, update.TargetID)
	}
	return nil
}

// ListActive returns every active target, oldest first.
func (s *TargetStore) ListActive(ctx context.Context) ([]monitor.Target, error) {
	return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets WHERE active = 1 ORDER BY created_at, id`)
}

// ListByOwner returns owner's active targets, oldest first.
func (s *TargetStore) ListByOwner(ctx context.Context, owner string) ([]monitor.Target, error) {
	return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets WHERE active = 1 AND owner = ? ORDER BY created_at, id`, owner)
}

// FindByIdentifierOrURL matches key against id, product id or URL, preferring
// active and then newer targets.
func (s *TargetStore) FindByIdentifierOrURL(ctx context.Context, key string) (monitor.Target, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+targetColumns+` FROM targets
WHERE id = ?1 OR product_id = ?1 OR url = ?1
ORDER BY active DESC, created_at DESC
LIMIT 1`, key)
	target, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return monitor.Target{}, fmt.Errorf("%w: %s", monitor.ErrNotFound, key)
	}
	if err != nil {
		return monitor.Target{}, fmt.Errorf("failed to find target: %w", err)
	}
	return target, nil
}

// InsertCheck appends one check record.
func (s *TargetStore) InsertCheck(ctx context.Context, record monitor.CheckRecord) error {
	var available sql.NullBool
	if record.Available != nil {
		available = sql.NullBool{Bool: *record.Available, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO check_records (id, target_id, available, latency_ms, error, changed, cached, snapshot_uri, checked_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.TargetID,
		available,
		record.LatencyMs,
		record.Error,
		record.Changed,
		record.Cached,
		record.SnapshotURI,
		formatTime(record.CheckedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert check record: %w", err)
	}
	return nil
}

// ListChecks returns up to limit records, newest first. limit <= 0 means all.
func (s *TargetStore) ListChecks(ctx context.Context, targetID string, limit int) ([]monitor.CheckRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, target_id, available, latency_ms, error, changed, cached, snapshot_uri, checked_at
FROM check_records
WHERE target_id = ?
ORDER BY checked_at DESC
LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query check records: %w", err)
	}
	defer rows.Close()

	var out []monitor.CheckRecord
	for rows.Next() {
		var (
			r         monitor.CheckRecord
			available sql.NullBool
			checkedAt string
		)
		if err := rows.Scan(&r.ID, &r.TargetID, &available, &r.LatencyMs, &r.Error, &r.Changed, &r.Cached, &r.SnapshotURI, &checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan check record: %w", err)
		}
		if available.Valid {
			r.Available = &available.Bool
		}
		r.Latency = time.Duration(r.LatencyMs) * time.Millisecond
		if r.CheckedAt, err = parseTime("checked_at", checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan check record %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *TargetStore) queryTargets(ctx context.Context, query string, args ...any) ([]monitor.Target, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var out []monitor.Target
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		out = append(out, target)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(row scanner) (monitor.Target, error) {
	var (
		t                    monitor.Target
		lastChecked          sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&t.ID,
		&t.ProductID,
		&t.URL,
		&t.Name,
		&t.Active,
		&t.Available,
		&lastChecked,
		&t.LastError,
		&t.Owner,
		&createdAt,
		&updatedAt,
	); err != nil {
		return monitor.Target{}, err
	}
	if lastChecked.Valid {
		at, err := parseTime("last_checked_at", lastChecked.String)
		if err != nil {
			return monitor.Target{}, err
		}
		t.LastCheckedAt = &at
	}
	var err error
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return monitor.Target{}, err
	}
	if t.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return monitor.Target{}, err
	}
	return t, nil
}

func parseTime(column, value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s %q: %w", column, value, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
