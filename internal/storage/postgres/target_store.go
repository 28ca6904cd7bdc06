// Package postgres persists targets and check history in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

const uniqueViolation = "23505"

const targetColumns = `id, product_id, url, name, active, available, last_checked_at, last_error, owner, created_at, updated_at`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// TargetStore implements monitor.TargetStore on Postgres.
type TargetStore struct {
	pool pgxPool
}

// NewTargetStore connects a pool using cfg.
func NewTargetStore(ctx context.Context, cfg Config) (*TargetStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &TargetStore{pool: pool}, nil
}

// NewTargetStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewTargetStoreWithPool(pool pgxPool) (*TargetStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TargetStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *TargetStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *TargetStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *TargetStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Create inserts target. The partial unique index on active URLs turns a
// duplicate into monitor.ErrDuplicateTarget.
func (s *TargetStore) Create(ctx context.Context, target monitor.Target) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO targets (`+targetColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		target.ID,
		target.ProductID,
		target.URL,
		target.Name,
		target.Active,
		target.Available,
		target.LastCheckedAt,
		target.LastError,
		target.Owner,
		target.CreatedAt,
		target.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", monitor.ErrDuplicateTarget, target.URL)
		}
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

// Save updates the mutable columns of target.
func (s *TargetStore) Save(ctx context.Context, target monitor.Target) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE targets
SET name = $2, active = $3, available = $4, last_checked_at = $5, last_error = $6, updated_at = $7
WHERE id = $1`,
		target.ID,
		target.Name,
		target.Active,
		target.Available,
		target.LastCheckedAt,
		target.LastError,
		target.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: target %s", monitor.ErrNotFound, target.ID)
	}
	return nil
}

// RecordCheck writes the outcome of a check onto an active target. No
// matching active row means the target was removed meanwhile.
func (s *TargetStore) RecordCheck(ctx context.Context, update monitor.CheckUpdate) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE targets
SET available = COALESCE($2, available), last_checked_at = $3, last_error = $4, updated_at = $3
WHERE id = $1 AND active`,
		update.TargetID,
		update.Available,
		update.CheckedAt,
		update.LastError,
	)
	if err != nil {
		return fmt.Errorf("record check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: target %s", monitor.ErrInactive, update.TargetID)
	}
	return nil
}

// ListActive returns every active target, oldest first.
func (s *TargetStore) ListActive(ctx context.Context) ([]monitor.Target, error) {
	return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets WHERE active ORDER BY created_at`)
}

// ListByOwner returns owner's active targets, oldest first.
func (s *TargetStore) ListByOwner(ctx context.Context, owner string) ([]monitor.Target, error) {
	return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets WHERE active AND owner = $1 ORDER BY created_at`, owner)
}

// FindByIdentifierOrURL matches key against id, product id or URL, preferring
// active and then newer targets.
func (s *TargetStore) FindByIdentifierOrURL(ctx context.Context, key string) (monitor.Target, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+targetColumns+` FROM targets
WHERE id = $1 OR product_id = $1 OR url = $1
ORDER BY active DESC, created_at DESC
LIMIT 1`, key)
	target, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Target{}, fmt.Errorf("%w: %s", monitor.ErrNotFound, key)
	}
	if err != nil {
		return monitor.Target{}, fmt.Errorf("find target: %w", err)
	}
	return target, nil
}

// InsertCheck appends one check record.
func (s *TargetStore) InsertCheck(ctx context.Context, record monitor.CheckRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO check_records (id, target_id, available, latency_ms, error, changed, cached, snapshot_uri, checked_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		record.ID,
		record.TargetID,
		record.Available,
		record.LatencyMs,
		record.Error,
		record.Changed,
		record.Cached,
		record.SnapshotURI,
		record.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert check record: %w", err)
	}
	return nil
}

// ListChecks returns up to limit records, newest first. limit <= 0 means all.
func (s *TargetStore) ListChecks(ctx context.Context, targetID string, limit int) ([]monitor.CheckRecord, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, target_id, available, latency_ms, error, changed, cached, snapshot_uri, checked_at
FROM check_records
WHERE target_id = $1
ORDER BY checked_at DESC
LIMIT $2`, targetID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("query check records: %w", err)
	}
	defer rows.Close()

	var out []monitor.CheckRecord
	for rows.Next() {
		var (
			r         monitor.CheckRecord
			available sql.NullBool
		)
		if err := rows.Scan(
			&r.ID,
			&r.TargetID,
			&available,
			&r.LatencyMs,
			&r.Error,
			&r.Changed,
			&r.Cached,
			&r.SnapshotURI,
			&r.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("scan check record: %w", err)
		}
		if available.Valid {
			r.Available = &available.Bool
		}
		r.Latency = time.Duration(r.LatencyMs) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check records: %w", err)
	}
	return out, nil
}

func (s *TargetStore) queryTargets(ctx context.Context, query string, args ...any) ([]monitor.Target, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var out []monitor.Target
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return out, nil
}

func scanTarget(row pgx.Row) (monitor.Target, error) {
	var (
		t       monitor.Target
		checked sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.ProductID,
		&t.URL,
		&t.Name,
		&t.Active,
		&t.Available,
		&checked,
		&t.LastError,
		&t.Owner,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if checked.Valid {
		at := checked.Time
		t.LastCheckedAt = &at
	}
	return t, err
}
