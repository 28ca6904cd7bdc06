package postgres

// schema is applied statement by statement by Migrate.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS targets (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	url TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	available BOOLEAN NOT NULL DEFAULT FALSE,
	last_checked_at TIMESTAMPTZ,
	last_error TEXT NOT NULL DEFAULT '',
	owner TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS targets_active_url_idx ON targets (url) WHERE active`,
	`CREATE INDEX IF NOT EXISTS targets_owner_idx ON targets (owner) WHERE active`,
	`CREATE TABLE IF NOT EXISTS check_records (
	id TEXT PRIMARY KEY,
	target_id TEXT NOT NULL REFERENCES targets (id),
	available BOOLEAN,
	latency_ms BIGINT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	changed BOOLEAN NOT NULL DEFAULT FALSE,
	cached BOOLEAN NOT NULL DEFAULT FALSE,
	snapshot_uri TEXT NOT NULL DEFAULT '',
	checked_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS check_records_target_time_idx ON check_records (target_id, checked_at DESC)`,
}
