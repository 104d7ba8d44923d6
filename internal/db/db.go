package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnvDatabaseURL overrides history.dsn from the config file.
const EnvDatabaseURL = "PRBUILD_DATABASE_URL"

// ErrNotConfigured is returned by Open when no DSN is available.
var ErrNotConfigured = errors.New("run history database not configured")

// DB wraps the Postgres connection pool holding run history.
type DB struct {
	pool *pgxpool.Pool
}

// Open connects to the database at dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, ErrNotConfigured
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases all pooled connections.
func (d *DB) Close() {
	d.pool.Close()
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
    id           BIGSERIAL PRIMARY KEY,
    run_id       TEXT NOT NULL UNIQUE,
    pipeline     TEXT NOT NULL,
    mode         TEXT NOT NULL CHECK(mode IN ('automated-pr','manual-pr','manual-branch','default-branch')),
    pr_number    TEXT,
    branch_ref   TEXT,
    sha          TEXT,
    outcome      TEXT NOT NULL CHECK(outcome IN ('success','failure','unstable')),
    failed_step  TEXT,
    error        TEXT,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_pr ON runs(pr_number, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_branch ON runs(branch_ref, started_at DESC);

CREATE TABLE IF NOT EXISTS run_steps (
    id          BIGSERIAL PRIMARY KEY,
    run_id      BIGINT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    name        TEXT NOT NULL,
    passed      BOOLEAN NOT NULL,
    exit_code   INTEGER,
    duration_ms INTEGER,
    summary     TEXT
);
CREATE INDEX IF NOT EXISTS idx_run_steps_run ON run_steps(run_id, position);
`

// Migrate applies the database schema.
func (d *DB) Migrate(ctx context.Context) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES (1) ON CONFLICT DO NOTHING"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit(ctx)
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset(ctx context.Context) error {
	tables := []string{"run_steps", "runs", "schema_version"}
	for _, t := range tables {
		if _, err := d.pool.Exec(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate(ctx)
}
