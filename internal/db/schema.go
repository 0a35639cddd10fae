package db

import (
	"context"
	"fmt"
)

// schemaStatements creates the cache tables. Metadata is stored as one
// JSONB document per identifier so a cache entry is written and replaced
// atomically (last-fetched-wins).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS track_metadata (
		id         TEXT PRIMARY KEY,
		metadata   JSONB NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS artist_metadata (
		id         TEXT PRIMARY KEY,
		metadata   JSONB NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fetch_failures (
		id         TEXT NOT NULL,
		kind       TEXT NOT NULL,
		reason     TEXT NOT NULL,
		attempts   INT NOT NULL DEFAULT 1,
		last_error TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (id, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS enrichment_runs (
		id          UUID PRIMARY KEY,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		report      JSONB NOT NULL
	)`,
}

// EnsureSchema creates the cache tables if they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}
