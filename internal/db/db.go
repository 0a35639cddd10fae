// Package db provides the PostgreSQL-backed enrichment cache: fetched
// track and artist metadata, recorded fetch failures, and run reports.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool and verifies connectivity.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Pool returns the underlying connection pool for advanced operations.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Tracks returns a TrackMetadataRepository.
func (db *DB) Tracks() *TrackMetadataRepository {
	return &TrackMetadataRepository{pool: db.pool}
}

// Artists returns an ArtistMetadataRepository.
func (db *DB) Artists() *ArtistMetadataRepository {
	return &ArtistMetadataRepository{pool: db.pool}
}

// Failures returns a FailureRepository.
func (db *DB) Failures() *FailureRepository {
	return &FailureRepository{pool: db.pool}
}

// Runs returns a RunRepository.
func (db *DB) Runs() *RunRepository {
	return &RunRepository{pool: db.pool}
}
