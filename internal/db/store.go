package db

import (
	"context"
	"time"

	"github.com/eviatarm/go-spotify-history-enricher/internal/spotify"
)

// Convenience methods so *DB satisfies the enrichment pipeline's Store
// interface directly.

// CachedTracks returns the cache entries for the given track IDs.
func (db *DB) CachedTracks(ctx context.Context, ids []string) (map[string]CachedTrack, error) {
	return db.Tracks().GetBatch(ctx, ids)
}

// PutTracks persists one batch of fetched track metadata.
func (db *DB) PutTracks(ctx context.Context, metas []spotify.TrackMetadata, fetchedAt time.Time) error {
	return db.Tracks().UpsertBatch(ctx, metas, fetchedAt)
}

// CachedArtists returns the cache entries for the given artist IDs.
func (db *DB) CachedArtists(ctx context.Context, ids []string) (map[string]CachedArtist, error) {
	return db.Artists().GetBatch(ctx, ids)
}

// PutArtists persists one batch of fetched artist metadata.
func (db *DB) PutArtists(ctx context.Context, metas []spotify.ArtistMetadata, fetchedAt time.Time) error {
	return db.Artists().UpsertBatch(ctx, metas, fetchedAt)
}

// FailuresFor returns recorded failures of one kind for the given IDs.
func (db *DB) FailuresFor(ctx context.Context, kind string, ids []string) (map[string]FetchFailure, error) {
	return db.Failures().GetBatch(ctx, kind, ids)
}

// RecordFailures persists failure records.
func (db *DB) RecordFailures(ctx context.Context, failures []FetchFailure) error {
	return db.Failures().UpsertBatch(ctx, failures)
}

// ResolveFailures removes failure records for now-enriched identifiers.
func (db *DB) ResolveFailures(ctx context.Context, kind string, ids []string) error {
	return db.Failures().ResolveBatch(ctx, kind, ids)
}

// SaveRun stores a completed run report.
func (db *DB) SaveRun(ctx context.Context, run *Run) error {
	return db.Runs().Insert(ctx, run)
}
