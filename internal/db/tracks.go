package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eviatarm/go-spotify-history-enricher/internal/spotify"
)

// TrackMetadataRepository handles the track side of the enrichment cache.
type TrackMetadataRepository struct {
	pool *pgxpool.Pool
}

// UpsertBatch writes one batch of fetched metadata. Each row is replaced
// atomically, so concurrent batch completions cannot interleave within an
// entry (last-fetched-wins).
func (r *TrackMetadataRepository) UpsertBatch(ctx context.Context, metas []spotify.TrackMetadata, fetchedAt time.Time) error {
	if len(metas) == 0 {
		return nil
	}

	query := `
		INSERT INTO track_metadata (id, metadata, fetched_at)
		SELECT * FROM unnest($1::text[], $2::jsonb[], $3::timestamptz[])
		ON CONFLICT (id) DO UPDATE SET
			metadata = EXCLUDED.metadata,
			fetched_at = EXCLUDED.fetched_at
	`

	ids := make([]string, len(metas))
	docs := make([][]byte, len(metas))
	fetchedAts := make([]time.Time, len(metas))

	for i, m := range metas {
		doc, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encoding track metadata %s: %w", m.ID, err)
		}
		ids[i] = m.ID
		docs[i] = doc
		fetchedAts[i] = fetchedAt
	}

	_, err := r.pool.Exec(ctx, query, ids, docs, fetchedAts)
	if err != nil {
		return fmt.Errorf("batch upserting track metadata: %w", err)
	}
	return nil
}

// GetBatch retrieves cache entries for the given track IDs. Missing IDs are
// simply absent from the result.
func (r *TrackMetadataRepository) GetBatch(ctx context.Context, ids []string) (map[string]CachedTrack, error) {
	result := make(map[string]CachedTrack, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, metadata, fetched_at
		FROM track_metadata
		WHERE id = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("querying track metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        string
			doc       []byte
			fetchedAt time.Time
		)
		if err := rows.Scan(&id, &doc, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scanning track metadata: %w", err)
		}

		var meta spotify.TrackMetadata
		if err := json.Unmarshal(doc, &meta); err != nil {
			return nil, fmt.Errorf("decoding track metadata %s: %w", id, err)
		}
		result[id] = CachedTrack{Meta: meta, FetchedAt: fetchedAt}
	}
	return result, rows.Err()
}

// Count returns the number of cached track entries.
func (r *TrackMetadataRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM track_metadata`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting track metadata: %w", err)
	}
	return count, nil
}

// Invalidate deletes cache entries for the given track IDs.
func (r *TrackMetadataRepository) Invalidate(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM track_metadata WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("invalidating track metadata: %w", err)
	}
	return nil
}
