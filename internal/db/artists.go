package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eviatarm/go-spotify-history-enricher/internal/spotify"
)

// ArtistMetadataRepository handles the artist side of the enrichment cache.
type ArtistMetadataRepository struct {
	pool *pgxpool.Pool
}

// UpsertBatch writes one batch of fetched artist metadata.
func (r *ArtistMetadataRepository) UpsertBatch(ctx context.Context, metas []spotify.ArtistMetadata, fetchedAt time.Time) error {
	if len(metas) == 0 {
		return nil
	}

	query := `
		INSERT INTO artist_metadata (id, metadata, fetched_at)
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
			return fmt.Errorf("encoding artist metadata %s: %w", m.ID, err)
		}
		ids[i] = m.ID
		docs[i] = doc
		fetchedAts[i] = fetchedAt
	}

	_, err := r.pool.Exec(ctx, query, ids, docs, fetchedAts)
	if err != nil {
		return fmt.Errorf("batch upserting artist metadata: %w", err)
	}
	return nil
}

// GetBatch retrieves cache entries for the given artist IDs.
func (r *ArtistMetadataRepository) GetBatch(ctx context.Context, ids []string) (map[string]CachedArtist, error) {
	result := make(map[string]CachedArtist, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, metadata, fetched_at
		FROM artist_metadata
		WHERE id = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("querying artist metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        string
			doc       []byte
			fetchedAt time.Time
		)
		if err := rows.Scan(&id, &doc, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scanning artist metadata: %w", err)
		}

		var meta spotify.ArtistMetadata
		if err := json.Unmarshal(doc, &meta); err != nil {
			return nil, fmt.Errorf("decoding artist metadata %s: %w", id, err)
		}
		result[id] = CachedArtist{Meta: meta, FetchedAt: fetchedAt}
	}
	return result, rows.Err()
}
