package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FailureRepository records identifiers that could not be enriched.
type FailureRepository struct {
	pool *pgxpool.Pool
}

// UpsertBatch writes failure records. Attempt counts are computed by the
// caller (prior attempts were read during partitioning), so the upsert
// stores them as given.
func (r *FailureRepository) UpsertBatch(ctx context.Context, failures []FetchFailure) error {
	if len(failures) == 0 {
		return nil
	}

	query := `
		INSERT INTO fetch_failures (id, kind, reason, attempts, last_error, updated_at)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::int[], $5::text[], $6::timestamptz[])
		ON CONFLICT (id, kind) DO UPDATE SET
			reason = EXCLUDED.reason,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
	`

	ids := make([]string, len(failures))
	kinds := make([]string, len(failures))
	reasons := make([]string, len(failures))
	attempts := make([]int, len(failures))
	lastErrors := make([]string, len(failures))
	updatedAts := make([]time.Time, len(failures))

	for i, f := range failures {
		ids[i] = f.ID
		kinds[i] = f.Kind
		reasons[i] = f.Reason
		attempts[i] = f.Attempts
		lastErrors[i] = f.LastError
		updatedAts[i] = f.UpdatedAt
	}

	_, err := r.pool.Exec(ctx, query, ids, kinds, reasons, attempts, lastErrors, updatedAts)
	if err != nil {
		return fmt.Errorf("batch upserting fetch failures: %w", err)
	}
	return nil
}

// GetBatch retrieves failure records of one kind for the given IDs.
func (r *FailureRepository) GetBatch(ctx context.Context, kind string, ids []string) (map[string]FetchFailure, error) {
	result := make(map[string]FetchFailure, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, kind, reason, attempts, last_error, updated_at
		FROM fetch_failures
		WHERE kind = $1 AND id = ANY($2)
	`
	rows, err := r.pool.Query(ctx, query, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("querying fetch failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f FetchFailure
		if err := rows.Scan(&f.ID, &f.Kind, &f.Reason, &f.Attempts, &f.LastError, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning fetch failure: %w", err)
		}
		result[f.ID] = f
	}
	return result, rows.Err()
}

// All returns every recorded failure, most recent first.
func (r *FailureRepository) All(ctx context.Context) ([]FetchFailure, error) {
	query := `
		SELECT id, kind, reason, attempts, last_error, updated_at
		FROM fetch_failures
		ORDER BY updated_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying fetch failures: %w", err)
	}
	defer rows.Close()

	var failures []FetchFailure
	for rows.Next() {
		var f FetchFailure
		if err := rows.Scan(&f.ID, &f.Kind, &f.Reason, &f.Attempts, &f.LastError, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning fetch failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// ResolveBatch removes failure records for identifiers that have since been
// enriched.
func (r *FailureRepository) ResolveBatch(ctx context.Context, kind string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM fetch_failures WHERE kind = $1 AND id = ANY($2)`, kind, ids)
	if err != nil {
		return fmt.Errorf("resolving fetch failures: %w", err)
	}
	return nil
}
