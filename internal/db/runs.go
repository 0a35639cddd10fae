package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRepository stores enrichment run reports.
type RunRepository struct {
	pool *pgxpool.Pool
}

// Insert stores a completed run.
func (r *RunRepository) Insert(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO enrichment_runs (id, started_at, finished_at, report)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, run.ID, run.StartedAt, run.FinishedAt, run.Report)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// Latest returns the most recently finished run, or ErrNotFound when no run
// has completed yet.
func (r *RunRepository) Latest(ctx context.Context) (*Run, error) {
	query := `
		SELECT id, started_at, finished_at, report
		FROM enrichment_runs
		ORDER BY finished_at DESC
		LIMIT 1
	`
	var run Run
	err := r.pool.QueryRow(ctx, query).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Report)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	return &run, nil
}
