// Package enrich orchestrates the metadata enrichment pipeline: it resolves
// the distinct track identifiers of a listening history into cached
// metadata through batched, rate-limited API lookups, persisting each
// batch's results as soon as they arrive and recording failures for later
// retry.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eviatarm/go-spotify-history-enricher/internal/db"
	"github.com/eviatarm/go-spotify-history-enricher/internal/history"
	"github.com/eviatarm/go-spotify-history-enricher/internal/spotify"
)

// Fetcher performs one batched metadata lookup. Implemented by the Spotify
// client; tests substitute fakes.
type Fetcher interface {
	FetchTracks(ctx context.Context, ids []string) (map[string]spotify.TrackMetadata, []string, error)
	FetchArtists(ctx context.Context, ids []string) (map[string]spotify.ArtistMetadata, []string, error)
}

// Store is the persistent enrichment cache. Implemented by *db.DB.
type Store interface {
	CachedTracks(ctx context.Context, ids []string) (map[string]db.CachedTrack, error)
	PutTracks(ctx context.Context, metas []spotify.TrackMetadata, fetchedAt time.Time) error
	CachedArtists(ctx context.Context, ids []string) (map[string]db.CachedArtist, error)
	PutArtists(ctx context.Context, metas []spotify.ArtistMetadata, fetchedAt time.Time) error
	FailuresFor(ctx context.Context, kind string, ids []string) (map[string]db.FetchFailure, error)
	RecordFailures(ctx context.Context, failures []db.FetchFailure) error
	ResolveFailures(ctx context.Context, kind string, ids []string) error
	SaveRun(ctx context.Context, run *db.Run) error
}

// Config holds pipeline tuning parameters. All of them are configuration,
// not constants: API quotas and retry appetite differ per deployment.
type Config struct {
	// Workers bounds the number of concurrently in-flight batches.
	Workers int
	// TrackBatchSize and ArtistBatchSize are capped at the API limits.
	TrackBatchSize  int
	ArtistBatchSize int
	// CacheTTL marks cache entries older than this as stale and eligible
	// for refetch. Zero means entries never go stale.
	CacheTTL time.Duration
	// RetryNotFound re-attempts identifiers previously recorded as
	// not-found. Off by default: the API answering "unknown id" rarely
	// changes its mind.
	RetryNotFound bool
	// MaxFailureAttempts stops retrying an identifier across runs once
	// its recorded attempt count reaches this value.
	MaxFailureAttempts int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithProgress attaches a per-stage progress callback. done and total are
// batch counts.
func WithProgress(fn func(stage string, done, total int)) Option {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// Pipeline coordinates cache lookups, batched fetches and incremental
// persistence for one history.
type Pipeline struct {
	store    Store
	fetcher  Fetcher
	cfg      Config
	logger   *zap.Logger
	metrics  *Metrics
	progress func(stage string, done, total int)
}

// New creates a pipeline. Zero config fields get defaults.
func New(store Store, fetcher Fetcher, cfg Config, logger *zap.Logger, opts ...Option) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.TrackBatchSize <= 0 || cfg.TrackBatchSize > spotify.MaxTracksPerRequest {
		cfg.TrackBatchSize = spotify.MaxTracksPerRequest
	}
	if cfg.ArtistBatchSize <= 0 || cfg.ArtistBatchSize > spotify.MaxArtistsPerRequest {
		cfg.ArtistBatchSize = spotify.MaxArtistsPerRequest
	}
	if cfg.MaxFailureAttempts <= 0 {
		cfg.MaxFailureAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		store:   store,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// fatalError marks errors that abort the whole run instead of being
// recorded as per-identifier failures.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func isFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe) ||
		errors.Is(err, spotify.ErrAuth) ||
		errors.Is(err, spotify.ErrBadRequest)
}

// Run executes the pipeline against the loaded history. It returns the run
// report; the report is also persisted. Per-identifier failures never fail
// the run; only authentication, malformed requests, cache-store errors and
// cancellation do.
func (p *Pipeline) Run(ctx context.Context, hist *history.Store) (*Report, error) {
	started := time.Now()
	trackIDs := hist.DistinctTrackIDs()

	report := &Report{
		RunID:            uuid.New(),
		StartedAt:        started,
		TotalTracks:      len(trackIDs),
		FailuresByReason: make(map[string]int),
	}

	p.logger.Info("starting enrichment run",
		zap.String("run_id", report.RunID.String()),
		zap.Int("distinct_tracks", len(trackIDs)))

	// Stage one: track metadata.
	cachedTracks, err := p.trackStage(ctx, trackIDs, report)
	if err != nil {
		return report, err
	}

	// Stage two: artist genres for every resolved track.
	artistIDs := collectArtistIDs(cachedTracks)
	report.TotalArtists = len(artistIDs)
	if err := p.artistStage(ctx, artistIDs, report); err != nil {
		return report, err
	}

	report.FinishedAt = time.Now()
	report.DurationMs = report.FinishedAt.Sub(started).Milliseconds()
	sortUnresolved(report.Unresolved)

	if p.metrics != nil {
		p.metrics.RunDuration.Observe(report.FinishedAt.Sub(started).Seconds())
	}

	if err := p.saveReport(ctx, report); err != nil {
		return report, err
	}

	p.logger.Info("enrichment run complete",
		zap.String("run_id", report.RunID.String()),
		zap.Int("track_cache_hits", report.TrackCacheHits),
		zap.Int("tracks_resolved", report.TracksResolved),
		zap.Int("tracks_failed", report.TracksFailed),
		zap.Int("artists_resolved", report.ArtistsResolved),
		zap.Duration("duration", report.FinishedAt.Sub(started)))
	return report, nil
}

// trackStage resolves track metadata and returns the full cache view of
// every track that is enriched after the stage.
func (p *Pipeline) trackStage(ctx context.Context, ids []string, report *Report) (map[string]db.CachedTrack, error) {
	cached, err := p.store.CachedTracks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reading track cache: %w", err)
	}

	fresh := make(map[string]db.CachedTrack, len(cached))
	var uncached []string
	staleCutoff := time.Time{}
	if p.cfg.CacheTTL > 0 {
		staleCutoff = time.Now().Add(-p.cfg.CacheTTL)
	}
	for _, id := range ids {
		entry, ok := cached[id]
		if ok && entry.FetchedAt.After(staleCutoff) {
			fresh[id] = entry
			continue
		}
		uncached = append(uncached, id)
	}
	report.TrackCacheHits = len(fresh)
	if p.metrics != nil {
		p.metrics.CacheHits.Add(float64(len(fresh)))
	}

	eligible, held, prior, err := p.filterFailures(ctx, db.KindTrack, uncached)
	if err != nil {
		return nil, err
	}
	p.recordHeld(report, held)

	var mu sync.Mutex
	resolvedTotal := 0

	fetchBatch := func(ctx context.Context, batch []string) ([]string, []string, error) {
		metas, missing, err := p.fetcher.FetchTracks(ctx, batch)
		if err != nil {
			return nil, nil, err
		}

		list := make([]spotify.TrackMetadata, 0, len(metas))
		for _, m := range metas {
			list = append(list, m)
		}
		now := time.Now()
		// Persist even when the run is being cancelled: an in-flight
		// batch completes and lands in the cache before teardown.
		if err := p.store.PutTracks(context.WithoutCancel(ctx), list, now); err != nil {
			return nil, nil, &fatalError{fmt.Errorf("persisting track batch: %w", err)}
		}

		mu.Lock()
		for _, m := range list {
			fresh[m.ID] = db.CachedTrack{Meta: m, FetchedAt: now}
		}
		resolvedTotal += len(list)
		mu.Unlock()

		resolved := make([]string, 0, len(metas))
		for id := range metas {
			resolved = append(resolved, id)
		}
		return resolved, missing, nil
	}

	failed, err := p.runBatches(ctx, db.KindTrack, eligible, prior, p.cfg.TrackBatchSize, fetchBatch)
	if err != nil {
		return nil, err
	}

	report.TracksResolved = resolvedTotal
	p.recordFailed(report, failed)
	report.TracksFailed = len(failed) + len(held)
	return fresh, nil
}

// artistStage resolves artist metadata for genre enrichment.
func (p *Pipeline) artistStage(ctx context.Context, ids []string, report *Report) error {
	cached, err := p.store.CachedArtists(ctx, ids)
	if err != nil {
		return fmt.Errorf("reading artist cache: %w", err)
	}

	var uncached []string
	staleCutoff := time.Time{}
	if p.cfg.CacheTTL > 0 {
		staleCutoff = time.Now().Add(-p.cfg.CacheTTL)
	}
	hits := 0
	for _, id := range ids {
		if entry, ok := cached[id]; ok && entry.FetchedAt.After(staleCutoff) {
			hits++
			continue
		}
		uncached = append(uncached, id)
	}
	report.ArtistCacheHits = hits
	if p.metrics != nil {
		p.metrics.CacheHits.Add(float64(hits))
	}

	eligible, held, prior, err := p.filterFailures(ctx, db.KindArtist, uncached)
	if err != nil {
		return err
	}
	p.recordHeld(report, held)

	var mu sync.Mutex
	resolvedTotal := 0

	fetchBatch := func(ctx context.Context, batch []string) ([]string, []string, error) {
		metas, missing, err := p.fetcher.FetchArtists(ctx, batch)
		if err != nil {
			return nil, nil, err
		}

		list := make([]spotify.ArtistMetadata, 0, len(metas))
		for _, m := range metas {
			list = append(list, m)
		}
		if err := p.store.PutArtists(context.WithoutCancel(ctx), list, time.Now()); err != nil {
			return nil, nil, &fatalError{fmt.Errorf("persisting artist batch: %w", err)}
		}

		mu.Lock()
		resolvedTotal += len(list)
		mu.Unlock()

		resolved := make([]string, 0, len(metas))
		for id := range metas {
			resolved = append(resolved, id)
		}
		return resolved, missing, nil
	}

	failed, err := p.runBatches(ctx, db.KindArtist, eligible, prior, p.cfg.ArtistBatchSize, fetchBatch)
	if err != nil {
		return err
	}

	report.ArtistsResolved = resolvedTotal
	p.recordFailed(report, failed)
	report.ArtistsFailed = len(failed) + len(held)
	return nil
}

// filterFailures partitions uncached identifiers into fetch-eligible ones
// and held ones (prior failures the retry policy excludes this run).
func (p *Pipeline) filterFailures(ctx context.Context, kind string, ids []string) (eligible []string, held map[string]db.FetchFailure, prior map[string]db.FetchFailure, err error) {
	prior, err = p.store.FailuresFor(ctx, kind, ids)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading recorded failures: %w", err)
	}

	held = make(map[string]db.FetchFailure)
	for _, id := range ids {
		f, failed := prior[id]
		if !failed {
			eligible = append(eligible, id)
			continue
		}
		if f.Reason == db.ReasonNotFound && !p.cfg.RetryNotFound {
			held[id] = f
			continue
		}
		if f.Attempts >= p.cfg.MaxFailureAttempts {
			held[id] = f
			continue
		}
		eligible = append(eligible, id)
	}
	return eligible, held, prior, nil
}

// runBatches drives the bounded worker pool over one stage's batches. It
// returns the failures recorded this run. No ordering is guaranteed between
// batches; results merge independently, keyed by identifier.
func (p *Pipeline) runBatches(
	ctx context.Context,
	kind string,
	ids []string,
	prior map[string]db.FetchFailure,
	batchSize int,
	fetchBatch func(ctx context.Context, ids []string) (resolved, missing []string, err error),
) (map[string]db.FetchFailure, error) {
	failed := make(map[string]db.FetchFailure)
	if len(ids) == 0 {
		p.reportProgress(kind, 0, 0)
		return failed, nil
	}

	batches := chunk(ids, batchSize)
	p.reportProgress(kind, 0, len(batches))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan []string, len(batches))
	for _, b := range batches {
		jobs <- b
	}
	close(jobs)

	var (
		mu       sync.Mutex
		done     int
		fatalErr error
		wg       sync.WaitGroup
	)

	setFatal := func(err error) {
		mu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		mu.Unlock()
		cancel()
	}

	recordBatchFailures := func(failures []db.FetchFailure) {
		if len(failures) == 0 {
			return
		}
		if err := p.store.RecordFailures(context.WithoutCancel(ctx), failures); err != nil {
			setFatal(fmt.Errorf("recording failures: %w", err))
			return
		}
		mu.Lock()
		for _, f := range failures {
			failed[f.ID] = f
		}
		mu.Unlock()
		if p.metrics != nil {
			p.metrics.ItemsFailed.Add(float64(len(failures)))
		}
	}

	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				if p.metrics != nil {
					p.metrics.BatchesTotal.Inc()
					p.metrics.BatchSize.Observe(float64(len(batch)))
				}

				resolved, missing, err := fetchBatch(ctx, batch)
				switch {
				case err == nil:
					persistCtx := context.WithoutCancel(ctx)
					if err := p.store.ResolveFailures(persistCtx, kind, resolved); err != nil {
						setFatal(fmt.Errorf("resolving failures: %w", err))
						return
					}
					recordBatchFailures(notFoundFailures(kind, missing, prior))
					if p.metrics != nil {
						p.metrics.ItemsResolved.Add(float64(len(resolved)))
					}

				case ctx.Err() != nil:
					return

				case isFatal(err):
					p.logger.Error("aborting run",
						zap.String("kind", kind),
						zap.Error(err))
					setFatal(err)
					return

				default:
					// Transient failure that survived retries: the
					// whole batch becomes recorded failures, the run
					// continues.
					if p.metrics != nil {
						p.metrics.BatchErrors.Inc()
					}
					p.logger.Warn("batch failed",
						zap.String("kind", kind),
						zap.Int("size", len(batch)),
						zap.Error(err))
					recordBatchFailures(batchFailures(kind, batch, prior, err))
				}

				mu.Lock()
				done++
				current := done
				mu.Unlock()
				p.reportProgress(kind, current, len(batches))
			}
		}()
	}

	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return failed, nil
}

// notFoundFailures builds failure records for identifiers the API did not
// recognize.
func notFoundFailures(kind string, missing []string, prior map[string]db.FetchFailure) []db.FetchFailure {
	now := time.Now()
	failures := make([]db.FetchFailure, 0, len(missing))
	for _, id := range missing {
		failures = append(failures, db.FetchFailure{
			ID:        id,
			Kind:      kind,
			Reason:    db.ReasonNotFound,
			Attempts:  prior[id].Attempts + 1,
			UpdatedAt: now,
		})
	}
	return failures
}

// batchFailures builds failure records for a batch whose lookup errored.
func batchFailures(kind string, batch []string, prior map[string]db.FetchFailure, err error) []db.FetchFailure {
	reason := db.ReasonError
	if errors.Is(err, spotify.ErrExhaustedRetries) {
		reason = db.ReasonExhaustedRetries
	}
	now := time.Now()
	failures := make([]db.FetchFailure, 0, len(batch))
	for _, id := range batch {
		failures = append(failures, db.FetchFailure{
			ID:        id,
			Kind:      kind,
			Reason:    reason,
			Attempts:  prior[id].Attempts + 1,
			LastError: err.Error(),
			UpdatedAt: now,
		})
	}
	return failures
}

// recordHeld folds failures held over from earlier runs into the report.
func (p *Pipeline) recordHeld(report *Report, held map[string]db.FetchFailure) {
	for _, f := range held {
		report.FailuresByReason[f.Reason]++
		report.Unresolved = append(report.Unresolved, Unresolved{
			ID:       f.ID,
			Kind:     f.Kind,
			Reason:   f.Reason,
			Attempts: f.Attempts,
		})
	}
}

// recordFailed folds this run's new failures into the report.
func (p *Pipeline) recordFailed(report *Report, failed map[string]db.FetchFailure) {
	for _, f := range failed {
		report.FailuresByReason[f.Reason]++
		report.Unresolved = append(report.Unresolved, Unresolved{
			ID:       f.ID,
			Kind:     f.Kind,
			Reason:   f.Reason,
			Attempts: f.Attempts,
		})
	}
}

func (p *Pipeline) saveReport(ctx context.Context, report *Report) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding run report: %w", err)
	}
	run := &db.Run{
		ID:         report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Report:     doc,
	}
	if err := p.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("saving run report: %w", err)
	}
	return nil
}

func (p *Pipeline) reportProgress(stage string, done, total int) {
	if p.progress != nil {
		p.progress(stage, done, total)
	}
}

// collectArtistIDs gathers the deduplicated artist IDs referenced by the
// enriched tracks, in a stable order.
func collectArtistIDs(tracks map[string]db.CachedTrack) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, entry := range tracks {
		for _, id := range entry.Meta.ArtistIDs {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// chunk splits ids into batches of at most size.
func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}

func sortUnresolved(list []Unresolved) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Kind != list[j].Kind {
			return list[i].Kind < list[j].Kind
		}
		return list[i].ID < list[j].ID
	})
}
