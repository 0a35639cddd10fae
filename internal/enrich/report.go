package enrich

import (
	"time"

	"github.com/google/uuid"
)

// Report summarizes one pipeline run. Every distinct identifier from the
// history ends up in exactly one bucket: cache hit, resolved this run, or
// recorded failure. A completed run is never silently partial.
type Report struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`

	TotalTracks    int `json:"total_tracks"`
	TrackCacheHits int `json:"track_cache_hits"`
	TracksResolved int `json:"tracks_resolved"`
	TracksFailed   int `json:"tracks_failed"`

	TotalArtists    int `json:"total_artists"`
	ArtistCacheHits int `json:"artist_cache_hits"`
	ArtistsResolved int `json:"artists_resolved"`
	ArtistsFailed   int `json:"artists_failed"`

	FailuresByReason map[string]int `json:"failures_by_reason,omitempty"`
	Unresolved       []Unresolved   `json:"unresolved,omitempty"`
}

// Unresolved is one identifier left unenriched after the run, with the
// reason a caller needs to decide what to do about it.
type Unresolved struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// TracksAccounted reports whether every distinct track identifier landed in
// a terminal state.
func (r *Report) TracksAccounted() bool {
	return r.TrackCacheHits+r.TracksResolved+r.TracksFailed == r.TotalTracks
}
