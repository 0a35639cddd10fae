package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/eviatarm/go-spotify-history-enricher/internal/spotify"
)

// Identifier kinds for cache and failure entries.
const (
	KindTrack  = "track"
	KindArtist = "artist"
)

// Failure reasons. ReasonNotFound entries are terminal unless retries for
// them are explicitly enabled; the other reasons are retryable on a later
// run.
const (
	ReasonNotFound         = "not-found"
	ReasonExhaustedRetries = "exhausted-retries"
	ReasonError            = "error"
)

// CachedTrack is a cache entry for one track identifier.
type CachedTrack struct {
	Meta      spotify.TrackMetadata
	FetchedAt time.Time
}

// CachedArtist is a cache entry for one artist identifier.
type CachedArtist struct {
	Meta      spotify.ArtistMetadata
	FetchedAt time.Time
}

// FetchFailure records an identifier that could not be enriched, so a later
// run can decide whether to retry it.
type FetchFailure struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Run is a stored enrichment run report.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Report     []byte // JSON document produced by the pipeline
}
