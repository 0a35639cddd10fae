package enrich

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/eviatarm/go-spotify-history-enricher/internal/db"
	"github.com/eviatarm/go-spotify-history-enricher/internal/history"
	"github.com/eviatarm/go-spotify-history-enricher/internal/spotify"
)

// EnrichedEvent is one listening event joined with its track metadata.
// Unresolved events keep their raw fields and carry the failure reason.
type EnrichedEvent struct {
	history.Event
	Track         *spotify.TrackMetadata `json:"track,omitempty"`
	Genres        []string               `json:"genres,omitempty"`
	FullKey       string                 `json:"full_key,omitempty"`
	Enriched      bool                   `json:"enriched"`
	FailureReason string                 `json:"failure_reason,omitempty"`
}

// Dataset is the final merged output: every event in original history
// order, enriched where the cache could resolve it.
type Dataset struct {
	Events     []EnrichedEvent `json:"events"`
	Enriched   int             `json:"enriched"`
	Unenriched int             `json:"unenriched"`
}

// BuildDataset joins the history with the enrichment cache. Event order
// follows the history's original (timestamp) order, independent of the
// order anything was fetched in.
func BuildDataset(ctx context.Context, hist *history.Store, store Store) (*Dataset, error) {
	ids := hist.DistinctTrackIDs()

	tracks, err := store.CachedTracks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reading track cache: %w", err)
	}
	failures, err := store.FailuresFor(ctx, db.KindTrack, ids)
	if err != nil {
		return nil, fmt.Errorf("reading recorded failures: %w", err)
	}

	artists, err := store.CachedArtists(ctx, collectArtistIDs(tracks))
	if err != nil {
		return nil, fmt.Errorf("reading artist cache: %w", err)
	}

	genresByTrack := make(map[string][]string, len(tracks))
	for id, entry := range tracks {
		genresByTrack[id] = trackGenres(entry.Meta, artists)
	}

	events := hist.Events()
	ds := &Dataset{Events: make([]EnrichedEvent, 0, len(events))}
	for _, e := range events {
		out := EnrichedEvent{Event: e}

		if entry, ok := tracks[e.TrackID]; ok {
			meta := entry.Meta
			out.Track = &meta
			out.Genres = genresByTrack[e.TrackID]
			if meta.Features != nil {
				out.FullKey = FullKey(meta.Features.Key, meta.Features.Mode)
			}
			out.Enriched = true
			ds.Enriched++
		} else {
			if f, ok := failures[e.TrackID]; ok {
				out.FailureReason = f.Reason
			} else {
				out.FailureReason = "unattempted"
			}
			ds.Unenriched++
		}

		ds.Events = append(ds.Events, out)
	}
	return ds, nil
}

// trackGenres merges the genres of every artist on a track, deduplicated,
// preserving artist order.
func trackGenres(meta spotify.TrackMetadata, artists map[string]db.CachedArtist) []string {
	var genres []string
	seen := make(map[string]bool)
	for _, artistID := range meta.ArtistIDs {
		entry, ok := artists[artistID]
		if !ok {
			continue
		}
		for _, g := range entry.Meta.Genres {
			if seen[g] {
				continue
			}
			seen[g] = true
			genres = append(genres, g)
		}
	}
	return genres
}

// TrackPlayCount is an aggregate of how often one track was played.
type TrackPlayCount struct {
	TrackID     string        `json:"track_id"`
	TrackName   string        `json:"track_name"`
	ArtistName  string        `json:"artist_name"`
	Plays       int           `json:"plays"`
	TotalPlayed time.Duration `json:"total_played"`
}

// TimesListened aggregates play counts per track, most played first.
func (d *Dataset) TimesListened() []TrackPlayCount {
	byTrack := make(map[string]*TrackPlayCount)
	var order []string
	for _, e := range d.Events {
		agg, ok := byTrack[e.TrackID]
		if !ok {
			agg = &TrackPlayCount{
				TrackID:    e.TrackID,
				TrackName:  e.TrackName,
				ArtistName: e.ArtistName,
			}
			byTrack[e.TrackID] = agg
			order = append(order, e.TrackID)
		}
		agg.Plays++
		agg.TotalPlayed += e.PlayDuration()
	}

	counts := make([]TrackPlayCount, 0, len(order))
	for _, id := range order {
		counts = append(counts, *byTrack[id])
	}
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Plays != counts[j].Plays {
			return counts[i].Plays > counts[j].Plays
		}
		return counts[i].TrackID < counts[j].TrackID
	})
	return counts
}

// KeyListenTime is total listening time attributed to one musical key.
type KeyListenTime struct {
	Key    string        `json:"key"`
	Events int           `json:"events"`
	Played time.Duration `json:"played"`
}

// ListenTimeByKey aggregates play time per full key (e.g. "C#m"). Events
// without audio features are grouped under "unknown".
func (d *Dataset) ListenTimeByKey() []KeyListenTime {
	byKey := make(map[string]*KeyListenTime)
	for _, e := range d.Events {
		key := e.FullKey
		if key == "" {
			key = "unknown"
		}
		agg, ok := byKey[key]
		if !ok {
			agg = &KeyListenTime{Key: key}
			byKey[key] = agg
		}
		agg.Events++
		agg.Played += e.PlayDuration()
	}

	keys := make([]KeyListenTime, 0, len(byKey))
	for _, agg := range byKey {
		keys = append(keys, *agg)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Played != keys[j].Played {
			return keys[i].Played > keys[j].Played
		}
		return keys[i].Key < keys[j].Key
	})
	return keys
}
