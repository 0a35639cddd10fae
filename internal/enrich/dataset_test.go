package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/eviatarm/go-spotify-history-enricher/internal/db"
	"github.com/eviatarm/go-spotify-history-enricher/internal/spotify"
)

func datasetFixture(t *testing.T) (*Dataset, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	now := time.Now()

	store.tracks["t1"] = db.CachedTrack{
		Meta: spotify.TrackMetadata{
			ID:        "t1",
			Name:      "Track t1",
			ArtistIDs: []string{"a1", "a2"},
			Features:  &spotify.AudioFeatures{Key: 1, Mode: 0, Tempo: 128, Energy: 0.9, Valence: 0.2},
		},
		FetchedAt: now,
	}
	store.artists["a1"] = db.CachedArtist{
		Meta:      spotify.ArtistMetadata{ID: "a1", Genres: []string{"techno", "house"}},
		FetchedAt: now,
	}
	store.artists["a2"] = db.CachedArtist{
		Meta:      spotify.ArtistMetadata{ID: "a2", Genres: []string{"house", "ambient"}},
		FetchedAt: now,
	}
	store.failures[failureKey(db.KindTrack, "t2")] = db.FetchFailure{
		ID: "t2", Kind: db.KindTrack, Reason: db.ReasonNotFound, Attempts: 1,
	}

	hist := testHistory(t, "t1", "t2", "t1", "t3")
	ds, err := BuildDataset(context.Background(), hist, store)
	if err != nil {
		t.Fatalf("BuildDataset() error = %v", err)
	}
	return ds, store
}

func TestBuildDataset(t *testing.T) {
	ds, _ := datasetFixture(t)

	if len(ds.Events) != 4 {
		t.Fatalf("got %d events, want 4", len(ds.Events))
	}
	if ds.Enriched != 2 || ds.Unenriched != 2 {
		t.Errorf("enriched %d, unenriched %d; want 2, 2", ds.Enriched, ds.Unenriched)
	}

	// Events keep the history's timestamp order.
	wantOrder := []string{"t1", "t2", "t1", "t3"}
	for i, want := range wantOrder {
		if ds.Events[i].TrackID != want {
			t.Errorf("event %d = %s, want %s", i, ds.Events[i].TrackID, want)
		}
	}

	first := ds.Events[0]
	if !first.Enriched || first.Track == nil {
		t.Fatal("t1 event not enriched")
	}
	if first.FullKey != "C#m" {
		t.Errorf("FullKey = %q, want C#m", first.FullKey)
	}
	// Genre union in artist order, deduplicated.
	wantGenres := []string{"techno", "house", "ambient"}
	if len(first.Genres) != len(wantGenres) {
		t.Fatalf("Genres = %v, want %v", first.Genres, wantGenres)
	}
	for i, g := range wantGenres {
		if first.Genres[i] != g {
			t.Errorf("Genres[%d] = %s, want %s", i, first.Genres[i], g)
		}
	}

	if ds.Events[1].Enriched || ds.Events[1].FailureReason != db.ReasonNotFound {
		t.Errorf("t2 event = enriched %v, reason %q; want recorded not-found",
			ds.Events[1].Enriched, ds.Events[1].FailureReason)
	}
	if ds.Events[3].FailureReason != "unattempted" {
		t.Errorf("t3 reason = %q, want unattempted", ds.Events[3].FailureReason)
	}
}

func TestTimesListened(t *testing.T) {
	ds, _ := datasetFixture(t)

	counts := ds.TimesListened()
	if len(counts) != 3 {
		t.Fatalf("got %d aggregates, want 3", len(counts))
	}
	if counts[0].TrackID != "t1" || counts[0].Plays != 2 {
		t.Errorf("top = %s with %d plays, want t1 with 2", counts[0].TrackID, counts[0].Plays)
	}
	if counts[0].TotalPlayed != 2*time.Minute {
		t.Errorf("TotalPlayed = %v, want 2m", counts[0].TotalPlayed)
	}
	// Equal play counts tie-break on track ID.
	if counts[1].TrackID != "t2" || counts[2].TrackID != "t3" {
		t.Errorf("tail order = [%s %s], want [t2 t3]", counts[1].TrackID, counts[2].TrackID)
	}
}

func TestListenTimeByKey(t *testing.T) {
	ds, _ := datasetFixture(t)

	keys := ds.ListenTimeByKey()
	if len(keys) != 2 {
		t.Fatalf("got %d key buckets, want 2", len(keys))
	}
	// Two unenriched events beat the two C#m plays only on tie-break;
	// both buckets hold two one-minute plays, so order is by key name.
	for _, k := range keys {
		if k.Events != 2 || k.Played != 2*time.Minute {
			t.Errorf("bucket %q = %d events, %v played; want 2, 2m", k.Key, k.Events, k.Played)
		}
	}
	if keys[0].Key != "C#m" || keys[1].Key != "unknown" {
		t.Errorf("bucket order = [%s %s], want [C#m unknown]", keys[0].Key, keys[1].Key)
	}
}
