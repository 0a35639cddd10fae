package history

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

const recordA = `{"ts":"2023-01-02T10:00:00Z","spotify_track_uri":"spotify:track:aaa","master_metadata_track_name":"Song A","master_metadata_album_artist_name":"Artist A","master_metadata_album_album_name":"Album A","ms_played":30000,"platform":"ios","conn_country":"US","shuffle":true,"skipped":false,"incognito_mode":false}`

const recordB = `{"ts":"2023-01-01T09:00:00Z","spotify_track_uri":"spotify:track:bbb","master_metadata_track_name":"Song B","master_metadata_album_artist_name":"Artist B","ms_played":15000}`

func TestLoadArrayFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "endsong_0.json", "["+recordA+",\n"+recordB+"]")

	s, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	// Events come back sorted by timestamp, so B (Jan 1) precedes A (Jan 2).
	events := s.Events()
	if events[0].TrackID != "bbb" || events[1].TrackID != "aaa" {
		t.Errorf("event order = [%s %s], want [bbb aaa]", events[0].TrackID, events[1].TrackID)
	}

	got := s.DistinctTrackIDs()
	want := []string{"bbb", "aaa"}
	if len(got) != len(want) {
		t.Fatalf("DistinctTrackIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DistinctTrackIDs()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	first := events[1]
	if first.TrackName != "Song A" || first.ArtistName != "Artist A" || first.AlbumName != "Album A" {
		t.Errorf("unexpected metadata fields: %+v", first)
	}
	if !first.Shuffle || first.Skipped || first.Incognito {
		t.Errorf("unexpected flags: %+v", first)
	}
	if first.MsPlayed != 30000 {
		t.Errorf("MsPlayed = %d, want 30000", first.MsPlayed)
	}
}

func TestLoadNDJSONFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "endsong_0.json", recordA+"\n\n"+recordB+"\n")

	s, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestLoadMultipleNumberedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "endsong_0.json", "["+recordA+"]")
	writeFile(t, dir, "endsong_1.json", "["+recordB+"]")
	// Not part of the endsong sequence, must be ignored.
	writeFile(t, dir, "endsong_5.json", "["+recordA+"]")

	s, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (endsong_5 should be skipped)", s.Len())
	}
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	content := recordA + "\n" +
		`{"ts":"","spotify_track_uri":"spotify:track:ccc","ms_played":10}` + "\n" + // missing ts
		`{"ts":"2023-01-03T00:00:00Z","spotify_track_uri":"spotify:track:ddd"}` + "\n" + // missing ms_played
		`{"ts":"not-a-time","spotify_track_uri":"spotify:track:eee","ms_played":10}` + "\n" + // bad ts
		`not json at all` + "\n" +
		recordB
	writeFile(t, dir, "endsong_0.json", content)

	s, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if s.SkippedRecords() != 4 {
		t.Errorf("SkippedRecords() = %d, want 4", s.SkippedRecords())
	}
}

func TestLoadIgnoresEpisodeRecords(t *testing.T) {
	dir := t.TempDir()
	episode := `{"ts":"2023-01-01T00:00:00Z","spotify_episode_uri":"spotify:episode:xyz","ms_played":600000}`
	writeFile(t, dir, "endsong_0.json", "["+recordA+","+episode+"]")

	s, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	if s.NonTrackRecords() != 1 {
		t.Errorf("NonTrackRecords() = %d, want 1", s.NonTrackRecords())
	}
	if s.SkippedRecords() != 0 {
		t.Errorf("SkippedRecords() = %d, want 0", s.SkippedRecords())
	}
}

func TestLoadEmptyDir(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir, nil)
	if !errors.Is(err, ErrNoHistoryFiles) {
		t.Errorf("Load() error = %v, want ErrNoHistoryFiles", err)
	}
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"), nil)
	if err == nil {
		t.Error("Load() on missing directory did not fail")
	}
}

func TestEventsFor(t *testing.T) {
	dir := t.TempDir()
	again := `{"ts":"2023-01-05T00:00:00Z","spotify_track_uri":"spotify:track:aaa","ms_played":20000}`
	writeFile(t, dir, "endsong_0.json", "["+recordA+","+recordB+","+again+"]")

	s, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	events := s.EventsFor("aaa")
	if len(events) != 2 {
		t.Fatalf("EventsFor(aaa) returned %d events, want 2", len(events))
	}
	if !events[0].Timestamp.Before(events[1].Timestamp) {
		t.Error("EventsFor(aaa) not in timestamp order")
	}

	if got := s.EventsFor("missing"); got != nil {
		t.Errorf("EventsFor(missing) = %v, want nil", got)
	}
}

func TestGlobFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "my_history.json", "["+recordA+"]")

	s, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
