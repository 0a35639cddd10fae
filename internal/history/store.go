// Package history loads the locally downloaded Spotify streaming history
// export and serves it to the enrichment pipeline as an in-memory,
// read-only store.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Common errors.
var (
	// ErrMalformedRecord marks an export record missing a required field.
	// Such records are skipped and counted, never fatal.
	ErrMalformedRecord = errors.New("malformed history record")

	// ErrNoHistoryFiles is returned when the data directory contains no
	// readable export files.
	ErrNoHistoryFiles = errors.New("no history files found")
)

const trackURIPrefix = "spotify:track:"

// Store holds the parsed listening history for one run. It is immutable
// after Load returns.
type Store struct {
	events   []Event
	byTrack  map[string][]int // indexes into events, in event order
	distinct []string         // track IDs in order of first listen
	skipped  int
	nonTrack int
}

// Load reads every export file in dir into a Store. It first looks for the
// sequentially numbered endsong_0.json, endsong_1.json, ... files that the
// official export ships; if none exist it falls back to every *.json file
// in the directory. Each file may be a JSON array of records or
// newline-delimited JSON. Malformed records are skipped and logged.
func Load(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	files, err := exportFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoHistoryFiles, dir)
	}

	s := &Store{byTrack: make(map[string][]int)}
	for _, path := range files {
		if err := s.loadFile(path, logger); err != nil {
			return nil, fmt.Errorf("loading %s: %w", filepath.Base(path), err)
		}
	}

	s.finish()

	logger.Info("history loaded",
		zap.Int("files", len(files)),
		zap.Int("events", len(s.events)),
		zap.Int("distinct_tracks", len(s.distinct)),
		zap.Int("skipped_records", s.skipped),
		zap.Int("non_track_records", s.nonTrack))
	return s, nil
}

// exportFiles resolves the ordered list of files to read. The endsong_N
// sequence stops at the first missing index, matching how the export names
// its parts.
func exportFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("history directory: %w", err)
	}

	var files []string
	for i := 0; ; i++ {
		path := filepath.Join(dir, fmt.Sprintf("endsong_%d.json", i))
		if _, err := os.Stat(path); err != nil {
			break
		}
		files = append(files, path)
	}
	if len(files) > 0 {
		return files, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// loadFile parses a single export file, appending its valid records.
func (s *Store) loadFile(path string, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return s.loadArray(trimmed, path, logger)
	}
	return s.loadLines(data, path, logger)
}

// loadArray handles the array-of-objects format.
func (s *Store) loadArray(data []byte, path string, logger *zap.Logger) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("parsing record array: %w", err)
	}
	for i, raw := range raws {
		s.addRecord(raw, path, i, logger)
	}
	return nil
}

// loadLines handles newline-delimited JSON, one record per line.
func (s *Store) loadLines(data []byte, path string, logger *zap.Logger) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		s.addRecord([]byte(text), path, line, logger)
	}
	return scanner.Err()
}

// addRecord parses one raw record and appends it. Broken or incomplete
// records increment the skipped counter; podcast episode records are
// counted separately and are not an error.
func (s *Store) addRecord(raw []byte, path string, pos int, logger *zap.Logger) {
	event, err := parseRecord(raw)
	if err != nil {
		if errors.Is(err, errNonTrack) {
			s.nonTrack++
			return
		}
		s.skipped++
		logger.Warn("skipping history record",
			zap.String("file", filepath.Base(path)),
			zap.Int("record", pos),
			zap.Error(err))
		return
	}
	s.events = append(s.events, event)
}

// errNonTrack marks records that are valid but not track playbacks
// (podcast episodes carry no track URI).
var errNonTrack = errors.New("non-track record")

func parseRecord(raw []byte) (Event, error) {
	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	if rec.TrackURI == "" {
		if rec.EpisodeURI != "" {
			return Event{}, errNonTrack
		}
		return Event{}, fmt.Errorf("%w: missing spotify_track_uri", ErrMalformedRecord)
	}
	if rec.Ts == "" {
		return Event{}, fmt.Errorf("%w: missing ts", ErrMalformedRecord)
	}
	ts, err := time.Parse(time.RFC3339, rec.Ts)
	if err != nil {
		return Event{}, fmt.Errorf("%w: bad ts %q", ErrMalformedRecord, rec.Ts)
	}
	if rec.MsPlayed == nil {
		return Event{}, fmt.Errorf("%w: missing ms_played", ErrMalformedRecord)
	}

	trackID := strings.TrimPrefix(rec.TrackURI, trackURIPrefix)
	if trackID == "" || trackID == rec.TrackURI {
		return Event{}, fmt.Errorf("%w: unrecognized track URI %q", ErrMalformedRecord, rec.TrackURI)
	}

	skipped := false
	if rec.Skipped != nil {
		skipped = *rec.Skipped
	}

	return Event{
		Timestamp:   ts,
		TrackID:     trackID,
		TrackName:   rec.TrackName,
		ArtistName:  rec.ArtistName,
		AlbumName:   rec.AlbumName,
		MsPlayed:    *rec.MsPlayed,
		Platform:    rec.Platform,
		ConnCountry: rec.ConnCountry,
		Shuffle:     rec.Shuffle,
		Skipped:     skipped,
		Incognito:   rec.IncognitoMode,
	}, nil
}

// finish sorts events by timestamp and builds the track indexes.
func (s *Store) finish() {
	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].Timestamp.Before(s.events[j].Timestamp)
	})

	for i, e := range s.events {
		if _, seen := s.byTrack[e.TrackID]; !seen {
			s.distinct = append(s.distinct, e.TrackID)
		}
		s.byTrack[e.TrackID] = append(s.byTrack[e.TrackID], i)
	}
}

// Events returns all events in ascending timestamp order.
func (s *Store) Events() []Event {
	return s.events
}

// DistinctTrackIDs returns the deduplicated track identifiers in order of
// first listen. This set is the pipeline's unit of work.
func (s *Store) DistinctTrackIDs() []string {
	ids := make([]string, len(s.distinct))
	copy(ids, s.distinct)
	return ids
}

// EventsFor returns every event for the given track ID, in timestamp order.
func (s *Store) EventsFor(trackID string) []Event {
	idxs := s.byTrack[trackID]
	if len(idxs) == 0 {
		return nil
	}
	events := make([]Event, len(idxs))
	for i, idx := range idxs {
		events[i] = s.events[idx]
	}
	return events
}

// Len returns the number of loaded events.
func (s *Store) Len() int {
	return len(s.events)
}

// SkippedRecords reports how many malformed records were dropped at load.
func (s *Store) SkippedRecords() int {
	return s.skipped
}

// NonTrackRecords reports how many podcast/episode records were ignored.
func (s *Store) NonTrackRecords() int {
	return s.nonTrack
}
