package enrich

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// utf8BOM makes spreadsheet tools detect the encoding correctly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var csvHeader = []string{
	"ts", "track_id", "track_name", "artist_name", "album_name",
	"ms_played", "enriched", "genres", "key", "mode", "full_key",
	"tempo", "energy", "valence", "failure_reason",
}

// WriteCSV writes the enriched dataset as UTF-8 CSV with a BOM prefix.
func WriteCSV(w io.Writer, d *Dataset) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("writing BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, e := range d.Events {
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.TrackID,
			e.TrackName,
			e.ArtistName,
			e.AlbumName,
			strconv.FormatInt(e.MsPlayed, 10),
			strconv.FormatBool(e.Enriched),
			strings.Join(e.Genres, ";"),
			"", "", "", "", "", "",
			e.FailureReason,
		}
		if e.Track != nil && e.Track.Features != nil {
			f := e.Track.Features
			row[8] = KeyName(f.Key)
			row[9] = ModeLabel(f.Mode)
			row[10] = FullKey(f.Key, f.Mode)
			row[11] = strconv.FormatFloat(f.Tempo, 'f', -1, 64)
			row[12] = strconv.FormatFloat(f.Energy, 'f', -1, 64)
			row[13] = strconv.FormatFloat(f.Valence, 'f', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the dataset to a timestamped file inside dir, creating
// the directory if needed, and returns the file path.
func ExportCSV(dir string, d *Dataset) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	name := fmt.Sprintf("enriched_history_%s.csv", time.Now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}
	defer file.Close()

	if err := WriteCSV(file, d); err != nil {
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("closing export file: %w", err)
	}
	return path, nil
}
