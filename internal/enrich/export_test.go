package enrich

import (
	"bytes"
	"encoding/csv"
	"os"
	"strings"
	"testing"
)

func TestWriteCSV(t *testing.T) {
	ds, _ := datasetFixture(t)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, ds); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	if !bytes.HasPrefix(buf.Bytes(), utf8BOM) {
		t.Error("output does not start with a UTF-8 BOM")
	}

	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(buf.Bytes(), utf8BOM))).ReadAll()
	if err != nil {
		t.Fatalf("parsing output: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want header + 4 events", len(rows))
	}
	if rows[0][0] != "ts" || rows[0][len(rows[0])-1] != "failure_reason" {
		t.Errorf("unexpected header: %v", rows[0])
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[name] = i
	}

	enriched := rows[1]
	if enriched[cols["track_id"]] != "t1" || enriched[cols["enriched"]] != "true" {
		t.Errorf("row 1 = %v, want enriched t1", enriched)
	}
	if enriched[cols["full_key"]] != "C#m" || enriched[cols["tempo"]] != "128" {
		t.Errorf("row 1 features = key %q, tempo %q", enriched[cols["full_key"]], enriched[cols["tempo"]])
	}
	if enriched[cols["genres"]] != "techno;house;ambient" {
		t.Errorf("row 1 genres = %q", enriched[cols["genres"]])
	}

	failed := rows[2]
	if failed[cols["enriched"]] != "false" || failed[cols["failure_reason"]] != "not-found" {
		t.Errorf("row 2 = %v, want unenriched not-found", failed)
	}
	if failed[cols["full_key"]] != "" || failed[cols["tempo"]] != "" {
		t.Errorf("row 2 has feature values despite missing metadata: %v", failed)
	}
}

func TestExportCSV(t *testing.T) {
	ds, _ := datasetFixture(t)
	dir := t.TempDir() + "/nested/exports"

	path, err := ExportCSV(dir, ds)
	if err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Errorf("path = %s, not inside %s", path, dir)
	}
	base := path[strings.LastIndex(path, "/")+1:]
	if !strings.HasPrefix(base, "enriched_history_") || !strings.HasSuffix(base, ".csv") {
		t.Errorf("unexpected file name %s", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, utf8BOM) {
		t.Error("exported file does not start with a UTF-8 BOM")
	}
}
