package crawl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
)

// SeriesRef is one discovered series, as written to a snapshot.
type SeriesRef struct {
	SeriesID       string `csv:"series_id"`
	Name           string `csv:"name"`
	URL            string `csv:"url"`
	SourceCategory string `csv:"source_category"`
}

// Snapshot kinds used in file names.
const (
	KindProgress = "progress"
	KindComplete = "complete"
)

// SnapshotName returns "<prefix>_<kind>_<unix>.csv".
func SnapshotName(prefix, kind string, unix int64) string {
	return fmt.Sprintf("%s_%s_%d.csv", prefix, kind, unix)
}

// Dedup keeps the first row for every series id, preserving order.
func Dedup(refs []SeriesRef) []SeriesRef {
	seen := make(map[string]bool, len(refs))
	out := make([]SeriesRef, 0, len(refs))
	for _, r := range refs {
		if seen[r.SeriesID] {
			continue
		}
		seen[r.SeriesID] = true
		out = append(out, r)
	}
	return out
}

// EncodeSnapshot writes refs as CSV with a header row, deduplicated by
// series id.
func EncodeSnapshot(w io.Writer, refs []SeriesRef) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(SeriesRef{}); err != nil {
		return fmt.Errorf("encode snapshot header: %w", err)
	}
	for _, r := range Dedup(refs) {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode snapshot row %s: %w", r.SeriesID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// WriteSnapshot writes refs to file, replacing any existing file
// atomically.
func WriteSnapshot(file string, refs []SeriesRef) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.csv")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeSnapshot(tmp, refs); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot file. Extra columns are ignored.
func ReadSnapshot(file string) ([]SeriesRef, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if errors.Is(err, io.EOF) {
		return []SeriesRef{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}

	refs := []SeriesRef{}
	for {
		var r SeriesRef
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot %s: %w", file, err)
		}
		refs = append(refs, r)
	}
	return refs, nil
}

// SeriesIDFromURL extracts the id from a series page URL such as
// https://fred.stlouisfed.org/series/GDP. It returns "" for anything else.
func SeriesIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	dir, id := path.Split(strings.TrimSuffix(u.Path, "/"))
	if !strings.HasSuffix(dir, "/series/") || id == "" {
		return ""
	}
	return id
}
