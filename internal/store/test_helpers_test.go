package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/serieswatch/internal/series"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSeries builds a fetched series with n daily observations.
func createTestSeries(id, freq string, n int) *series.FetchedSeries {
	fs := &series.FetchedSeries{
		Metadata: series.Metadata{
			SeriesID:    id,
			Title:       id + " title",
			Frequency:   freq,
			Units:       "Percent",
			LastUpdated: "2024-03-01 7:41 AM CST",
			Source:      "Board of Governors",
			DataSource:  "FRED",
		},
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		fs.Observations = append(fs.Observations, series.Observation{
			Date:  start.AddDate(0, 0, i).Format("2006-01-02"),
			Value: series.Float(float64(i) + 0.5),
		})
	}
	return fs
}

func logAt(ts time.Time, id string, action series.Action, status series.Status, msg string) series.LogEntry {
	return series.LogEntry{
		Timestamp: series.FormatTime(ts),
		SeriesID:  id,
		Action:    action,
		Status:    status,
		Message:   msg,
	}
}
