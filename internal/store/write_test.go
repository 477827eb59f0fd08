package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/serieswatch/internal/series"
)

func countRows(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestSaveSeries_StoresGroup(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSeries(ctx, createTestSeries("GDP", "Monthly", 5), series.ActionUpdate, testNow))

	assert.Equal(t, 1, countRows(t, s, "SELECT COUNT(*) FROM series_metadata"))
	assert.Equal(t, 5, countRows(t, s, "SELECT COUNT(*) FROM series_values WHERE series_id = 'GDP'"))

	entries, err := s.LogEntriesSince(ctx, testNow.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "GDP", entries[0].SeriesID)
	assert.Equal(t, series.ActionUpdate, entries[0].Action)
	assert.Equal(t, series.StatusSuccess, entries[0].Status)
	assert.Equal(t, "Stored 5 observations", entries[0].Message)

	md, err := s.GetMetadata(ctx, "GDP")
	require.NoError(t, err)
	require.NotNil(t, md.LastChecked)
	assert.Equal(t, series.FormatTime(testNow), *md.LastChecked)
	assert.Equal(t, "Monthly", md.Frequency)
}

func TestSaveSeries_UpsertIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	fs := createTestSeries("X", "Daily", 4)

	require.NoError(t, s.SaveSeries(ctx, fs, series.ActionUpdate, testNow))
	require.NoError(t, s.SaveSeries(ctx, fs, series.ActionUpdate, testNow.Add(time.Minute)))

	assert.Equal(t, 1, countRows(t, s, "SELECT COUNT(*) FROM series_metadata WHERE series_id = 'X'"))
	assert.Equal(t, 4, countRows(t, s, "SELECT COUNT(*) FROM series_values WHERE series_id = 'X'"))
}

func TestSaveSeries_LastWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestSeries("X", "Daily", 2)
	require.NoError(t, s.SaveSeries(ctx, first, series.ActionUpdate, testNow))

	second := createTestSeries("X", "Weekly", 2)
	second.Metadata.Title = "renamed"
	second.Observations[1].Value = nil
	require.NoError(t, s.SaveSeries(ctx, second, series.ActionUpdate, testNow))

	md, err := s.GetMetadata(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "renamed", md.Title)
	assert.Equal(t, "Weekly", md.Frequency)

	obs, err := s.Observations(ctx, "X")
	require.NoError(t, err)
	require.Len(t, obs, 2)
	require.NotNil(t, obs[0].Value)
	assert.Nil(t, obs[1].Value)
}

func TestSaveSeries_AtomicOnFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(`
		CREATE TRIGGER reject_boom BEFORE INSERT ON series_values
		WHEN NEW.date = 'boom'
		BEGIN SELECT RAISE(ABORT, 'boom'); END
	`)
	require.NoError(t, err)

	fs := createTestSeries("BAD", "Daily", 3)
	fs.Observations = append(fs.Observations, series.Observation{Date: "boom"})

	err = s.SaveSeries(ctx, fs, series.ActionUpdate, testNow)
	require.Error(t, err)

	assert.Equal(t, 0, countRows(t, s, "SELECT COUNT(*) FROM series_metadata"))
	assert.Equal(t, 0, countRows(t, s, "SELECT COUNT(*) FROM series_values"))
	assert.Equal(t, 0, countRows(t, s, "SELECT COUNT(*) FROM update_log"))
}

func TestSaveSeries_RequiresID(t *testing.T) {
	s := createTestStore(t)
	err := s.SaveSeries(context.Background(), &series.FetchedSeries{}, series.ActionUpdate, testNow)
	assert.Error(t, err)
}

func TestRecordFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSeries(ctx, createTestSeries("X", "Daily", 1), series.ActionUpdate, testNow))

	later := testNow.Add(2 * time.Hour)
	require.NoError(t, s.RecordFailure(ctx, "X", series.ActionRetry, "TIMEOUT: page load", later))

	md, err := s.GetMetadata(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, series.FormatTime(later), *md.LastChecked)
	assert.Equal(t, "X title", md.Title, "failure must not touch other metadata")

	entries, err := s.LogEntriesSince(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, series.StatusError, entries[1].Status)
	assert.Equal(t, series.ActionRetry, entries[1].Action)
	assert.Equal(t, "TIMEOUT: page load", entries[1].Message)
}

func TestRecordFailure_UnknownSeriesOnlyLogs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordFailure(ctx, "NOPE", series.ActionUpdate, "NOT_FOUND", testNow))

	assert.Equal(t, 0, countRows(t, s, "SELECT COUNT(*) FROM series_metadata"))
	assert.Equal(t, 1, countRows(t, s, "SELECT COUNT(*) FROM update_log WHERE status = 'ERROR'"))
}

func TestTouchLastChecked(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSeries(ctx, createTestSeries("X", "Daily", 1), series.ActionUpdate, testNow))
	later := testNow.Add(26 * time.Hour)
	require.NoError(t, s.TouchLastChecked(ctx, "X", later))

	md, err := s.GetMetadata(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, series.FormatTime(later), *md.LastChecked)

	// Unknown ids are ignored and never create a row.
	require.NoError(t, s.TouchLastChecked(ctx, "GHOST", later))
	assert.Equal(t, 1, countRows(t, s, "SELECT COUNT(*) FROM series_metadata"))

	// No log entry for a timestamp bump.
	assert.Equal(t, 1, countRows(t, s, "SELECT COUNT(*) FROM update_log"))
}

func TestAppendLog_AppendOnly(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var lastID int64
	for i := 0; i < 5; i++ {
		id, err := s.AppendLog(ctx, logAt(testNow, "X", series.ActionUpdate, series.StatusError, "boom"))
		require.NoError(t, err)
		assert.Greater(t, id, lastID)
		lastID = id

		n, err := s.CountLog(ctx)
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}
}

func TestAppendLog_RequiresTimestamp(t *testing.T) {
	s := createTestStore(t)
	_, err := s.AppendLog(context.Background(), series.LogEntry{SeriesID: "X"})
	assert.Error(t, err)
}

func TestRegisterSeries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	created, err := s.RegisterSeries(ctx, series.Metadata{SeriesID: "UNRATE", Frequency: "Monthly"})
	require.NoError(t, err)
	assert.True(t, created)

	md, err := s.GetMetadata(ctx, "UNRATE")
	require.NoError(t, err)
	assert.Equal(t, "Monthly", md.Frequency)
	assert.Nil(t, md.LastChecked)

	// A second registration never overwrites.
	created, err = s.RegisterSeries(ctx, series.Metadata{SeriesID: "UNRATE", Frequency: "Annual"})
	require.NoError(t, err)
	assert.False(t, created)
	md, err = s.GetMetadata(ctx, "UNRATE")
	require.NoError(t, err)
	assert.Equal(t, "Monthly", md.Frequency)

	assert.Equal(t, 0, countRows(t, s, "SELECT COUNT(*) FROM update_log"))

	_, err = s.RegisterSeries(ctx, series.Metadata{})
	assert.Error(t, err)
}
