package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/serieswatch/internal/series"
)

// FrequencyCount is one bucket of the frequency distribution.
type FrequencyCount struct {
	Frequency string `json:"frequency"`
	Count     int    `json:"count"`
}

// SeriesCount pairs a series with a count of log entries.
type SeriesCount struct {
	SeriesID string `json:"series_id"`
	Count    int    `json:"count"`
}

// Stats is a point-in-time summary of the database contents.
type Stats struct {
	SeriesCount          int              `json:"series_count"`
	ValueCount           int              `json:"value_count"`
	LogCount             int              `json:"log_count"`
	Frequencies          []FrequencyCount `json:"frequencies"`
	LastSuccessfulUpdate string           `json:"last_successful_update,omitempty"`
	EarliestObservation  string           `json:"earliest_observation,omitempty"`
	LatestObservation    string           `json:"latest_observation,omitempty"`
}

// Stats gathers row counts, the frequency distribution and the most recent
// successful update.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM series_metadata`, &st.SeriesCount},
		{`SELECT COUNT(*) FROM series_values`, &st.ValueCount},
		{`SELECT COUNT(*) FROM update_log`, &st.LogCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
	}

	freqs, err := s.frequencyDistribution(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.Frequencies = freqs

	var last, earliest, latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM update_log
		WHERE status = ? AND series_id != ?
	`, string(series.StatusSuccess), series.SystemID).Scan(&last); err != nil {
		return Stats{}, fmt.Errorf("stats: last update: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(date), MAX(date) FROM series_values`,
	).Scan(&earliest, &latest); err != nil {
		return Stats{}, fmt.Errorf("stats: date range: %w", err)
	}
	st.LastSuccessfulUpdate = last.String
	st.EarliestObservation = earliest.String
	st.LatestObservation = latest.String

	return st, nil
}

func (s *Store) frequencyDistribution(ctx context.Context) ([]FrequencyCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(frequency, ''), COUNT(*) AS n
		FROM series_metadata
		GROUP BY COALESCE(frequency, '')
		ORDER BY n DESC, 1 ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query frequencies: %w", err)
	}
	defer rows.Close()

	out := []FrequencyCount{}
	for rows.Next() {
		var fc FrequencyCount
		if err := rows.Scan(&fc.Frequency, &fc.Count); err != nil {
			return nil, fmt.Errorf("scan frequency: %w", err)
		}
		out = append(out, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frequencies: %w", err)
	}
	return out, nil
}

// UpdatedSince counts distinct series with a successful fetch since the
// given time.
func (s *Store) UpdatedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT series_id) FROM update_log
		WHERE status = ? AND series_id != ? AND timestamp >= ?
	`, string(series.StatusSuccess), series.SystemID, series.FormatTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count updated series: %w", err)
	}
	return n, nil
}

// TopUpdated returns the series with the most successful fetches since the
// given time, most frequent first.
func (s *Store) TopUpdated(ctx context.Context, since time.Time, limit int) ([]SeriesCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT series_id, COUNT(*) AS n FROM update_log
		WHERE status = ? AND series_id != ? AND timestamp >= ?
		GROUP BY series_id
		ORDER BY n DESC, MIN(id) ASC
		LIMIT ?
	`, string(series.StatusSuccess), series.SystemID, series.FormatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("query top updated: %w", err)
	}
	defer rows.Close()

	out := []SeriesCount{}
	for rows.Next() {
		var sc SeriesCount
		if err := rows.Scan(&sc.SeriesID, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan top updated: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top updated: %w", err)
	}
	return out, nil
}
