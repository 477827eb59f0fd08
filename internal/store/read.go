package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/serieswatch/internal/series"
)

const metadataColumns = `series_id, title, frequency, units, seasonal_adjustment,
	last_updated, last_checked, source, data_source`

// GetMetadata returns the stored metadata for one series.
// Returns ErrNotFound if the series has never been stored.
func (s *Store) GetMetadata(ctx context.Context, seriesID string) (series.Metadata, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+metadataColumns+` FROM series_metadata WHERE series_id = ?`, seriesID)
	md, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return series.Metadata{}, fmt.Errorf("metadata %s: %w", seriesID, ErrNotFound)
	}
	if err != nil {
		return series.Metadata{}, fmt.Errorf("query metadata %s: %w", seriesID, err)
	}
	return md, nil
}

// SelectCandidates returns the series eligible for an update pass: every
// row whose frequency is admitted, optionally narrowed to rows never
// checked or last checked before now-minDays.
//
// Results are ordered by series_id so a pass is reproducible.
// Returns an empty slice (not nil) when nothing qualifies.
func (s *Store) SelectCandidates(ctx context.Context, minDays *int, now time.Time) ([]series.Metadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM series_metadata`
	var args []any
	if minDays != nil {
		cutoff := now.Add(-time.Duration(*minDays) * 24 * time.Hour)
		query += ` WHERE last_checked IS NULL OR last_checked < ?`
		args = append(args, series.FormatTime(cutoff))
	}
	query += ` ORDER BY series_id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	candidates := []series.Metadata{}
	for rows.Next() {
		md, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if !series.IsAdmittedFrequency(md.Frequency) {
			continue
		}
		candidates = append(candidates, md)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return candidates, nil
}

// Observations returns the stored points for a series ordered by date.
func (s *Store) Observations(ctx context.Context, seriesID string) ([]series.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, value FROM series_values
		WHERE series_id = ?
		ORDER BY date ASC
	`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	out := []series.Observation{}
	for rows.Next() {
		var (
			date  string
			value sql.NullFloat64
		)
		if err := rows.Scan(&date, &value); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs := series.Observation{Date: date}
		if value.Valid {
			obs.Value = series.Float(value.Float64)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}

// LogEntriesSince returns log entries with timestamp >= since, in the order
// they were written.
func (s *Store) LogEntriesSince(ctx context.Context, since time.Time) ([]series.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, series_id, action, status, COALESCE(message, '')
		FROM update_log
		WHERE timestamp >= ?
		ORDER BY id ASC
	`, series.FormatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	entries := []series.LogEntry{}
	for rows.Next() {
		var (
			e      series.LogEntry
			action string
			status string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.SeriesID, &action, &status, &e.Message); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Action = series.Action(action)
		e.Status = series.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return entries, nil
}

// CountLog returns the total number of log rows.
func (s *Store) CountLog(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM update_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count log: %w", err)
	}
	return n, nil
}

// RetryStat summarizes one series' recent failures.
type RetryStat struct {
	SeriesID string
	Errors   int // ERROR entries in the window
	Retries  int // RETRY-action entries in the window, any status
}

// RetryStats returns one row per series with at least one ERROR entry at or
// after since, excluding SYSTEM. Rows are ordered by the series' first error
// in the window.
func (s *Store) RetryStats(ctx context.Context, since time.Time) ([]RetryStat, error) {
	cutoff := series.FormatTime(since)
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.series_id,
		       COUNT(*) AS errors,
		       (SELECT COUNT(*) FROM update_log r
		         WHERE r.series_id = e.series_id
		           AND r.action = ?
		           AND r.timestamp >= ?) AS retries
		FROM update_log e
		WHERE e.status = ?
		  AND e.timestamp >= ?
		  AND e.series_id != ?
		GROUP BY e.series_id
		ORDER BY MIN(e.id) ASC
	`,
		string(series.ActionRetry), cutoff,
		string(series.StatusError), cutoff, series.SystemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query retry stats: %w", err)
	}
	defer rows.Close()

	stats := []RetryStat{}
	for rows.Next() {
		var st RetryStat
		if err := rows.Scan(&st.SeriesID, &st.Errors, &st.Retries); err != nil {
			return nil, fmt.Errorf("scan retry stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retry stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row rowScanner) (series.Metadata, error) {
	var (
		md                                       series.Metadata
		title, freq, units, sa, updated, checked sql.NullString
		source, dataSource                       sql.NullString
	)
	if err := row.Scan(&md.SeriesID, &title, &freq, &units, &sa, &updated, &checked, &source, &dataSource); err != nil {
		return series.Metadata{}, err
	}
	md.Title = title.String
	md.Frequency = freq.String
	md.Units = units.String
	md.SeasonalAdjustment = sa.String
	md.LastUpdated = updated.String
	md.Source = source.String
	md.DataSource = dataSource.String
	if checked.Valid {
		v := checked.String
		md.LastChecked = &v
	}
	return md, nil
}
