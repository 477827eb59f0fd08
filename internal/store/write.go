package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/serieswatch/internal/series"
)

// SaveSeries stores one successful fetch as a single transaction: the
// metadata upsert (with last_checked set to now), every observation row and
// one SUCCESS log entry carrying the observation count.
//
// Observations are upserted on (series_id, date), so saving the same fetch
// twice leaves row counts unchanged.
func (s *Store) SaveSeries(ctx context.Context, fs *series.FetchedSeries, action series.Action, now time.Time) error {
	if fs == nil || fs.Metadata.SeriesID == "" {
		return fmt.Errorf("save series: missing series id")
	}
	id := fs.Metadata.SeriesID
	ts := series.FormatTime(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save series %s: begin: %w", id, err)
	}
	defer tx.Rollback()

	md := fs.Metadata
	_, err = tx.ExecContext(ctx, `
		INSERT INTO series_metadata
		(series_id, title, frequency, units, seasonal_adjustment, last_updated, last_checked, source, data_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(series_id) DO UPDATE SET
			title = excluded.title,
			frequency = excluded.frequency,
			units = excluded.units,
			seasonal_adjustment = excluded.seasonal_adjustment,
			last_updated = excluded.last_updated,
			last_checked = excluded.last_checked,
			source = excluded.source,
			data_source = excluded.data_source
	`,
		id,
		nullString(md.Title),
		nullString(md.Frequency),
		nullString(md.Units),
		nullString(md.SeasonalAdjustment),
		nullString(md.LastUpdated),
		ts,
		nullString(md.Source),
		nullString(md.DataSource),
	)
	if err != nil {
		return fmt.Errorf("save series %s: metadata: %w", id, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO series_values (series_id, date, value)
		VALUES (?, ?, ?)
		ON CONFLICT(series_id, date) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("save series %s: prepare values: %w", id, err)
	}
	defer stmt.Close()

	for _, obs := range fs.Observations {
		if _, err := stmt.ExecContext(ctx, id, obs.Date, nullFloat(obs.Value)); err != nil {
			return fmt.Errorf("save series %s: value %s: %w", id, obs.Date, err)
		}
	}

	if err := insertLog(ctx, tx, series.LogEntry{
		Timestamp: ts,
		SeriesID:  id,
		Action:    action,
		Status:    series.StatusSuccess,
		Message:   fmt.Sprintf("Stored %d observations", len(fs.Observations)),
	}); err != nil {
		return fmt.Errorf("save series %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save series %s: commit: %w", id, err)
	}
	return nil
}

// RecordFailure bumps last_checked (when the series row exists) and appends
// one ERROR log entry, atomically. Stored metadata is otherwise untouched.
func (s *Store) RecordFailure(ctx context.Context, seriesID string, action series.Action, message string, now time.Time) error {
	ts := series.FormatTime(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record failure %s: begin: %w", seriesID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE series_metadata SET last_checked = ? WHERE series_id = ?`,
		ts, seriesID,
	); err != nil {
		return fmt.Errorf("record failure %s: touch: %w", seriesID, err)
	}

	if err := insertLog(ctx, tx, series.LogEntry{
		Timestamp: ts,
		SeriesID:  seriesID,
		Action:    action,
		Status:    series.StatusError,
		Message:   message,
	}); err != nil {
		return fmt.Errorf("record failure %s: %w", seriesID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record failure %s: commit: %w", seriesID, err)
	}
	return nil
}

// RegisterSeries inserts a metadata row without fetching, leaving an
// existing row untouched. It reports whether a row was created. Used to
// import known ids so the scheduler picks them up on the next pass.
func (s *Store) RegisterSeries(ctx context.Context, md series.Metadata) (bool, error) {
	if md.SeriesID == "" {
		return false, fmt.Errorf("register series: missing series id")
	}
	var checked sql.NullString
	if md.LastChecked != nil {
		checked = nullString(*md.LastChecked)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO series_metadata
		(series_id, title, frequency, units, seasonal_adjustment, last_updated, last_checked, source, data_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(series_id) DO NOTHING
	`,
		md.SeriesID,
		nullString(md.Title),
		nullString(md.Frequency),
		nullString(md.Units),
		nullString(md.SeasonalAdjustment),
		nullString(md.LastUpdated),
		checked,
		nullString(md.Source),
		nullString(md.DataSource),
	)
	if err != nil {
		return false, fmt.Errorf("register series %s: %w", md.SeriesID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("register series %s: rows affected: %w", md.SeriesID, err)
	}
	return n == 1, nil
}

// TouchLastChecked sets last_checked for an existing series. It is a no-op
// for unknown ids; the row is only created by a successful fetch.
func (s *Store) TouchLastChecked(ctx context.Context, seriesID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE series_metadata SET last_checked = ? WHERE series_id = ?`,
		series.FormatTime(now), seriesID,
	)
	if err != nil {
		return fmt.Errorf("touch last_checked %s: %w", seriesID, err)
	}
	return nil
}

// AppendLog writes a standalone log entry and returns its id.
// An empty Timestamp is rejected; callers stamp entries with their clock.
func (s *Store) AppendLog(ctx context.Context, entry series.LogEntry) (int64, error) {
	if entry.Timestamp == "" {
		return 0, fmt.Errorf("append log: missing timestamp")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO update_log (timestamp, series_id, action, status, message)
		VALUES (?, ?, ?, ?, ?)
	`, entry.Timestamp, entry.SeriesID, string(entry.Action), string(entry.Status), entry.Message)
	if err != nil {
		return 0, fmt.Errorf("append log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append log: last insert id: %w", err)
	}
	return id, nil
}

func insertLog(ctx context.Context, tx *sql.Tx, entry series.LogEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO update_log (timestamp, series_id, action, status, message)
		VALUES (?, ?, ?, ?, ?)
	`, entry.Timestamp, entry.SeriesID, string(entry.Action), string(entry.Status), entry.Message)
	if err != nil {
		return fmt.Errorf("log entry: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
