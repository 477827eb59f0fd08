package store

import (
	"context"
	"fmt"
)

// requiredColumns lists the columns every component depends on.
var requiredColumns = map[string][]string{
	"series_metadata": {"series_id", "title", "frequency", "units", "seasonal_adjustment",
		"last_updated", "last_checked", "source", "data_source"},
	"series_values": {"series_id", "date", "value"},
	"update_log":    {"id", "timestamp", "series_id", "action", "status", "message"},
}

// tableOrder keeps integrity output deterministic.
var tableOrder = []string{"series_metadata", "series_values", "update_log"}

// IntegrityReport is the result of CheckIntegrity.
type IntegrityReport struct {
	OK                 bool           `json:"ok"`
	Issues             []string       `json:"issues"`
	RowCounts          map[string]int `json:"row_counts"`
	SeriesWithoutData  int            `json:"series_without_data"`
	MissingTitle       int            `json:"missing_title"`
	MissingFrequency   int            `json:"missing_frequency"`
	OrphanObservations int            `json:"orphan_observations"`
}

// CheckIntegrity verifies that every required table and column exists and
// reports rows that violate the data model. Problems are collected as
// issues; an error is only returned when the database cannot be queried.
func (s *Store) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	report := IntegrityReport{
		Issues:    []string{},
		RowCounts: map[string]int{},
	}

	for _, table := range tableOrder {
		cols, err := s.tableColumns(ctx, table)
		if err != nil {
			return IntegrityReport{}, err
		}
		if len(cols) == 0 {
			report.Issues = append(report.Issues, fmt.Sprintf("missing table %s", table))
			continue
		}
		for _, col := range requiredColumns[table] {
			if !cols[col] {
				report.Issues = append(report.Issues, fmt.Sprintf("missing column %s.%s", table, col))
			}
		}

		var n int
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return IntegrityReport{}, fmt.Errorf("count %s: %w", table, err)
		}
		report.RowCounts[table] = n
	}

	if len(report.Issues) > 0 {
		return report, nil
	}

	checks := []struct {
		query string
		dest  *int
		issue string
	}{
		{
			`SELECT COUNT(*) FROM series_metadata m
			 WHERE NOT EXISTS (SELECT 1 FROM series_values v WHERE v.series_id = m.series_id)`,
			&report.SeriesWithoutData, "%d series have no observations",
		},
		{
			`SELECT COUNT(*) FROM series_metadata WHERE title IS NULL OR title = ''`,
			&report.MissingTitle, "%d series have no title",
		},
		{
			`SELECT COUNT(*) FROM series_metadata WHERE frequency IS NULL OR frequency = ''`,
			&report.MissingFrequency, "%d series have no frequency",
		},
		{
			`SELECT COUNT(*) FROM series_values v
			 WHERE NOT EXISTS (SELECT 1 FROM series_metadata m WHERE m.series_id = v.series_id)`,
			&report.OrphanObservations, "%d observations reference unknown series",
		},
	}
	for _, c := range checks {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return IntegrityReport{}, fmt.Errorf("integrity check: %w", err)
		}
		if *c.dest > 0 {
			report.Issues = append(report.Issues, fmt.Sprintf(c.issue, *c.dest))
		}
	}

	report.OK = len(report.Issues) == 0
	return report, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return cols, nil
}
