package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/serieswatch/internal/store"
)

const topUpdatedLimit = 10

// Report is the JSON document written by WriteReport.
type Report struct {
	GeneratedAt    string                 `json:"generated_at"`
	Integrity      store.IntegrityReport  `json:"integrity"`
	Stats          store.Stats            `json:"stats"`
	Day            ErrorAnalysis          `json:"errors_24h"`
	Week           ErrorAnalysis          `json:"errors_7d"`
	UpdatedLast24h int                    `json:"updated_last_24h"`
	TopUpdated     []store.SeriesCount    `json:"top_updated_7d"`
	Frequencies    []store.FrequencyCount `json:"frequencies"`
}

// BuildReport gathers the report without writing it.
func (m *Monitor) BuildReport(ctx context.Context) (Report, error) {
	now := m.clock.Now()
	r := Report{GeneratedAt: now.UTC().Format(time.RFC3339)}

	var err error
	if r.Integrity, err = m.store.CheckIntegrity(ctx); err != nil {
		return r, fmt.Errorf("report: %w", err)
	}
	if r.Stats, err = m.store.Stats(ctx); err != nil {
		return r, fmt.Errorf("report: %w", err)
	}
	r.Frequencies = r.Stats.Frequencies
	if r.Day, err = m.AnalyzeErrors(ctx, 1); err != nil {
		return r, fmt.Errorf("report: %w", err)
	}
	if r.Week, err = m.AnalyzeErrors(ctx, 7); err != nil {
		return r, fmt.Errorf("report: %w", err)
	}
	if r.UpdatedLast24h, err = m.store.UpdatedSince(ctx, now.Add(-24*time.Hour)); err != nil {
		return r, fmt.Errorf("report: %w", err)
	}
	if r.TopUpdated, err = m.store.TopUpdated(ctx, now.Add(-7*24*time.Hour), topUpdatedLimit); err != nil {
		return r, fmt.Errorf("report: %w", err)
	}
	return r, nil
}

// WriteReport builds the report and writes it to
// <report_dir>/report_<YYYYMMDD_HHMMSS>.json.
func (m *Monitor) WriteReport(ctx context.Context) (Report, string, error) {
	r, err := m.BuildReport(ctx)
	if err != nil {
		return r, "", err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return r, "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(m.cfg.ReportDir, 0o755); err != nil {
		return r, "", fmt.Errorf("report dir: %w", err)
	}
	name := fmt.Sprintf("report_%s.json", m.clock.Now().UTC().Format("20060102_150405"))
	p := filepath.Join(m.cfg.ReportDir, name)
	if err := os.WriteFile(p, append(data, '\n'), 0o644); err != nil {
		return r, "", fmt.Errorf("write report: %w", err)
	}
	m.logger.InfoContext(ctx, "report written", "path", p)
	return r, p, nil
}
