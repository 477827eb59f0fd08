package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/serieswatch/internal/series"
)

// TopN bounds the ranked lists in ErrorAnalysis.
const TopN = 10

// MessageCount pairs an error message with how often it occurred.
type MessageCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// SeriesErrors pairs a series with its error count.
type SeriesErrors struct {
	SeriesID string `json:"series_id"`
	Count    int    `json:"count"`
}

// ErrorAnalysis summarizes the log over a trailing window.
type ErrorAnalysis struct {
	Days             int            `json:"days"`
	Total            int            `json:"total"`
	ErrorCount       int            `json:"error_count"`
	SuccessCount     int            `json:"success_count"`
	ErrorRate        float64        `json:"error_rate"`
	TopErrorMessages []MessageCount `json:"top_error_messages"`
	TopErrorSeries   []SeriesErrors `json:"top_error_series"`
}

// AnalyzeErrors groups the last days of log entries by status, message and
// series. Ranked lists are ordered by count, ties by first appearance.
func (m *Monitor) AnalyzeErrors(ctx context.Context, days int) (ErrorAnalysis, error) {
	since := m.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	entries, err := m.store.LogEntriesSince(ctx, since)
	if err != nil {
		return ErrorAnalysis{}, fmt.Errorf("analyze errors: %w", err)
	}
	return analyze(entries, days), nil
}

func analyze(entries []series.LogEntry, days int) ErrorAnalysis {
	a := ErrorAnalysis{Days: days, Total: len(entries)}
	messages := newRanking()
	ids := newRanking()

	for _, e := range entries {
		switch e.Status {
		case series.StatusError:
			a.ErrorCount++
			messages.add(e.Message)
			ids.add(e.SeriesID)
		case series.StatusSuccess:
			a.SuccessCount++
		}
	}
	if a.Total > 0 {
		a.ErrorRate = float64(a.ErrorCount) / float64(a.Total)
	}

	a.TopErrorMessages = []MessageCount{}
	for _, r := range messages.top(TopN) {
		a.TopErrorMessages = append(a.TopErrorMessages, MessageCount{Message: r.key, Count: r.count})
	}
	a.TopErrorSeries = []SeriesErrors{}
	for _, r := range ids.top(TopN) {
		a.TopErrorSeries = append(a.TopErrorSeries, SeriesErrors{SeriesID: r.key, Count: r.count})
	}
	return a
}

type ranked struct {
	key   string
	count int
}

// ranking counts keys and remembers the order they first appeared in.
type ranking struct {
	index map[string]int
	items []ranked
}

func newRanking() *ranking {
	return &ranking{index: map[string]int{}}
}

func (r *ranking) add(key string) {
	if i, ok := r.index[key]; ok {
		r.items[i].count++
		return
	}
	r.index[key] = len(r.items)
	r.items = append(r.items, ranked{key: key, count: 1})
}

func (r *ranking) top(n int) []ranked {
	out := append([]ranked(nil), r.items...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].count > out[j].count
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
