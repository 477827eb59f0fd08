package monitor

import (
	"context"
	"log/slog"
	"time"
)

// Alert is one threshold breach.
type Alert struct {
	Subject    string
	ErrorCount int
	Threshold  int
	ErrorRate  float64
	TopErrors  []MessageCount
	At         time.Time
}

// Alerter delivers alerts.
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// LogAlerter writes alerts to a structured logger at error level.
type LogAlerter struct {
	Logger *slog.Logger
}

// Alert implements Alerter.
func (l *LogAlerter) Alert(ctx context.Context, a Alert) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"errors", a.ErrorCount,
		"threshold", a.Threshold,
		"error_rate", a.ErrorRate,
		"at", a.At.Format(time.RFC3339),
	}
	if len(a.TopErrors) > 0 {
		attrs = append(attrs, "top_error", a.TopErrors[0].Message)
	}
	logger.ErrorContext(ctx, a.Subject, attrs...)
	return nil
}
