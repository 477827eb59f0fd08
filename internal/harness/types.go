package harness

import "github.com/roach88/serieswatch/internal/engine"

// TraceEvent is one update_log row.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Timestamp string `json:"timestamp"`
	SeriesID  string `json:"series_id"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// StepResult records what one step produced.
type StepResult struct {
	Op      string         `json:"op"`
	Series  string         `json:"series,omitempty"`
	Summary engine.Summary `json:"summary"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Trace holds every log row in write order.
	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
