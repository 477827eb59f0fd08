package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/series"
)

// Scenario defines an end-to-end scheduling scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workers defaults to 1.
	Workers int `yaml:"workers,omitempty"`

	// RetryLimit defaults to 3.
	RetryLimit int `yaml:"retry_limit,omitempty"`

	// PeekLastUpdated defaults to true.
	PeekLastUpdated *bool `yaml:"peek_last_updated,omitempty"`

	// RunID is the fixed run id stamped into pass summaries.
	RunID string `yaml:"run_id,omitempty"`

	// Series are registered before the first step.
	Series []SeriesSetup `yaml:"series,omitempty"`

	// Oracle scripts fetch results per series id. Results are consumed in
	// order and the last one repeats. Unscripted ids fail with NOT_FOUND.
	Oracle map[string][]Response `yaml:"oracle,omitempty"`

	// Peeks scripts the portal's last-updated answer per series id.
	Peeks map[string]string `yaml:"peeks,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// SeriesSetup is a metadata row present before the scenario starts.
type SeriesSetup struct {
	ID          string `yaml:"id"`
	Frequency   string `yaml:"frequency"`
	LastUpdated string `yaml:"last_updated,omitempty"`

	// CheckedDaysAgo is nil for a series that was never checked.
	CheckedDaysAgo *float64 `yaml:"checked_days_ago,omitempty"`
}

// Response is one scripted fetch result.
type Response struct {
	Observations int    `yaml:"observations,omitempty"`
	Frequency    string `yaml:"frequency,omitempty"`
	LastUpdated  string `yaml:"last_updated,omitempty"`

	// Error is an oracle error kind such as ACCESS_DENIED. When set the
	// fetch fails and the other fields are ignored.
	Error   string `yaml:"error,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// Step drives the engine once.
type Step struct {
	Op string `yaml:"op"`

	// Series is the id for fetch steps.
	Series string `yaml:"series,omitempty"`

	MinDays    *int    `yaml:"min_days,omitempty"`
	Limit      int     `yaml:"limit,omitempty"`
	Days       float64 `yaml:"days,omitempty"`
	MaxRetries int     `yaml:"max_retries,omitempty"`

	// Expect is a subset match on the step summary. Keys are updated,
	// skipped, failed and unprocessed.
	Expect map[string]int `yaml:"expect,omitempty"`
}

// Assertion validates the trace or the final database state.
type Assertion struct {
	Type string `yaml:"type"`

	// Trace filters. Empty fields match anything.
	Series  string `yaml:"series,omitempty"`
	Action  string `yaml:"action,omitempty"`
	Status  string `yaml:"status,omitempty"`
	Message string `yaml:"message,omitempty"` // substring

	// Statuses is the expected status order for trace_order.
	Statuses []string `yaml:"statuses,omitempty"`

	// Count is the expected number of matching rows for trace_count.
	Count int `yaml:"count,omitempty"`

	// Expect holds column values for final_state. "observations" is the
	// stored point count; last_checked accepts "null" and "set".
	Expect map[string]string `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpPass    = "pass"
	OpRetry   = "retry"
	OpFetch   = "fetch"
	OpAdvance = "advance"
)

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

var (
	summaryKeys    = []string{"updated", "skipped", "failed", "unprocessed"}
	finalStateKeys = []string{"title", "frequency", "units", "last_updated", "last_checked", "source", "observations"}
)

var errorKinds = []oracle.Kind{
	oracle.KindAccessDenied, oracle.KindTimeout, oracle.KindNotFound,
	oracle.KindParseFailure, oracle.KindUnknown,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	seen := map[string]bool{}
	for i, setup := range s.Series {
		if setup.ID == "" {
			return fmt.Errorf("series[%d]: id is required", i)
		}
		if seen[setup.ID] {
			return fmt.Errorf("series[%d]: duplicate id %q", i, setup.ID)
		}
		seen[setup.ID] = true
		if setup.CheckedDaysAgo != nil && *setup.CheckedDaysAgo < 0 {
			return fmt.Errorf("series[%d]: checked_days_ago must be non-negative", i)
		}
	}

	for id, responses := range s.Oracle {
		if len(responses) == 0 {
			return fmt.Errorf("oracle[%s]: at least one response is required", id)
		}
		for i, r := range responses {
			if r.Error != "" && !slices.Contains(errorKinds, oracle.Kind(r.Error)) {
				return fmt.Errorf("oracle[%s][%d]: unknown error kind %q", id, i, r.Error)
			}
			if r.Observations < 0 {
				return fmt.Errorf("oracle[%s][%d]: observations must be non-negative", id, i)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Op {
	case OpPass, OpRetry:
	case OpFetch:
		if st.Series == "" {
			return fmt.Errorf("steps[%d]: series is required for fetch", index)
		}
	case OpAdvance:
		if st.Days <= 0 {
			return fmt.Errorf("steps[%d]: days must be positive for advance", index)
		}
		if st.Expect != nil {
			return fmt.Errorf("steps[%d]: advance takes no expect", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	for k := range st.Expect {
		if !slices.Contains(summaryKeys, k) {
			return fmt.Errorf("steps[%d].expect: unknown key %q", index, k)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Status != "" && !validStatus(a.Status) {
		return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Series == "" && a.Action == "" && a.Status == "" && a.Message == "" {
			return fmt.Errorf("assertions[%d]: trace_contains needs at least one filter", index)
		}
	case AssertTraceOrder:
		if a.Series == "" {
			return fmt.Errorf("assertions[%d]: series is required for trace_order", index)
		}
		if len(a.Statuses) == 0 {
			return fmt.Errorf("assertions[%d]: statuses list is required for trace_order", index)
		}
		for _, st := range a.Statuses {
			if !validStatus(st) {
				return fmt.Errorf("assertions[%d]: unknown status %q", index, st)
			}
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Series == "" {
			return fmt.Errorf("assertions[%d]: series is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for k := range a.Expect {
			if !slices.Contains(finalStateKeys, k) {
				return fmt.Errorf("assertions[%d].expect: unknown column %q", index, k)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validStatus(s string) bool {
	switch series.Status(s) {
	case series.StatusSuccess, series.StatusError:
		return true
	}
	return false
}
