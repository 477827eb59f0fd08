package harness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/serieswatch/internal/store"
)

// AssertionContext gives state assertions access to the database.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s %s\n", ev.Seq, ev.SeriesID, ev.Action, ev.Status, ev.Message)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// matches applies the assertion's trace filters to one event.
func matches(ev TraceEvent, a Assertion) bool {
	if a.Series != "" && ev.SeriesID != a.Series {
		return false
	}
	if a.Action != "" && ev.Action != a.Action {
		return false
	}
	if a.Status != "" && ev.Status != a.Status {
		return false
	}
	if a.Message != "" && !strings.Contains(ev.Message, a.Message) {
		return false
	}
	return true
}

func describe(a Assertion) string {
	var parts []string
	for _, f := range []struct{ k, v string }{
		{"series", a.Series}, {"action", a.Action}, {"status", a.Status}, {"message~", a.Message},
	} {
		if f.v != "" {
			parts = append(parts, f.k+"="+f.v)
		}
	}
	if len(parts) == 0 {
		return "any row"
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that at least one row matches the filters.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the series' statuses appear in the given
// order. Rows in between are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	var seen []string
	for _, ev := range trace {
		if ev.SeriesID != a.Series {
			continue
		}
		seen = append(seen, ev.Status)
		if next < len(a.Statuses) && ev.Status == a.Statuses[next] {
			next++
		}
	}
	if next == len(a.Statuses) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("%s statuses in order %v", a.Series, a.Statuses),
		Actual:   fmt.Sprintf("%v", seen),
		Trace:    trace,
	}
}

// assertTraceCount checks the number of matching rows.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d rows with %s", a.Count, describe(a)),
		Actual:   fmt.Sprintf("%d rows", count),
		Trace:    trace,
	}
}

// assertFinalState compares stored metadata and the observation count.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Store == nil {
		return errors.New("final_state requires a store")
	}
	md, err := actx.Store.GetMetadata(actx.Ctx, a.Series)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("metadata row for %s", a.Series),
			Actual:   err.Error(),
		}
	}

	actual := map[string]string{
		"title":        md.Title,
		"frequency":    md.Frequency,
		"units":        md.Units,
		"last_updated": md.LastUpdated,
		"source":       md.Source,
		"last_checked": "null",
	}
	if md.LastChecked != nil {
		actual["last_checked"] = *md.LastChecked
	}
	if _, ok := a.Expect["observations"]; ok {
		obs, err := actx.Store.Observations(actx.Ctx, a.Series)
		if err != nil {
			return fmt.Errorf("read observations: %w", err)
		}
		actual["observations"] = strconv.Itoa(len(obs))
	}

	var mismatches []string
	for _, k := range finalStateKeys {
		want, ok := a.Expect[k]
		if !ok {
			continue
		}
		got := actual[k]
		if k == "last_checked" && want == "set" && got != "null" {
			continue
		}
		if got != want {
			mismatches = append(mismatches, fmt.Sprintf("%s=%q (want %q)", k, got, want))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%s %v", a.Series, a.Expect),
		Actual:   strings.Join(mismatches, ", "),
	}
}
