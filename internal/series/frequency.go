package series

import (
	"strings"

	"golang.org/x/text/cases"
)

// Frequency is a canonical cadence keyword.
type Frequency string

const (
	Daily     Frequency = "Daily"
	Weekly    Frequency = "Weekly"
	Biweekly  Frequency = "Biweekly"
	Monthly   Frequency = "Monthly"
	Quarterly Frequency = "Quarterly"
)

// DefaultIntervalDays applies to frequencies outside the admitted table.
const DefaultIntervalDays = 1

type frequencyRule struct {
	freq     Frequency
	keyword  string
	interval int
}

// Order matters: "Biweekly" contains "weekly", so it resolves to Weekly.
// The order is kept fixed so that results are reproducible.
var frequencyRules = []frequencyRule{
	{Daily, "daily", 1},
	{Weekly, "weekly", 1},
	{Biweekly, "biweekly", 2},
	{Monthly, "monthly", 2},
	{Quarterly, "quarterly", 7},
}

// AdmittedFrequencies lists the canonical frequencies in match order.
func AdmittedFrequencies() []Frequency {
	out := make([]Frequency, len(frequencyRules))
	for i, r := range frequencyRules {
		out[i] = r.freq
	}
	return out
}

// Resolve maps a provider label such as "Daily, Close" or "MONTHLY" to its
// canonical frequency. ok is false when no keyword matches.
func Resolve(label string) (Frequency, bool) {
	rule, ok := match(label)
	if !ok {
		return "", false
	}
	return rule.freq, true
}

// IsAdmittedFrequency reports whether label belongs to the active set.
func IsAdmittedFrequency(label string) bool {
	_, ok := match(label)
	return ok
}

// IntervalDays returns the recheck interval for label.
func IntervalDays(label string) int {
	if rule, ok := match(label); ok {
		return rule.interval
	}
	return DefaultIntervalDays
}

func match(label string) (frequencyRule, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return frequencyRule{}, false
	}
	folded := cases.Fold().String(label)
	for _, r := range frequencyRules {
		if strings.Contains(folded, r.keyword) {
			return r, true
		}
	}
	return frequencyRule{}, false
}
