package series

// SystemID is the series_id used for process-level log entries.
const SystemID = "SYSTEM"

// Action identifies what kind of operation produced a log entry.
type Action string

const (
	ActionUpdate      Action = "UPDATE"
	ActionRetry       Action = "RETRY"
	ActionDailyUpdate Action = "DAILY_UPDATE"
)

// Status is the outcome recorded in a log entry.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Metadata describes one series as stored in series_metadata.
//
// LastUpdated is the provider-reported string and is compared verbatim.
// LastChecked is nil until the series has been checked at least once.
type Metadata struct {
	SeriesID           string
	Title              string
	Frequency          string
	Units              string
	SeasonalAdjustment string
	LastUpdated        string
	LastChecked        *string
	Source             string
	DataSource         string
}

// Observation is one (date, value) point. A nil Value is a missing
// observation (the provider publishes "." for those).
type Observation struct {
	Date  string
	Value *float64
}

// FetchedSeries is what the fetch oracle returns for a successful fetch.
type FetchedSeries struct {
	Metadata     Metadata
	Observations []Observation
}

// LogEntry is one row of the append-only operation log.
type LogEntry struct {
	ID        int64
	Timestamp string
	SeriesID  string
	Action    Action
	Status    Status
	Message   string
}

// Float returns a pointer to v. Handy for building observations.
func Float(v float64) *float64 {
	return &v
}
