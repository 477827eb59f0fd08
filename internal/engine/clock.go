package engine

import "time"

// Clock supplies wall time to the engine. Staleness checks and log
// timestamps both read from it, so tests substitute a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC.
//
// Thread-safety: SystemClock is stateless and safe for concurrent use.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
