package engine

import (
	"errors"
	"fmt"
)

// RetryQuota caps how many RETRY attempts a series may accumulate inside
// one retry window.
//
// The count comes from the operation log, not from memory, so the quota
// holds across processes and restarts. Because the window rolls, a series
// that hit the quota becomes eligible again once its old RETRY entries age
// out.
type RetryQuota struct {
	maxRetries int
}

// NewRetryQuota creates a quota allowing up to maxRetries attempts per window.
func NewRetryQuota(maxRetries int) *RetryQuota {
	return &RetryQuota{maxRetries: maxRetries}
}

// Check validates a series' in-window retry count against the limit.
//
// Returns QuotaExceededError once retries >= the limit.
func (q *RetryQuota) Check(seriesID string, retries int) error {
	if retries >= q.maxRetries {
		return &QuotaExceededError{
			SeriesID: seriesID,
			Retries:  retries,
			Limit:    q.maxRetries,
		}
	}
	return nil
}

// Limit returns the maximum retries per window.
func (q *RetryQuota) Limit() int {
	return q.maxRetries
}

// QuotaExceededError is returned when a series has used its retry quota.
type QuotaExceededError struct {
	SeriesID string
	Retries  int
	Limit    int
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("series %s exceeded retry quota: %d retries >= %d limit",
		e.SeriesID, e.Retries, e.Limit)
}

// IsQuotaExceeded returns true if the error is a QuotaExceededError.
// Uses errors.As to handle wrapped errors.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}
