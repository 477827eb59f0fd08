package oracle

import (
	"context"
	"errors"
	"fmt"
)

// Kind categorizes fetch failures.
type Kind string

const (
	// KindAccessDenied indicates the portal's bot protection rejected the request.
	KindAccessDenied Kind = "ACCESS_DENIED"

	// KindTimeout indicates a page did not load in time.
	KindTimeout Kind = "TIMEOUT"

	// KindNotFound indicates the series or page does not exist.
	KindNotFound Kind = "NOT_FOUND"

	// KindParseFailure indicates the page loaded but could not be understood.
	KindParseFailure Kind = "PARSE_FAILURE"

	// KindUnknown covers every other failure, including recovered panics.
	KindUnknown Kind = "UNKNOWN"
)

// Transient reports whether failures of this kind are worth retrying.
func (k Kind) Transient() bool {
	return k == KindAccessDenied || k == KindTimeout
}

// FetchError is a classified portal failure.
type FetchError struct {
	Kind     Kind
	SeriesID string // empty for non-series pages
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.SeriesID != "" {
		return fmt.Sprintf("%s: %s (series=%s)", e.Kind, msg, e.SeriesID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a FetchError of the given kind.
func NewFetchError(kind Kind, seriesID, message string) *FetchError {
	return &FetchError{Kind: kind, SeriesID: seriesID, Message: message}
}

// WrapFetchError wraps err with a kind.
func WrapFetchError(kind Kind, seriesID string, err error) *FetchError {
	return &FetchError{Kind: kind, SeriesID: seriesID, Err: err}
}

// KindOf classifies any error. Context deadlines map to KindTimeout;
// unrecognized errors map to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Classify returns err as a *FetchError, wrapping it when necessary.
func Classify(err error, seriesID string) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return WrapFetchError(KindOf(err), seriesID, err)
}

// IsTransient returns true if err is worth retrying.
// Uses errors.As to handle wrapped errors.
func IsTransient(err error) bool {
	return KindOf(err).Transient()
}

// IsAccessDenied returns true if err is an access-denied failure.
func IsAccessDenied(err error) bool {
	return KindOf(err) == KindAccessDenied
}
