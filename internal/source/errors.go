package source

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Reason classifies why a fetch attempt failed. Downstream consumers branch
// on these instead of string-matching error text.
type Reason string

const (
	ReasonTimeout            Reason = "timeout"
	ReasonHTTPStatus         Reason = "http_status"
	ReasonNetwork            Reason = "network"
	ReasonNoRecognizedFormat Reason = "no_recognized_format"
	ReasonMalformedStructure Reason = "malformed_structure"
	ReasonAddressNotFound    Reason = "address_not_found"
	ReasonLookupUpstream     Reason = "lookup_upstream"
)

// FetchError is the typed failure returned by every adapter. A failed fetch
// is never reported as an empty schedule.
type FetchError struct {
	Reason Reason
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func failf(reason Reason, format string, args ...any) *FetchError {
	return &FetchError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// classify wraps a transport-level error with the matching reason.
func classify(err error) *FetchError {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &FetchError{Reason: ReasonTimeout, Err: err}
	case errors.As(err, &ne) && ne.Timeout():
		return &FetchError{Reason: ReasonTimeout, Err: err}
	default:
		return &FetchError{Reason: ReasonNetwork, Err: err}
	}
}

// ReasonOf extracts the failure reason from an adapter error, or empty
// string when the error is not a FetchError.
func ReasonOf(err error) Reason {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}
