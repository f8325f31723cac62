package triage

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResult is returned when an export is requested before a result exists.
	ErrNoResult = errors.New("no diagnostic result for host")
	// ErrNoConfigDump is returned when the result carries no config dump section.
	ErrNoConfigDump = errors.New("result has no config dump")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("triage session closed")
)

// RequestError is a transport failure or a non-2xx response from the backend.
type RequestError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	return "request failed"
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// asRequestError normalizes any fetch failure into a *RequestError.
func asRequestError(err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return &RequestError{Err: err}
}
