package enrich

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// MissingInputError means the record has no source URL; no I/O is attempted.
type MissingInputError struct {
	RecordID string
}

func (e *MissingInputError) Error() string {
	return "No source URL provided"
}

// ToolUnavailableError means the extraction tool could neither be probed nor installed.
type ToolUnavailableError struct {
	ProbeErr   error
	InstallErr error
}

func (e *ToolUnavailableError) Error() string {
	return fmt.Sprintf("extraction tool unavailable: probe: %v; install: %v", e.ProbeErr, e.InstallErr)
}

// Unwrap exposes both underlying failures.
func (e *ToolUnavailableError) Unwrap() []error {
	return []error{e.ProbeErr, e.InstallErr}
}

// ExtractionError wraps a failed extraction attempt.
type ExtractionError struct {
	Strategy string
	URL      string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed for %s: %v", e.Strategy, e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NetworkError is a soft failure from a thumbnail probe or metadata API call.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RecordWriteError wraps a failed field-level update against the record store.
type RecordWriteError struct {
	RecordID string
	Op       string
	Err      error
}

func (e *RecordWriteError) Error() string {
	return fmt.Sprintf("write %s for record %s: %v", e.Op, e.RecordID, e.Err)
}

func (e *RecordWriteError) Unwrap() error { return e.Err }
