package engine

import (
	"errors"
	"fmt"
)

// ErrCycleInProgress is returned when a cycle is requested while another
// one is still running for the same handler.
var ErrCycleInProgress = errors.New("engine: cycle already in progress")

// FetchError covers network failures, timeouts and anti-automation
// rejections. The cycle is abandoned and retried on the next tick.
type FetchError struct {
	Handler string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch: %v", e.Handler, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the snapshot as a whole could not be decoded. Skipped
// fragments are not ParseErrors.
type ParseError struct {
	Handler string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse: %v", e.Handler, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError is a failed snapshot read or write.
type PersistenceError struct {
	Handler string
	Op      string // "read" or "write"
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: snapshot %s: %v", e.Handler, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotifyError is one failed announcement. It never aborts a cycle.
type NotifyError struct {
	Handler   string
	ListingID string
	Err       error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("%s: notify %s: %v", e.Handler, e.ListingID, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }
