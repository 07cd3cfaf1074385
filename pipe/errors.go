package pipe

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by Connect once a relay reached a terminal state
	ErrNotReady = errors.New("pipe: not ready")

	// ErrIllegalArgument is returned when a relay is built with a missing endpoint
	ErrIllegalArgument = errors.New("pipe: illegal argument")

	// ErrInterrupted reports cancellation, either requested by a caller or
	// caused by the cancellation of the waiting context
	ErrInterrupted = errors.New("pipe: interrupted")

	// ErrTimeout reports that a bounded wait elapsed first. It never changes
	// the state of what was awaited.
	ErrTimeout = errors.New("pipe: timeout")

	// errStopped ends a copy loop that observed cancellation
	errStopped = errors.New("pipe: copy stopped")
)

// BrokenPipeError reports an I/O failure during a relay copy loop
type BrokenPipeError struct {
	// Pipe is the name of the relay that broke
	Pipe string
	// Err is the underlying I/O error
	Err error
}

func (e *BrokenPipeError) Error() string {
	return fmt.Sprintf("pipe: %s broken: %v", e.Pipe, e.Err)
}

func (e *BrokenPipeError) Unwrap() error {
	return e.Err
}
