package proc

import (
	"errors"
	"io"
	"os"
)

var (
	// ErrNotTerminated is returned by ExitCode while the process is running,
	// and by pipelines whose last stage never reported an exit code
	ErrNotTerminated = errors.New("proc: not terminated")

	// ErrTooFewStages is returned when a pipeline gets less than two processes
	ErrTooFewStages = errors.New("proc: a pipeline needs at least two processes")

	// ErrNoPID is returned by PID for processes that are not OS processes
	ErrNoPID = errors.New("proc: process has no pid")

	// ErrSignalsUnsupported is returned by the signal functions on platforms
	// without unix signals. Destroy falls back to os.Process.Kill there.
	ErrSignalsUnsupported = errors.New("proc: signals not supported on this platform")
)

// Process is a running process exposing its standard streams
type Process interface {
	// Stdin is the input of the process
	Stdin() io.WriteCloser
	// Stdout is the output of the process
	Stdout() io.ReadCloser
	// Stderr is the error output of the process
	Stderr() io.ReadCloser
	// Wait blocks until the process exited and returns its exit code
	Wait() (int, error)
	// ExitCode returns the exit code, or ErrNotTerminated
	ExitCode() (int, error)
	// Destroy stops the process, best effort
	Destroy() error
}

// PID returns the operating system id of p
func PID(p Process) (int, error) {
	if p, ok := p.(interface{ PID() int }); ok {
		if pid := p.PID(); pid > 0 {
			return pid, nil
		}
	}
	return 0, ErrNoPID
}

// CurrentPID returns the id of the calling process
func CurrentPID() int {
	return os.Getpid()
}
