package proc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/julienstroheker/hexpipe/pipe"
)

// FutureListener is notified once a Future resolves. Exactly one of the two
// callbacks fires. A cancelled future and a failed wait both report
// OnInterrupted.
type FutureListener interface {
	OnComplete(f *Future, code int)
	OnInterrupted(f *Future)
}

// FutureListenerFuncs adapts optional functions to a FutureListener
type FutureListenerFuncs struct {
	Complete    func(f *Future, code int)
	Interrupted func(f *Future)
}

func (l FutureListenerFuncs) OnComplete(f *Future, code int) {
	if l.Complete != nil {
		l.Complete(f, code)
	}
}

func (l FutureListenerFuncs) OnInterrupted(f *Future) {
	if l.Interrupted != nil {
		l.Interrupted(f)
	}
}

const (
	pending int32 = iota
	completed
	failed
	cancelled
)

// Future waits for a process exit in the background. Whatever the outcome,
// the process is destroyed once the wait resolves.
type Future struct {
	process  Process
	listener FutureListener
	state    atomic.Int32

	resolved chan struct{}
	notified chan struct{}
	done     chan struct{}
	code     int
	err      error
}

// NewFuture starts waiting for p
func NewFuture(p Process, listener FutureListener) (*Future, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil process", pipe.ErrIllegalArgument)
	}
	if listener == nil {
		listener = FutureListenerFuncs{}
	}
	f := &Future{
		process:  p,
		listener: listener,
		resolved: make(chan struct{}),
		notified: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go f.wait()
	return f, nil
}

func (f *Future) wait() {
	code, err := f.process.Wait()
	if err != nil {
		f.settle(failed, code, err)
	} else {
		f.settle(completed, code, nil)
	}
	_ = f.process.Destroy()
	<-f.notified
	close(f.done)
}

// settle records the outcome and notifies the listener if it decided it
func (f *Future) settle(state int32, code int, err error) bool {
	if !f.state.CompareAndSwap(pending, state) {
		return false
	}
	f.code, f.err = code, err
	close(f.resolved)

	if state == completed {
		f.listener.OnComplete(f, code)
	} else {
		f.listener.OnInterrupted(f)
	}
	close(f.notified)
	return true
}

// Process returns the awaited process
func (f *Future) Process() Process {
	return f.process
}

// Cancel stops waiting and destroys the process. It returns false when the
// future was already resolved.
func (f *Future) Cancel() bool {
	if !f.settle(cancelled, -1, fmt.Errorf("%w: process wait cancelled", pipe.ErrInterrupted)) {
		return false
	}
	_ = f.process.Destroy()
	return true
}

// IsDone reports whether the future resolved, cancellation included
func (f *Future) IsDone() bool {
	return f.state.Load() != pending
}

// IsCancelled reports whether Cancel resolved the future
func (f *Future) IsCancelled() bool {
	return f.state.Load() == cancelled
}

// Done is closed after the listener ran and the process was destroyed
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the exit code is known
func (f *Future) Get() (int, error) {
	<-f.resolved
	return f.code, f.err
}

// GetTimeout is Get bounded by d. On expiry it returns pipe.ErrTimeout and
// keeps waiting in the background.
func (f *Future) GetTimeout(d time.Duration) (int, error) {
	if f.IsDone() {
		return f.Get()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-f.resolved:
		return f.code, f.err
	case <-timer.C:
		return -1, fmt.Errorf("%w: process wait after %s", pipe.ErrTimeout, d)
	}
}

// GetContext is Get bound to ctx. A deadline reports pipe.ErrTimeout, any
// other cancellation cancels the future.
func (f *Future) GetContext(ctx context.Context) (int, error) {
	select {
	case <-f.resolved:
		return f.code, f.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return -1, fmt.Errorf("%w: process wait", pipe.ErrTimeout)
		}
		f.Cancel()
		return f.Get()
	}
}
