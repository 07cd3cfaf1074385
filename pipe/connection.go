package pipe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/tomb.v2"
)

// engine is the chunk-type independent part of a Relay driven by a Connection
type engine interface {
	Pipe
	copy(t *tomb.Tomb) error
	terminate(end State, cause error) bool
	notifyConnect()
	finish()
}

// Connection is the running instance of a relay. It owns the worker
// goroutine executing the copy loop; the worker reports the outcome when it
// exits, whoever decided it.
type Connection struct {
	engine engine
	tomb   tomb.Tomb

	done chan struct{}
	err  error
}

func newConnection(e engine) *Connection {
	return &Connection{
		engine: e,
		done:   make(chan struct{}),
	}
}

func (c *Connection) start() {
	c.tomb.Go(c.run)
}

func (c *Connection) run() error {
	c.engine.notifyConnect()

	err := c.engine.copy(&c.tomb)
	switch {
	case err == nil:
		c.engine.terminate(Closed, nil)
	case errors.Is(err, errStopped) || !c.tomb.Alive():
		c.engine.terminate(Interrupted, nil)
	default:
		c.engine.terminate(Broken, err)
	}
	c.engine.finish()
	return nil
}

// kill asks the copy loop to stop at its next check
func (c *Connection) kill() {
	c.tomb.Kill(ErrInterrupted)
}

// resolve records the outcome reported by every later Await
func (c *Connection) resolve(end State, broken *BrokenPipeError) {
	switch end {
	case Broken:
		c.err = broken
	case Interrupted:
		c.err = fmt.Errorf("%w: %s", ErrInterrupted, c.engine.Name())
	}
}

// release unblocks waiters once the listener was notified
func (c *Connection) release() {
	close(c.done)
}

// Pipe returns the relay this connection runs
func (c *Connection) Pipe() Pipe {
	return c.engine
}

// Done is closed once the worker exited and the listener was notified
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Interrupt cancels the relay. Both endpoints are closed to unblock a pending
// read; it does not wait for the worker, Await does. It is a no-op once the
// relay terminated.
func (c *Connection) Interrupt() {
	c.engine.Interrupt()
}

// Await blocks until the relay terminated and its worker exited. It returns nil on end of data, a
// *BrokenPipeError on I/O failure and ErrInterrupted on cancellation.
func (c *Connection) Await() error {
	<-c.done
	return c.err
}

// AwaitTimeout is Await bounded by d. When d elapses first it returns
// ErrTimeout and leaves the relay running.
func (c *Connection) AwaitTimeout(d time.Duration) error {
	select {
	case <-c.done:
		return c.err
	default:
	}
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrTimeout, c.engine.Name())
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-c.done:
		return c.err
	case <-timer.C:
		return fmt.Errorf("%w: %s after %s", ErrTimeout, c.engine.Name(), d)
	}
}

// AwaitContext is Await bound to ctx. A context deadline reports ErrTimeout
// and leaves the relay running; any other cancellation interrupts the relay
// and reports ErrInterrupted.
func (c *Connection) AwaitContext(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	default:
	}

	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, c.engine.Name())
		}
		c.Interrupt()
		return fmt.Errorf("%w: %s: %w", ErrInterrupted, c.engine.Name(), ctx.Err())
	}
}

func (c *Connection) String() string {
	return "connection(" + c.engine.Name() + ")"
}
