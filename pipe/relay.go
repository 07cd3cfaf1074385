package pipe

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/julienstroheker/hexpipe/internal/logging"
	"gopkg.in/tomb.v2"
)

// DefaultBufferSize is the chunk size used when Options.BufferSize is not set
const DefaultBufferSize = 8192

// Pipe is the chunk-type independent view of a Relay
type Pipe interface {
	// Name identifies the relay in logs and events
	Name() string
	// State returns the current lifecycle state
	State() State
	// Connect starts the copy loop, or returns the running connection
	Connect() (*Connection, error)
	// Interrupt cancels the relay, connected or not
	Interrupt()
	String() string
}

// Source yields chunks for a relay
type Source[C any] interface {
	// Next blocks until a chunk is available. It returns io.EOF once the
	// source is drained. Close must unblock a pending Next.
	Next() (C, error)
	io.Closer
}

// Sink consumes chunks from a relay
type Sink[C any] interface {
	// Put writes the whole chunk. The chunk is only valid during the call.
	Put(chunk C) error
	io.Closer
}

// Options configures a relay
type Options struct {
	// Name identifies the relay; a random UUID is used when empty
	Name string

	// BufferSize is the chunk size for stream-backed relays (DefaultBufferSize when zero)
	BufferSize int

	// Listener receives lifecycle events; a Listeners bus fans out to several
	Listener Listener

	// Logger receives debug lifecycle logs; nil disables logging
	Logger *logging.Logger
}

func (o *Options) bufferSize() int {
	if o == nil || o.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return o.BufferSize
}

// Relay copies chunks from a Source to a Sink under the lifecycle state machine.
//
// The relay owns both endpoints: once a terminal state is reached it closes
// them exactly once and swallows close errors.
type Relay[C any] struct {
	name     string
	state    atomic.Int32
	source   Source[C]
	sink     Sink[C]
	listener Listener
	logger   *logging.Logger

	mu        sync.Mutex
	conn      *Connection
	cause     error
	decided   chan struct{}
	closeOnce sync.Once
}

// New creates a Ready relay between source and sink
func New[C any](source Source[C], sink Sink[C], opts *Options) (*Relay[C], error) {
	if source == nil {
		return nil, fmt.Errorf("%w: missing source endpoint", ErrIllegalArgument)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: missing sink endpoint", ErrIllegalArgument)
	}
	if opts == nil {
		opts = &Options{}
	}

	name := opts.Name
	if name == "" {
		name = uuid.NewString()
	}

	r := &Relay[C]{
		name:     name,
		source:   source,
		sink:     sink,
		listener: opts.Listener,
		logger:   opts.Logger.With(logging.String("pipe", name)),
		decided:  make(chan struct{}),
	}
	if r.listener == nil {
		r.listener = ListenerFuncs{}
	}
	return r, nil
}

// Name returns the relay name
func (r *Relay[C]) Name() string {
	return r.name
}

func (r *Relay[C]) String() string {
	return r.name
}

// State returns the current lifecycle state
func (r *Relay[C]) State() State {
	return State(r.state.Load())
}

// IsReady reports whether the relay was never connected nor cancelled
func (r *Relay[C]) IsReady() bool { return r.State() == Ready }

// IsOpened reports whether the copy loop is running
func (r *Relay[C]) IsOpened() bool { return r.State() == Opened }

// IsClosed reports whether the relay ended on end of data
func (r *Relay[C]) IsClosed() bool { return r.State() == Closed }

// IsBroken reports whether the relay ended on an I/O error
func (r *Relay[C]) IsBroken() bool { return r.State() == Broken }

// IsInterrupted reports whether the relay was cancelled
func (r *Relay[C]) IsInterrupted() bool { return r.State() == Interrupted }

// Connect moves the relay from Ready to Opened and starts the copy loop on
// its own goroutine. While Opened it returns the same connection; once a
// terminal state was reached it returns ErrNotReady.
func (r *Relay[C]) Connect() (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.CompareAndSwap(int32(Ready), int32(Opened)) {
		r.logger.Debug("relay opened")
		r.conn = newConnection(r)
		r.conn.start()
		return r.conn, nil
	}

	if state := r.State(); state != Opened {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, r.name, state)
	}
	return r.conn, nil
}

// Interrupt cancels the relay. A Ready relay goes straight to Interrupted
// without ever copying; an Opened relay is stopped as by Connection.Interrupt.
func (r *Relay[C]) Interrupt() {
	r.terminate(Interrupted, nil)
}

// transition performs the terminal compare-and-set. Only the first caller wins.
func (r *Relay[C]) transition(end State) bool {
	for {
		current := r.State()
		if current.Terminal() {
			return false
		}
		if r.state.CompareAndSwap(int32(current), int32(end)) {
			return true
		}
	}
}

// terminate moves the relay into end. The winner of the transition reports
// the outcome to a Resolver, stops the worker when interrupting and closes
// both endpoints. Listener notification belongs to the worker exit path, or
// to the winner when no worker was ever started.
func (r *Relay[C]) terminate(end State, cause error) bool {
	if !r.transition(end) {
		return false
	}
	if res, ok := r.listener.(Resolver); ok {
		res.OnResolve(r, end)
	}

	r.mu.Lock()
	r.cause = cause
	conn := r.conn
	r.mu.Unlock()
	close(r.decided)

	if conn != nil && end == Interrupted {
		conn.kill()
	}
	r.closeEndpoints()

	if conn == nil {
		r.finish()
	}
	return true
}

// finish runs exactly once, after the terminal state was decided: it
// resolves the connection, notifies the listener and releases waiters
func (r *Relay[C]) finish() {
	<-r.decided
	r.closeEndpoints()

	end := r.State()
	r.mu.Lock()
	conn, cause := r.conn, r.cause
	r.mu.Unlock()

	var broken *BrokenPipeError
	if end == Broken {
		broken = &BrokenPipeError{Pipe: r.name, Err: cause}
		r.logger.Debug("relay broken", logging.Error(cause))
	} else {
		r.logger.Debug("relay terminated", logging.String("state", end.String()))
	}

	if conn != nil {
		conn.resolve(end, broken)
	}

	switch end {
	case Closed:
		r.listener.OnClose(r)
	case Broken:
		r.listener.OnBroken(r, broken)
	case Interrupted:
		r.listener.OnInterrupt(r)
	}

	if conn != nil {
		conn.release()
	}
}

func (r *Relay[C]) closeEndpoints() {
	r.closeOnce.Do(func() {
		if err := r.source.Close(); err != nil {
			r.logger.Debug("source close failed", logging.Error(err))
		}
		if err := r.sink.Close(); err != nil {
			r.logger.Debug("sink close failed", logging.Error(err))
		}
	})
}

func (r *Relay[C]) notifyConnect() {
	r.listener.OnConnect(r)
}

// copy runs the copy loop until end of data, an I/O error, or cancellation
func (r *Relay[C]) copy(t *tomb.Tomb) error {
	for t.Alive() && r.IsOpened() {
		chunk, err := r.source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := r.sink.Put(chunk); err != nil {
			return err
		}
	}
	return errStopped
}

var _ Pipe = (*Relay[[]byte])(nil)
