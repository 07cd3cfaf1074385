package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/julienstroheker/hexpipe/internal/logging"
	"github.com/julienstroheker/hexpipe/pipe"
)

const (
	up   = 0
	down = 1
)

// Options configures a tunnel
type Options struct {
	// Name identifies the tunnel; a random UUID is used when empty
	Name string

	// UpName and DownName name the a=>b and b=>a legs
	UpName   string
	DownName string

	// BufferSize is the chunk size of both legs
	BufferSize int

	// Listener receives tunnel lifecycle events
	Listener Listener

	// Logger receives debug lifecycle logs
	Logger *logging.Logger
}

// Tunnel relays bytes both ways between two duplex endpoints. The first leg
// to terminate decides the tunnel outcome and interrupts the other leg.
type Tunnel struct {
	name     string
	state    atomic.Int32
	opened   atomic.Bool
	legs     [2]*pipe.Relay[[]byte]
	listener Listener
	logger   *logging.Logger

	// winner is the index of the leg that decided the outcome, -1 until then
	winner  atomic.Int32
	pending atomic.Int32
	done    chan struct{}
	err     *BrokenTunnelError
}

// legListener reports the events of legs[index] to its tunnel
type legListener struct {
	tunnel *Tunnel
	index  int
}

func (l legListener) OnConnect(pipe.Pipe) {
	l.tunnel.legConnected()
}

func (l legListener) OnResolve(_ pipe.Pipe, end pipe.State) {
	l.tunnel.legResolved(l.index, end)
}

func (l legListener) OnClose(pipe.Pipe) {
	l.tunnel.legTerminated(l.index, pipe.Closed, nil)
}

func (l legListener) OnBroken(_ pipe.Pipe, err *pipe.BrokenPipeError) {
	l.tunnel.legTerminated(l.index, pipe.Broken, err)
}

func (l legListener) OnInterrupt(pipe.Pipe) {
	l.tunnel.legTerminated(l.index, pipe.Interrupted, nil)
}

// Connect starts a tunnel between a and b. Both endpoints are owned by the
// tunnel legs and closed when it terminates.
func Connect(a, b io.ReadWriteCloser, opts *Options) (*Tunnel, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: tunnel needs two endpoints", pipe.ErrIllegalArgument)
	}
	if opts == nil {
		opts = &Options{}
	}

	name := opts.Name
	if name == "" {
		name = uuid.NewString()
	}
	upName, downName := opts.UpName, opts.DownName
	if upName == "" {
		upName = name + "/up"
	}
	if downName == "" {
		downName = name + "/down"
	}

	t := &Tunnel{
		name:     name,
		listener: opts.Listener,
		logger:   opts.Logger.With(logging.String("tunnel", name)),
		done:     make(chan struct{}),
	}
	if t.listener == nil {
		t.listener = ListenerFuncs{}
	}
	t.winner.Store(-1)
	t.pending.Store(2)

	var err error
	t.legs[up], err = pipe.NewBytes(a, b, &pipe.Options{
		Name:       upName,
		BufferSize: opts.BufferSize,
		Listener:   legListener{tunnel: t, index: up},
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	t.legs[down], err = pipe.NewBytes(b, a, &pipe.Options{
		Name:       downName,
		BufferSize: opts.BufferSize,
		Listener:   legListener{tunnel: t, index: down},
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	for _, leg := range t.legs {
		// a leg interrupted by an early sibling failure is already terminal
		if _, err := leg.Connect(); err != nil && !errors.Is(err, pipe.ErrNotReady) {
			t.Interrupt()
			return nil, err
		}
	}
	return t, nil
}

func (t *Tunnel) legConnected() {
	if t.opened.CompareAndSwap(false, true) {
		t.state.CompareAndSwap(int32(pipe.Ready), int32(pipe.Opened))
		t.logger.Debug("tunnel opened")
		t.listener.OnConnect(t)
	}
}

func (t *Tunnel) transition(end pipe.State) bool {
	for {
		current := pipe.State(t.state.Load())
		if current.Terminal() {
			return false
		}
		if t.state.CompareAndSwap(int32(current), int32(end)) {
			return true
		}
	}
}

// legResolved runs before the leg closes its endpoints. The first leg to get
// here decides the tunnel outcome and interrupts its sibling, so the sibling
// cannot report the shared endpoints being closed as a failure of its own.
func (t *Tunnel) legResolved(index int, end pipe.State) {
	if !t.transition(end) {
		return
	}
	t.winner.Store(int32(index))
	t.logger.Debug("tunnel terminated",
		logging.String("state", end.String()),
		logging.String("leg", t.legs[index].Name()))
	t.legs[1-index].Interrupt()
}

func (t *Tunnel) legTerminated(index int, end pipe.State, cause *pipe.BrokenPipeError) {
	if int(t.winner.Load()) == index {
		switch end {
		case pipe.Closed:
			t.listener.OnClose(t)
		case pipe.Broken:
			t.err = &BrokenTunnelError{Tunnel: t.name, Leg: cause}
			t.listener.OnBroken(t, t.err)
		case pipe.Interrupted:
			t.listener.OnInterrupt(t)
		}
	}

	if t.pending.Add(-1) == 0 {
		close(t.done)
	}
}

// Name returns the tunnel name
func (t *Tunnel) Name() string {
	return t.name
}

func (t *Tunnel) String() string {
	return t.name
}

// State returns the tunnel state: Ready until a leg starts, Opened while
// both legs may copy, then the terminal state decided by the first leg
func (t *Tunnel) State() pipe.State {
	return pipe.State(t.state.Load())
}

// IsOpened reports whether the tunnel is relaying
func (t *Tunnel) IsOpened() bool { return t.State() == pipe.Opened }

// IsClosed reports whether a leg reached end of data first
func (t *Tunnel) IsClosed() bool { return t.State() == pipe.Closed }

// IsBroken reports whether a leg failed first
func (t *Tunnel) IsBroken() bool { return t.State() == pipe.Broken }

// IsInterrupted reports whether the tunnel was cancelled
func (t *Tunnel) IsInterrupted() bool { return t.State() == pipe.Interrupted }

// Up returns the a=>b leg
func (t *Tunnel) Up() pipe.Pipe {
	return t.legs[up]
}

// Down returns the b=>a leg
func (t *Tunnel) Down() pipe.Pipe {
	return t.legs[down]
}

// Done is closed once both legs terminated
func (t *Tunnel) Done() <-chan struct{} {
	return t.done
}

// Interrupt closes both legs. It is idempotent.
func (t *Tunnel) Interrupt() {
	for _, leg := range t.legs {
		leg.Interrupt()
	}
}

// Await blocks until both legs terminated. It returns a *BrokenTunnelError
// when the tunnel broke and nil otherwise.
func (t *Tunnel) Await() error {
	<-t.done
	return t.result()
}

// AwaitTimeout is Await bounded by d; on expiry it returns pipe.ErrTimeout
// and leaves the tunnel running
func (t *Tunnel) AwaitTimeout(d time.Duration) error {
	select {
	case <-t.done:
		return t.result()
	default:
	}
	if d <= 0 {
		return fmt.Errorf("%w: tunnel %s", pipe.ErrTimeout, t.name)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-t.done:
		return t.result()
	case <-timer.C:
		return fmt.Errorf("%w: tunnel %s after %s", pipe.ErrTimeout, t.name, d)
	}
}

// AwaitContext is Await bound to ctx. A deadline reports pipe.ErrTimeout;
// other cancellations interrupt the tunnel and report pipe.ErrInterrupted.
func (t *Tunnel) AwaitContext(ctx context.Context) error {
	select {
	case <-t.done:
		return t.result()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: tunnel %s", pipe.ErrTimeout, t.name)
		}
		t.Interrupt()
		return fmt.Errorf("%w: tunnel %s: %w", pipe.ErrInterrupted, t.name, ctx.Err())
	}
}

func (t *Tunnel) result() error {
	if t.err != nil {
		return t.err
	}
	return nil
}
