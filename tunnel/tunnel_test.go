package tunnel

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/julienstroheker/hexpipe/pipe"
)

type recorder struct {
	connect   atomic.Int32
	close     atomic.Int32
	broken    atomic.Int32
	interrupt atomic.Int32
}

func (r *recorder) OnConnect(*Tunnel)                    { r.connect.Add(1) }
func (r *recorder) OnClose(*Tunnel)                      { r.close.Add(1) }
func (r *recorder) OnBroken(*Tunnel, *BrokenTunnelError) { r.broken.Add(1) }
func (r *recorder) OnInterrupt(*Tunnel)                  { r.interrupt.Add(1) }
func (r *recorder) terminals() int32 {
	return r.close.Load() + r.broken.Load() + r.interrupt.Load()
}

// pipes returns the two outer ends of a tunnel built over net.Pipe pairs
func pipes(t *testing.T, rec *recorder) (left, right net.Conn, tun *Tunnel) {
	t.Helper()
	left, a := net.Pipe()
	b, right := net.Pipe()
	t.Cleanup(func() {
		_ = left.Close()
		_ = right.Close()
	})

	tun, err := Connect(a, b, &Options{Name: "test", Listener: rec})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return left, right, tun
}

func readN(t *testing.T, r io.Reader, n int) string {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(buf)
}

func TestTunnel_BothDirections(t *testing.T) {
	rec := &recorder{}
	left, right, tun := pipes(t, rec)

	go func() { _, _ = left.Write([]byte("ping")) }()
	if got := readN(t, right, 4); got != "ping" {
		t.Errorf("a=>b got %q", got)
	}

	go func() { _, _ = right.Write([]byte("pong")) }()
	if got := readN(t, left, 4); got != "pong" {
		t.Errorf("b=>a got %q", got)
	}

	if !tun.IsOpened() {
		t.Errorf("expected opened, got %s", tun.State())
	}
	if rec.connect.Load() != 1 {
		t.Errorf("expected a single connect event, got %d", rec.connect.Load())
	}
	tun.Interrupt()
}

func TestTunnel_CloseOneSide(t *testing.T) {
	rec := &recorder{}
	left, right, tun := pipes(t, rec)

	_ = left.Close()

	if err := tun.AwaitTimeout(5 * time.Second); err != nil {
		t.Fatalf("Await returned %v", err)
	}
	if !tun.IsClosed() {
		t.Errorf("expected closed, got %s", tun.State())
	}
	if st := tun.Down().State(); st != pipe.Interrupted {
		t.Errorf("expected sibling leg interrupted, got %s", st)
	}
	if rec.close.Load() != 1 || rec.terminals() != 1 {
		t.Errorf("unexpected events close=%d terminals=%d", rec.close.Load(), rec.terminals())
	}

	// the far side observes the shutdown
	_ = right.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := right.Read(make([]byte, 1)); err == nil {
		t.Error("expected the far side to be closed")
	}
}

type failingConn struct {
	err    error
	closed atomic.Bool
}

func (c *failingConn) Read([]byte) (int, error)    { return 0, c.err }
func (c *failingConn) Write(p []byte) (int, error) { return len(p), nil }
func (c *failingConn) Close() error {
	c.closed.Store(true)
	return nil
}

func TestTunnel_Broken(t *testing.T) {
	rec := &recorder{}
	cause := errors.New("connection reset")
	a := &failingConn{err: cause}
	b, right := net.Pipe()
	defer func() { _ = right.Close() }()

	tun, err := Connect(a, b, &Options{Name: "broken", Listener: rec})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	err = tun.AwaitTimeout(5 * time.Second)
	var broken *BrokenTunnelError
	if !errors.As(err, &broken) {
		t.Fatalf("expected *BrokenTunnelError, got %v", err)
	}
	if broken.Tunnel != "broken" || broken.Leg == nil {
		t.Errorf("unexpected error %+v", broken)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected the leg cause to unwrap, got %v", err)
	}
	if rec.broken.Load() != 1 || rec.terminals() != 1 {
		t.Errorf("unexpected events broken=%d terminals=%d", rec.broken.Load(), rec.terminals())
	}
	if !a.closed.Load() {
		t.Error("endpoint a was not closed")
	}
	// Await is idempotent
	if again := tun.Await(); again != err {
		t.Errorf("second Await returned %v", again)
	}
}

func TestTunnel_InterruptIdempotent(t *testing.T) {
	rec := &recorder{}
	_, _, tun := pipes(t, rec)

	tun.Interrupt()
	tun.Interrupt()

	if err := tun.AwaitTimeout(5 * time.Second); err != nil {
		t.Fatalf("Await returned %v", err)
	}
	if !tun.IsInterrupted() {
		t.Errorf("expected interrupted, got %s", tun.State())
	}
	if rec.interrupt.Load() != 1 || rec.terminals() != 1 {
		t.Errorf("unexpected events interrupt=%d terminals=%d", rec.interrupt.Load(), rec.terminals())
	}
	for _, leg := range []pipe.Pipe{tun.Up(), tun.Down()} {
		if st := leg.State(); st != pipe.Interrupted {
			t.Errorf("leg %s: expected interrupted, got %s", leg.Name(), st)
		}
	}
}

func TestTunnel_AwaitTimeout(t *testing.T) {
	_, _, tun := pipes(t, &recorder{})

	if err := tun.AwaitTimeout(100 * time.Millisecond); !errors.Is(err, pipe.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if tun.State().Terminal() {
		t.Errorf("timeout changed the state to %s", tun.State())
	}
	tun.Interrupt()
}

func TestTunnel_AwaitContextCancel(t *testing.T) {
	_, _, tun := pipes(t, &recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tun.AwaitContext(ctx); !errors.Is(err, pipe.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	select {
	case <-tun.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("tunnel did not terminate")
	}
}

func TestConnect_NilEndpoint(t *testing.T) {
	a, _ := net.Pipe()
	defer func() { _ = a.Close() }()

	if _, err := Connect(a, nil, nil); !errors.Is(err, pipe.ErrIllegalArgument) {
		t.Errorf("expected ErrIllegalArgument, got %v", err)
	}
	if _, err := ConnectConns(nil, a, nil, nil); !errors.Is(err, pipe.ErrIllegalArgument) {
		t.Errorf("expected ErrIllegalArgument, got %v", err)
	}
}

func TestConnectConns_ClosesBeforeListener(t *testing.T) {
	left, a := net.Pipe()
	b, right := net.Pipe()
	defer func() { _ = right.Close() }()

	writeErr := make(chan error, 1)
	tun, err := ConnectConns(a, b, ListenerFuncs{
		Close: func(*Tunnel) {
			_, err := a.Write([]byte("x"))
			writeErr <- err
		},
	}, nil)
	if err != nil {
		t.Fatalf("ConnectConns failed: %v", err)
	}
	if got := tun.Up().Name(); got != "pipe=>pipe" {
		t.Errorf("unexpected leg name %q", got)
	}

	_ = left.Close()
	if err := tun.AwaitTimeout(5 * time.Second); err != nil {
		t.Fatalf("Await returned %v", err)
	}

	select {
	case err := <-writeErr:
		if !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("expected connection closed before listener, write returned %v", err)
		}
	default:
		t.Fatal("listener was not notified")
	}
}

func TestOnce_SharedAcrossTunnels(t *testing.T) {
	rec := &recorder{}
	shared := Once(rec)

	for i := 0; i < 3; i++ {
		left, a := net.Pipe()
		b, right := net.Pipe()
		tun, err := Connect(a, b, &Options{Listener: shared})
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		tun.Interrupt()
		_ = tun.Await()
		_ = left.Close()
		_ = right.Close()
	}

	if rec.terminals() != 1 {
		t.Errorf("expected one terminal event, got %d", rec.terminals())
	}
}
