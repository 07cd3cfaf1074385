package tunnel

import (
	"io"
	"sync"
	"sync/atomic"
)

// Listener receives tunnel lifecycle events. OnConnect fires when the first
// leg starts copying; afterwards exactly one terminal callback fires.
type Listener interface {
	OnConnect(t *Tunnel)
	OnClose(t *Tunnel)
	OnBroken(t *Tunnel, err *BrokenTunnelError)
	OnInterrupt(t *Tunnel)
}

// ListenerFuncs adapts optional functions to a Listener
type ListenerFuncs struct {
	Connect   func(t *Tunnel)
	Close     func(t *Tunnel)
	Broken    func(t *Tunnel, err *BrokenTunnelError)
	Interrupt func(t *Tunnel)
}

func (f ListenerFuncs) OnConnect(t *Tunnel) {
	if f.Connect != nil {
		f.Connect(t)
	}
}

func (f ListenerFuncs) OnClose(t *Tunnel) {
	if f.Close != nil {
		f.Close(t)
	}
}

func (f ListenerFuncs) OnBroken(t *Tunnel, err *BrokenTunnelError) {
	if f.Broken != nil {
		f.Broken(t, err)
	}
}

func (f ListenerFuncs) OnInterrupt(t *Tunnel) {
	if f.Interrupt != nil {
		f.Interrupt(t)
	}
}

// Listeners fans events out in registration order
type Listeners struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewListeners creates a bus; nil entries are ignored
func NewListeners(listeners ...Listener) *Listeners {
	l := &Listeners{}
	l.Add(listeners...)
	return l
}

// Add registers listeners; nil entries are ignored
func (l *Listeners) Add(listeners ...Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, listener := range listeners {
		if listener != nil {
			l.listeners = append(l.listeners, listener)
		}
	}
}

func (l *Listeners) snapshot() []Listener {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Listener(nil), l.listeners...)
}

func (l *Listeners) OnConnect(t *Tunnel) {
	for _, listener := range l.snapshot() {
		listener.OnConnect(t)
	}
}

func (l *Listeners) OnClose(t *Tunnel) {
	for _, listener := range l.snapshot() {
		listener.OnClose(t)
	}
}

func (l *Listeners) OnBroken(t *Tunnel, err *BrokenTunnelError) {
	for _, listener := range l.snapshot() {
		listener.OnBroken(t, err)
	}
}

func (l *Listeners) OnInterrupt(t *Tunnel) {
	for _, listener := range l.snapshot() {
		listener.OnInterrupt(t)
	}
}

type onceListener struct {
	listener atomic.Pointer[Listener]
}

// Once wraps a listener shared by several tunnels so that it receives a
// single terminal event overall
func Once(listener Listener) Listener {
	o := &onceListener{}
	o.listener.Store(&listener)
	return o
}

func (o *onceListener) OnConnect(t *Tunnel) {
	if l := o.listener.Load(); l != nil {
		(*l).OnConnect(t)
	}
}

func (o *onceListener) OnClose(t *Tunnel) {
	if l := o.listener.Swap(nil); l != nil {
		(*l).OnClose(t)
	}
}

func (o *onceListener) OnBroken(t *Tunnel, err *BrokenTunnelError) {
	if l := o.listener.Swap(nil); l != nil {
		(*l).OnBroken(t, err)
	}
}

func (o *onceListener) OnInterrupt(t *Tunnel) {
	if l := o.listener.Swap(nil); l != nil {
		(*l).OnInterrupt(t)
	}
}

// CloseOnExit returns a listener closing every closer once the tunnel
// terminates, whatever the outcome. Close errors are ignored.
func CloseOnExit(closers ...io.Closer) Listener {
	var once sync.Once
	closeAll := func(*Tunnel) {
		once.Do(func() {
			for _, c := range closers {
				if c != nil {
					_ = c.Close()
				}
			}
		})
	}
	return ListenerFuncs{
		Close:     closeAll,
		Broken:    func(t *Tunnel, _ *BrokenTunnelError) { closeAll(t) },
		Interrupt: closeAll,
	}
}

var (
	_ Listener = ListenerFuncs{}
	_ Listener = (*Listeners)(nil)
	_ Listener = (*onceListener)(nil)
)
