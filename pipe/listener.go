package pipe

import (
	"sync"
	"sync/atomic"
)

// Listener receives relay lifecycle events.
//
// OnConnect fires once when the copy loop starts. Afterwards exactly one of
// OnClose, OnBroken or OnInterrupt fires. Callbacks run on the goroutine that
// decided the outcome and must not Await the connection they observe.
type Listener interface {
	// OnConnect is called when the copy loop starts
	OnConnect(p Pipe)
	// OnClose is called when the source reached end of data
	OnClose(p Pipe)
	// OnBroken is called when an I/O error stopped the relay
	OnBroken(p Pipe, err *BrokenPipeError)
	// OnInterrupt is called when the relay was cancelled
	OnInterrupt(p Pipe)
}

// Resolver is an optional Listener extension. OnResolve runs on the goroutine
// that won the terminal transition, before the endpoints are closed, so a
// composition can claim the outcome ahead of any side effect of the close.
// It must not block on the relay it observes.
type Resolver interface {
	OnResolve(p Pipe, end State)
}

// ListenerFuncs adapts optional functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Connect   func(p Pipe)
	Close     func(p Pipe)
	Broken    func(p Pipe, err *BrokenPipeError)
	Interrupt func(p Pipe)
}

func (f ListenerFuncs) OnConnect(p Pipe) {
	if f.Connect != nil {
		f.Connect(p)
	}
}

func (f ListenerFuncs) OnClose(p Pipe) {
	if f.Close != nil {
		f.Close(p)
	}
}

func (f ListenerFuncs) OnBroken(p Pipe, err *BrokenPipeError) {
	if f.Broken != nil {
		f.Broken(p, err)
	}
}

func (f ListenerFuncs) OnInterrupt(p Pipe) {
	if f.Interrupt != nil {
		f.Interrupt(p)
	}
}

// Listeners fans every event out to a list of listeners, in registration order
type Listeners struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewListeners creates a bus holding the given listeners
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

// Len returns the number of registered listeners
func (l *Listeners) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.listeners)
}

func (l *Listeners) snapshot() []Listener {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Listener(nil), l.listeners...)
}

// OnResolve forwards to every registered Resolver
func (l *Listeners) OnResolve(p Pipe, end State) {
	for _, listener := range l.snapshot() {
		if res, ok := listener.(Resolver); ok {
			res.OnResolve(p, end)
		}
	}
}

func (l *Listeners) OnConnect(p Pipe) {
	for _, listener := range l.snapshot() {
		listener.OnConnect(p)
	}
}

func (l *Listeners) OnClose(p Pipe) {
	for _, listener := range l.snapshot() {
		listener.OnClose(p)
	}
}

func (l *Listeners) OnBroken(p Pipe, err *BrokenPipeError) {
	for _, listener := range l.snapshot() {
		listener.OnBroken(p, err)
	}
}

func (l *Listeners) OnInterrupt(p Pipe) {
	for _, listener := range l.snapshot() {
		listener.OnInterrupt(p)
	}
}

type onceBox struct {
	listener Listener
}

type onceListener struct {
	box atomic.Pointer[onceBox]
}

// Once wraps a listener so that it receives at most one terminal event, even
// when it is shared by several relays. OnConnect is forwarded until then.
func Once(listener Listener) Listener {
	o := &onceListener{}
	o.box.Store(&onceBox{listener: listener})
	return o
}

func (o *onceListener) OnConnect(p Pipe) {
	if b := o.box.Load(); b != nil {
		b.listener.OnConnect(p)
	}
}

func (o *onceListener) OnClose(p Pipe) {
	if b := o.box.Swap(nil); b != nil {
		b.listener.OnClose(p)
	}
}

func (o *onceListener) OnBroken(p Pipe, err *BrokenPipeError) {
	if b := o.box.Swap(nil); b != nil {
		b.listener.OnBroken(p, err)
	}
}

func (o *onceListener) OnInterrupt(p Pipe) {
	if b := o.box.Swap(nil); b != nil {
		b.listener.OnInterrupt(p)
	}
}

var (
	_ Listener = ListenerFuncs{}
	_ Listener = (*Listeners)(nil)
	_ Listener = (*onceListener)(nil)
	_ Resolver = (*Listeners)(nil)
)
