package pipe

import (
	"fmt"
	"io"
	"sync"
)

// ChanSource receives buffers from a channel. A closed channel is end of data.
type ChanSource struct {
	ch   <-chan []byte
	done chan struct{}
	once sync.Once
}

// NewChanSource receives chunks from ch
func NewChanSource(ch <-chan []byte) *ChanSource {
	return &ChanSource{ch: ch, done: make(chan struct{})}
}

// Next blocks for the next buffer
func (s *ChanSource) Next() ([]byte, error) {
	select {
	case b, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-s.done:
		return nil, io.ErrClosedPipe
	}
}

// Close unblocks a pending Next. The channel is left to its sender.
func (s *ChanSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// ChanSink sends a copy of every chunk on a channel it owns and closes the
// channel on Close.
type ChanSink struct {
	ch   chan<- []byte
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
}

// NewChanSink sends chunks on ch
func NewChanSink(ch chan<- []byte) *ChanSink {
	return &ChanSink{ch: ch, done: make(chan struct{})}
}

// Put blocks until the chunk is received or the sink is closed
func (s *ChanSink) Put(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return io.ErrClosedPipe
	default:
	}

	b := make([]byte, len(chunk))
	copy(b, chunk)

	select {
	case s.ch <- b:
		return nil
	case <-s.done:
		return io.ErrClosedPipe
	}
}

// Close unblocks a pending Put, then closes the channel
func (s *ChanSink) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

// NewChannel creates a Ready relay forwarding buffers from in to out. The
// relay closes out when it terminates.
func NewChannel(in <-chan []byte, out chan<- []byte, opts *Options) (*Relay[[]byte], error) {
	if in == nil || out == nil {
		return nil, fmt.Errorf("%w: nil channel", ErrIllegalArgument)
	}
	return New[[]byte](NewChanSource(in), NewChanSink(out), opts)
}

// ConnectChannel creates a buffer relay and connects it
func ConnectChannel(in <-chan []byte, out chan<- []byte, opts *Options) (*Connection, error) {
	relay, err := NewChannel(in, out, opts)
	if err != nil {
		return nil, err
	}
	return relay.Connect()
}
