// Package spool provides an unbounded in-memory pipe.
//
// It behaves like io.Pipe except that writes never block: bytes accumulate
// until the reader drains them. Pipelines use it to collect error output
// from stages that may finish while nobody is reading yet.
package spool

import (
	"bytes"
	"io"
	"sync"
)

type buffer struct {
	mu   sync.Mutex
	cond *sync.Cond
	data bytes.Buffer
	werr error
	rerr error
}

// Reader is the read half of a spool
type Reader struct {
	b *buffer
}

// Writer is the write half of a spool
type Writer struct {
	b *buffer
}

// New creates a spool and returns its two halves
func New() (*Reader, *Writer) {
	b := &buffer{}
	b.cond = sync.NewCond(&b.mu)
	return &Reader{b: b}, &Writer{b: b}
}

// Read blocks until data is available or the writer is closed.
// Once the writer is closed and the buffer drained it returns io.EOF
// (or the error passed to CloseWithError).
func (r *Reader) Read(p []byte) (int, error) {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.data.Len() == 0 && b.werr == nil && b.rerr == nil {
		b.cond.Wait()
	}
	if b.rerr != nil {
		return 0, b.rerr
	}
	if b.data.Len() > 0 {
		return b.data.Read(p)
	}
	return 0, b.werr
}

// Close discards buffered data; later writes fail with io.ErrClosedPipe
func (r *Reader) Close() error {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rerr == nil {
		b.rerr = io.ErrClosedPipe
		b.data.Reset()
		b.cond.Broadcast()
	}
	return nil
}

// Buffered returns the number of bytes written but not read yet
func (r *Reader) Buffered() int {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	return r.b.data.Len()
}

// Write appends p to the spool without blocking
func (w *Writer) Write(p []byte) (int, error) {
	b := w.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rerr != nil || b.werr != nil {
		return 0, io.ErrClosedPipe
	}
	n, _ := b.data.Write(p)
	b.cond.Broadcast()
	return n, nil
}

// Close marks the end of data; readers get io.EOF after draining
func (w *Writer) Close() error {
	return w.CloseWithError(nil)
}

// CloseWithError marks the end of data; readers get err after draining.
// A nil err means io.EOF. Only the first close takes effect.
func (w *Writer) CloseWithError(err error) error {
	if err == nil {
		err = io.EOF
	}
	b := w.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.werr == nil {
		b.werr = err
		b.cond.Broadcast()
	}
	return nil
}
