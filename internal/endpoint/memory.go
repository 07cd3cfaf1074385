package endpoint

import (
	"errors"
	"io"
	"sync"
)

// ErrConnectionClosed is returned when reading or writing a closed endpoint
var ErrConnectionClosed = errors.New("endpoint: connection is closed")

// MemoryConn is one side of an in-memory duplex connection
type MemoryConn struct {
	reader *io.PipeReader
	writer *io.PipeWriter
	mu     sync.Mutex
	closed bool
}

// Pair creates two connected in-memory endpoints. What is written to one
// is read from the other.
func Pair() (*MemoryConn, *MemoryConn) {
	aReader, bWriter := io.Pipe()
	bReader, aWriter := io.Pipe()
	return &MemoryConn{reader: aReader, writer: aWriter},
		&MemoryConn{reader: bReader, writer: bWriter}
}

// Read reads data written by the peer
func (c *MemoryConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrConnectionClosed
	}
	c.mu.Unlock()
	return c.reader.Read(p)
}

// Write sends data to the peer
func (c *MemoryConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrConnectionClosed
	}
	c.mu.Unlock()
	return c.writer.Write(p)
}

// Close closes both directions. The peer reads io.EOF.
func (c *MemoryConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.reader.Close()
	_ = c.writer.Close()
	return nil
}

var _ io.ReadWriteCloser = (*MemoryConn)(nil)
