package pipe

import (
	"fmt"
	"io"
)

// maxEmptyReads bounds consecutive empty reads before a source gives up
const maxEmptyReads = 100

// ReaderSource adapts an io.ReadCloser to a byte Source
type ReaderSource struct {
	r       io.ReadCloser
	buf     []byte
	pending error
}

// NewReaderSource reads chunks of at most size bytes from r
func NewReaderSource(r io.ReadCloser, size int) *ReaderSource {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &ReaderSource{r: r, buf: make([]byte, size)}
}

// Next returns the next chunk. The slice is reused by the following call.
func (s *ReaderSource) Next() ([]byte, error) {
	if err := s.pending; err != nil {
		s.pending = nil
		return nil, err
	}
	for i := 0; i < maxEmptyReads; i++ {
		n, err := s.r.Read(s.buf)
		if n > 0 {
			// deliver the data first, the error on the next call
			s.pending = err
			return s.buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
	return nil, io.ErrNoProgress
}

// Close closes the underlying reader
func (s *ReaderSource) Close() error {
	return s.r.Close()
}

// WriterSink adapts an io.WriteCloser to a byte Sink. Writers that expose
// Flush are flushed after every chunk.
type WriterSink struct {
	w io.WriteCloser
}

// NewWriterSink writes chunks to w
func NewWriterSink(w io.WriteCloser) *WriterSink {
	return &WriterSink{w: w}
}

// Put writes the whole chunk
func (s *WriterSink) Put(chunk []byte) error {
	n, err := s.w.Write(chunk)
	if err != nil {
		return err
	}
	if n < len(chunk) {
		return io.ErrShortWrite
	}
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close closes the underlying writer
func (s *WriterSink) Close() error {
	return s.w.Close()
}

// NewBytes creates a Ready relay copying raw bytes from r to w
func NewBytes(r io.ReadCloser, w io.WriteCloser, opts *Options) (*Relay[[]byte], error) {
	if r == nil || w == nil {
		return nil, fmt.Errorf("%w: nil reader or writer", ErrIllegalArgument)
	}
	return New[[]byte](NewReaderSource(r, opts.bufferSize()), NewWriterSink(w), opts)
}

// ConnectBytes creates a byte relay and connects it
func ConnectBytes(r io.ReadCloser, w io.WriteCloser, opts *Options) (*Connection, error) {
	relay, err := NewBytes(r, w, opts)
	if err != nil {
		return nil, err
	}
	return relay.Connect()
}
