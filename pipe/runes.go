package pipe

import (
	"bufio"
	"fmt"
	"io"
	"unicode/utf8"
)

// RuneSource decodes UTF-8 text from a reader into chunks of runes.
// A chunk never splits an encoded rune.
type RuneSource struct {
	r      *bufio.Reader
	closer io.Closer
	buf    []rune
}

// NewRuneSource reads chunks of at most size runes from r
func NewRuneSource(r io.ReadCloser, size int) *RuneSource {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RuneSource{
		r:      bufio.NewReaderSize(r, size),
		closer: r,
		buf:    make([]rune, 0, size),
	}
}

// Next blocks for one rune, then takes whatever complete runes are buffered.
// Invalid input decodes to utf8.RuneError.
func (s *RuneSource) Next() ([]rune, error) {
	s.buf = s.buf[:0]

	first, _, err := s.r.ReadRune()
	if err != nil {
		return nil, err
	}
	s.buf = append(s.buf, first)

	for len(s.buf) < cap(s.buf) && s.r.Buffered() > 0 {
		peek, _ := s.r.Peek(min(s.r.Buffered(), utf8.UTFMax))
		if !utf8.FullRune(peek) {
			break
		}
		r, _, err := s.r.ReadRune()
		if err != nil {
			break
		}
		s.buf = append(s.buf, r)
	}
	return s.buf, nil
}

// Close closes the underlying reader
func (s *RuneSource) Close() error {
	return s.closer.Close()
}

// RuneSink encodes rune chunks as UTF-8 onto a writer
type RuneSink struct {
	sink *WriterSink
	buf  []byte
}

// NewRuneSink writes encoded chunks to w
func NewRuneSink(w io.WriteCloser) *RuneSink {
	return &RuneSink{sink: NewWriterSink(w)}
}

// Put encodes and writes the whole chunk
func (s *RuneSink) Put(chunk []rune) error {
	s.buf = s.buf[:0]
	for _, r := range chunk {
		s.buf = utf8.AppendRune(s.buf, r)
	}
	return s.sink.Put(s.buf)
}

// Close closes the underlying writer
func (s *RuneSink) Close() error {
	return s.sink.Close()
}

// NewRunes creates a Ready relay copying decoded characters from r to w
func NewRunes(r io.ReadCloser, w io.WriteCloser, opts *Options) (*Relay[[]rune], error) {
	if r == nil || w == nil {
		return nil, fmt.Errorf("%w: nil reader or writer", ErrIllegalArgument)
	}
	return New[[]rune](NewRuneSource(r, opts.bufferSize()), NewRuneSink(w), opts)
}

// ConnectRunes creates a character relay and connects it
func ConnectRunes(r io.ReadCloser, w io.WriteCloser, opts *Options) (*Connection, error) {
	relay, err := NewRunes(r, w, opts)
	if err != nil {
		return nil, err
	}
	return relay.Connect()
}
