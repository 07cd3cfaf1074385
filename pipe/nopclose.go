package pipe

import "io"

type nopCloseWriter struct {
	io.Writer
}

func (nopCloseWriter) Close() error { return nil }

// NopCloseWriter lets a relay write into a shared writer such as os.Stdout
// without closing it on termination
func NopCloseWriter(w io.Writer) io.WriteCloser {
	return nopCloseWriter{Writer: w}
}

// NopCloseReader is io.NopCloser. Interrupting a relay reading from it does
// not unblock a pending Read.
func NopCloseReader(r io.Reader) io.ReadCloser {
	return io.NopCloser(r)
}
