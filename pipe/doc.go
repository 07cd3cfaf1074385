// Package pipe relays data from a source endpoint to a sink endpoint under
// a lifecycle state machine.
//
// A Relay starts Ready. Connect moves it to Opened and starts a copy loop on
// a dedicated goroutine, returning a Connection. The loop ends in exactly
// one terminal state:
//
//	Closed       the source reached end of data
//	Broken       an I/O error stopped the copy (*BrokenPipeError)
//	Interrupted  the relay was cancelled
//
// The terminal transition is a compare-and-set, so concurrent completion and
// Interrupt calls resolve to a single outcome. Its winner closes both
// endpoints and notifies the Listener, once.
//
// Three endpoint kinds share the engine:
//
//	NewBytes    io.ReadCloser -> io.WriteCloser, raw bytes
//	NewRunes    io.ReadCloser -> io.WriteCloser, decoded UTF-8 characters
//	NewChannel  <-chan []byte -> chan<- []byte, buffers
//
// Example:
//
//	conn, err := pipe.ConnectBytes(src, dst, &pipe.Options{Name: "upload"})
//	if err != nil {
//		return err
//	}
//	if err := conn.AwaitTimeout(30 * time.Second); errors.Is(err, pipe.ErrTimeout) {
//		conn.Interrupt()
//	}
package pipe
