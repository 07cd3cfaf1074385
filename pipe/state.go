package pipe

// State is a relay lifecycle state.
//
// A relay starts Ready, becomes Opened on its first Connect and ends in
// exactly one of the terminal states Closed, Broken or Interrupted.
type State int32

const (
	// Ready means the relay was created but never connected
	Ready State = iota
	// Opened means the copy loop is running
	Opened
	// Closed means the source reached end of data
	Closed
	// Broken means an I/O error stopped the copy loop
	Broken
	// Interrupted means the relay was cancelled
	Interrupted
)

// String returns the lower-case state name
func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	case Broken:
		return "broken"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s
func (s State) Terminal() bool {
	return s == Closed || s == Broken || s == Interrupted
}
