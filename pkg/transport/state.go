package transport

// State is the lifecycle state of a Connection.
type State int

const (
	// StateIdle is a connection that has not been started.
	StateIdle State = iota

	// StateConnecting indicates the dial is in progress.
	StateConnecting

	// StateOpen indicates frames can be sent and received.
	StateOpen

	// StateClosing indicates a graceful close is in progress.
	StateClosing

	// StateClosed is terminal.
	StateClosed

	// StateFailed indicates a transport error; it always proceeds to Closed.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateClosed
}
