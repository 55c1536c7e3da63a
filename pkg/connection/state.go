package connection

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection. It is the initial state.
	StateDisconnected State = iota

	// StateConnecting indicates a caller-initiated connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection with a valid connection ID.
	StateConnected

	// StateReconnecting indicates a timer-initiated connection attempt is in progress.
	StateReconnecting
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}
