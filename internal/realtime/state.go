package realtime

// State is the lifecycle of one websocket connection. Transitions only move
// forward: Connecting -> Open -> Closed, or Connecting -> Closed.
type State int32

const (
	// StateConnecting: upgraded, identity not yet known. Only an auth frame
	// is accepted.
	StateConnecting State = iota
	// StateOpen: identity known, registered in presence, frames relayed.
	StateOpen
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
