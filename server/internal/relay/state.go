package relay

// State is the lifecycle stage of one connection served by the hub.
// Transitions only move forward and are written by the Serve goroutine alone.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateRelaying
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateRelaying:
		return "relaying"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}
