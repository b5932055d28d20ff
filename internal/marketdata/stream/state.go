package stream

// State is the connection lifecycle phase of a session. Owned exclusively by
// the session loop; other goroutines only observe it.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}
