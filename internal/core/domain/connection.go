package domain

// ConnectionStatus is the coordinator-owned connection state machine.
type ConnectionStatus int

const (
	ConnDisconnected ConnectionStatus = iota
	ConnConnecting
	ConnConnected
	ConnFallback // connected, but to a lower-priority alternate
	ConnSwitching
	ConnError
)

// String returns the lowercase name of the status.
func (s ConnectionStatus) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnFallback:
		return "fallback"
	case ConnSwitching:
		return "switching"
	case ConnError:
		return "error"
	default:
		return "unknown"
	}
}
