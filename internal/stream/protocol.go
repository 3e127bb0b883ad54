package stream

// HandshakeInit is the only accepted handshake type. Anything else is a
// protocol violation and the connection is rejected.
const HandshakeInit = "init"

// Handshake is the single structured message a client sends after the
// websocket upgrade. The channel is server-to-client only afterwards.
type Handshake struct {
	Type string `json:"type"`
}

// SessionState is the session's position in its lifecycle. Transitions
// only move forward: AwaitingHandshake, InitialSync, Streaming, Closed.
type SessionState int32

const (
	StateAwaitingHandshake SessionState = iota
	StateInitialSync
	StateStreaming
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateInitialSync:
		return "initial_sync"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
