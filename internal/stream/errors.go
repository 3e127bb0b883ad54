package stream

import "errors"

var (
	// ErrBadHandshake is returned when the client's first message is not
	// a well-formed init handshake.
	ErrBadHandshake = errors.New("stream: bad handshake")

	// ErrLagging is returned when the notifier evicted the session's
	// subscription because it fell too far behind. The client is expected
	// to reconnect for a full resync.
	ErrLagging = errors.New("stream: subscription dropped, client lagging")

	// ErrShuttingDown is returned for connections arriving after
	// supervisor shutdown began.
	ErrShuttingDown = errors.New("stream: supervisor shutting down")
)
