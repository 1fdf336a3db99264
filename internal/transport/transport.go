// Package transport maintains the live streaming connection to a sandbox
// terminal session. Two transports share one contract: a server-sent-events
// stream paired with HTTP posts for input, and a single bidirectional
// websocket. A reconnecting Client owns whichever the provider prefers.
package transport

import (
	"context"
	"time"
)

// Kind identifies the streaming transport in use.
type Kind string

const (
	KindEventStream Kind = "event-stream"
	KindWebSocket   Kind = "websocket"
)

// State is the connection state of the transport client.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
	StateClosed     State = "closed"
)

// ConnectedInfo carries what the sandbox negotiated when the stream came up.
type ConnectedInfo struct {
	SandboxID  string
	Shell      string
	WorkingDir string
	Kind       Kind
}

// EventSink receives events from a single live connection. Implementations
// must tolerate calls from the connection's read goroutine.
type EventSink interface {
	// Connected fires once the remote side confirms the attachment.
	Connected(info ConnectedInfo)

	// Output delivers raw terminal bytes in arrival order.
	Output(data []byte)

	// Message delivers an out-of-band notice from the backend.
	Message(text string)

	// Latency reports a measured round-trip time. Only transports with
	// bidirectional framing ever call this.
	Latency(rtt time.Duration)

	// Closed fires exactly once when the connection dies, with the
	// error that killed it (nil for a clean remote close).
	Closed(err error)
}

// Conn is one live connection. It is owned by exactly one Client and is
// never shared; after Close it must not be used.
type Conn interface {
	Kind() Kind

	// SendInput forwards raw bytes to the sandbox unmodified.
	SendInput(data []byte) error

	// Resize informs the sandbox of terminal geometry. Best-effort.
	Resize(cols, rows int) error

	Close() error
}

// Dialer opens connections for terminal sessions.
type Dialer interface {
	Kind() Kind
	Dial(ctx context.Context, sessionID string, sink EventSink) (Conn, error)
}
