package realtime

import (
	"context"
	"time"
)

// Target identifies one room join on the realtime provider.
type Target struct {
	URL      string // ws:// or wss:// endpoint
	Room     string
	Identity string
	Token    string // signed access token, see BuildAccessToken
}

type TransportEventKind string

const (
	TransportAudio  TransportEventKind = "audio"
	TransportData   TransportEventKind = "data"
	TransportClosed TransportEventKind = "closed"
)

// TransportEvent carries inbound traffic from the provider. A Closed event is
// terminal for the connection that produced it.
type TransportEvent struct {
	Kind    TransportEventKind
	Payload []byte
	Err     error
}

// Command is a session-level instruction forwarded to the provider (mute,
// end). The orchestrator is the only producer.
type Command struct {
	Type      string `json:"type"` // "mute" | "unmute" | "end"
	SessionID string `json:"session_id,omitempty"`
}

// Transport is the realtime audio provider capability. Join must classify
// failures: utils.ErrConfig for malformed targets, utils.ErrAuth for rejected
// tokens; anything else is treated as transient and retried.
type Transport interface {
	Join(ctx context.Context, target Target) (Conn, error)
}

// Conn is one live room connection. Events delivers inbound traffic until the
// connection closes, at which point the channel is closed after a final
// TransportClosed event.
type Conn interface {
	Ping(ctx context.Context) (time.Duration, error)
	Events() <-chan TransportEvent
	SendCommand(ctx context.Context, cmd Command) error
	Close() error
}
