package websocket

import "time"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action of a client message.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError          Event = "error"
	EventConnected      Event = "connected"
	EventPong           Event = "pong"
	EventSessionRevoked Event = "session_revoked"
)

// ConnectedResponse is sent once the stream is attached to a session.
type ConnectedResponse struct {
	Event     Event  `json:"event"`
	SessionID string `json:"session_id"`
	Context   string `json:"context"`
}

// RevokedResponse tells a device its session is gone. The server closes the
// connection right after sending it.
type RevokedResponse struct {
	Event     Event     `json:"event"`
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
