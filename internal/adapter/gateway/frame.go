package gateway

import "encoding/json"

// FrameType identifies the kind of frame sent over the WebSocket connection.
type FrameType string

const (
	// FrameTypeHello is sent once after the upgrade and carries the current
	// daemon status snapshot.
	FrameTypeHello FrameType = "hello"
	// FrameTypeEvent carries a domain event.
	FrameTypeEvent FrameType = "event"
)

// Frame is the envelope pushed to WebSocket clients.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
