package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventScanStarted      EventType = "scan.started"
	EventScanFinished     EventType = "scan.finished"
	EventRemoteDiscovered EventType = "remote.discovered"
	EventRemoteConnected  EventType = "remote.connected"
	EventRemoteLost       EventType = "remote.lost"
	EventRemoteDisconnect EventType = "remote.disconnected"
	EventInputActivity    EventType = "input.activity"
	EventIdleTimeout      EventType = "idle.timeout"
	EventRetryExhausted   EventType = "retry.exhausted"

	// Gateway events.
	EventClientConnected    EventType = "gateway.client.connected"
	EventClientDisconnected EventType = "gateway.client.disconnected"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Address   string          `json:"address,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event for a remote with an optional JSON payload.
// Marshal errors are swallowed; payload is best-effort diagnostics.
func NewEvent(t EventType, address string, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now().UTC(), Address: address}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus decouples event producers from consumers.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
	Close()
}
