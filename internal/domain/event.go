package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// EventSettingsChanged is the process-wide "something changed" broadcast.
	// It carries no payload.
	EventSettingsChanged EventType = "settings.changed"

	EventSwitchToggled   EventType = "switch.toggled"
	EventSwitchRefreshed EventType = "switch.refreshed"
	EventCommandExecuted EventType = "command.executed"
	EventCommandTested   EventType = "command.tested"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SwitchID  string          `json:"switch_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event stamped with the current time. A nil payload
// produces an event without payload; marshal failures are dropped the same way.
func NewEvent(t EventType, switchID string, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now(), SwitchID: switchID}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

// SwitchToggledPayload describes a completed toggle.
type SwitchToggledPayload struct {
	SwitchID     string      `json:"switch_id"`
	ControlType  ControlType `json:"control_type"`
	WasOn        bool        `json:"was_on"`
	TurnedOn     bool        `json:"turned_on"`
	ExecutedRole CommandRole `json:"executed_role,omitempty"`
	ActionError  string      `json:"action_error,omitempty"`
}

// SwitchRefreshedPayload describes a status refresh.
type SwitchRefreshedPayload struct {
	SwitchID string `json:"switch_id"`
	Active   bool   `json:"active"`
	Changed  bool   `json:"changed"`
}

// CommandExecutedPayload describes one command run by the engine.
type CommandExecutedPayload struct {
	SwitchID   string      `json:"switch_id"`
	Role       CommandRole `json:"role"`
	Kind       ExecuteKind `json:"kind"`
	OK         bool        `json:"ok"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
