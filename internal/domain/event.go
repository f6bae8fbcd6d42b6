package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of pool event being published.
type EventType string

const (
	EventAgentCreated     EventType = "agent.created"
	EventAgentRemoved     EventType = "agent.removed"
	EventAgentMaintenance EventType = "agent.maintenance"
	EventAgentStale       EventType = "agent.stale"

	EventTaskSubmitted EventType = "task.submitted"
	EventTaskAssigned  EventType = "task.assigned"
	EventTaskCompleted EventType = "task.completed"

	EventPoolScaledUp   EventType = "pool.scaled_up"
	EventPoolScaledDown EventType = "pool.scaled_down"
	EventConfigReplaced EventType = "pool.config_replaced"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	AgentID   string          `json:"agent_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides publish/subscribe for pool events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for one event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler for every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
