// Package pubsub provides a generic publish/subscribe event system.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"

	// CommittedEvent is published after a dual-backend write finalizes.
	// Subscribers (the resolution cache, long-lived watchers) use it to
	// invalidate derived state.
	CommittedEvent EventType = "committed"
	// RecoveredEvent is published when startup recovery replayed or rolled
	// back at least one transaction.
	RecoveredEvent EventType = "recovered"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// WriteNotice is the payload published on CommittedEvent: the entity a
// finalized transaction touched.
type WriteNotice struct {
	TxID       string
	EntityType string
	EntityID   string
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
