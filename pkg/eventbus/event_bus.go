// Package eventbus publishes and consumes launch lifecycle events.
package eventbus

import (
	"context"

	"github.com/mcfe/galaxyflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// Discard drops every event. Used when no event bus is configured.
type Discard struct{}

func (Discard) Publish(context.Context, string, Event) error { return nil }
