package events

import (
	"context"
	"fmt"

	"github.com/cuongbtq/media-relay/internal/domain"
)

// Publisher emits job lifecycle events
type Publisher interface {
	Publish(ctx context.Context, event domain.LifecycleEvent) error
}

// JSONPublisher is the transport a BusPublisher writes to
type JSONPublisher interface {
	PublishJSON(subject string, v any) error
}

// BusPublisher publishes lifecycle events as JSON on a fixed subject
type BusPublisher struct {
	bus     JSONPublisher
	subject string
}

// NewBusPublisher creates a publisher writing to subject
func NewBusPublisher(bus JSONPublisher, subject string) *BusPublisher {
	return &BusPublisher{bus: bus, subject: subject}
}

// Publish implements Publisher
func (p *BusPublisher) Publish(_ context.Context, event domain.LifecycleEvent) error {
	if err := p.bus.PublishJSON(p.subject, event); err != nil {
		return fmt.Errorf("failed to publish lifecycle event: %w", err)
	}
	return nil
}

// Nop drops every event; used when no bus is configured
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, domain.LifecycleEvent) error { return nil }
