package port

import (
	"context"
	"errors"

	"customerWs/internal/modules/events/domain"
)

var (
	// ErrCustomerNotFound is returned by the store when no customer matches the id.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrInvalidUpdate rejects update payloads touching unknown or immutable fields.
	ErrInvalidUpdate = errors.New("invalid customer update")
)

// EventProducer sends a domain event to the durable log.
type EventProducer interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}

// RealtimePublisher fans an event out to live subscribers and reports how
// many connections it was enqueued for.
type RealtimePublisher interface {
	Publish(eventType string, data any, scopeID string) int
}

// CustomerStore is the persistence collaborator behind customer mutations.
type CustomerStore interface {
	UpdateCustomer(ctx context.Context, customerID string, fields map[string]any) (*domain.Customer, error)
	ProfileProvisioner
}

// ProfileProvisioner creates a customer profile if it does not exist yet and
// reports whether it was created.
type ProfileProvisioner interface {
	EnsureProfile(ctx context.Context, customer domain.Customer) (bool, error)
}

// CustomerUpdater applies a client-requested update to a customer record.
type CustomerUpdater interface {
	UpdateCustomer(ctx context.Context, customerID string, updateData map[string]any) (*domain.Customer, error)
}

// CustomerUpdaterFunc adapts a function to CustomerUpdater.
type CustomerUpdaterFunc func(ctx context.Context, customerID string, updateData map[string]any) (*domain.Customer, error)

func (f CustomerUpdaterFunc) UpdateCustomer(ctx context.Context, customerID string, updateData map[string]any) (*domain.Customer, error) {
	return f(ctx, customerID, updateData)
}

// EventHandler reacts to one consumed event.
type EventHandler interface {
	Handle(ctx context.Context, event domain.Event) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event domain.Event) error

func (f EventHandlerFunc) Handle(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// TopicHandler is registered per durable-log topic with the consumer loop.
type TopicHandler interface {
	Topic() string
	EventHandler
}
