package usecase

import (
	"context"
	"log/slog"
	"time"

	"customerWs/internal/modules/events/application/port"
	"customerWs/internal/modules/events/domain"
)

// EventPublisher builds domain events for this service and hands them to the
// durable-log producer. Failures are logged and returned so the business
// operation decides whether to compensate.
type EventPublisher struct {
	producer    port.EventProducer
	serviceName string
	now         func() time.Time
}

func NewEventPublisher(producer port.EventProducer, serviceName string) *EventPublisher {
	return &EventPublisher{producer: producer, serviceName: serviceName, now: time.Now}
}

// PublishDomainEvent builds the envelope for data and sends it. The built
// event is returned even when the send fails.
func (p *EventPublisher) PublishDomainEvent(ctx context.Context, eventType domain.EventType, data any, meta domain.Metadata) (domain.Event, error) {
	if meta.RequestID == "" {
		meta.RequestID = port.RequestIDFromContext(ctx)
	}
	event, err := domain.NewEvent(eventType, p.serviceName, data, meta, p.now())
	if err != nil {
		return domain.Event{}, err
	}
	if err := p.producer.PublishEvent(ctx, event); err != nil {
		slog.Error("domain event publish failed",
			slog.String("eventType", eventType.String()),
			slog.String("customerId", meta.CustomerID),
			slog.String("requestId", meta.RequestID),
			slog.Any("error", err),
		)
		return event, err
	}
	return event, nil
}

func (p *EventPublisher) PublishCustomerCreated(ctx context.Context, customer domain.Customer, requestID string) error {
	_, err := p.PublishDomainEvent(ctx, domain.CustomerCreated, customer, customerMetadata(customer.ID, requestID))
	return err
}

func (p *EventPublisher) PublishCustomerUpdated(ctx context.Context, customer domain.Customer, requestID string) error {
	_, err := p.PublishDomainEvent(ctx, domain.CustomerUpdated, customer, customerMetadata(customer.ID, requestID))
	return err
}

func (p *EventPublisher) PublishCustomerVerified(ctx context.Context, customer domain.Customer, requestID string) error {
	_, err := p.PublishDomainEvent(ctx, domain.CustomerVerified, customer, customerMetadata(customer.ID, requestID))
	return err
}

func (p *EventPublisher) PublishCustomerAddressAdded(ctx context.Context, customerID string, address domain.Address, requestID string) error {
	payload := domain.AddressAdded{CustomerID: customerID, Address: address}
	_, err := p.PublishDomainEvent(ctx, domain.CustomerAddressAdded, payload, customerMetadata(customerID, requestID))
	return err
}

func (p *EventPublisher) PublishCustomerNotificationSent(ctx context.Context, customerID string, notification domain.Notification, requestID string) error {
	payload := domain.NotificationSent{CustomerID: customerID, Notification: notification}
	_, err := p.PublishDomainEvent(ctx, domain.CustomerNotificationSent, payload, customerMetadata(customerID, requestID))
	return err
}

func customerMetadata(customerID, requestID string) domain.Metadata {
	return domain.Metadata{CustomerID: customerID, RequestID: requestID}
}
