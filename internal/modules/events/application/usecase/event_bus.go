package usecase

import (
	"context"
	"errors"
	"log/slog"

	"customerWs/internal/modules/events/application/port"
	"customerWs/internal/modules/events/domain"
)

// Channel selects the transports an event is delivered to.
type Channel uint8

const (
	ChannelBroker Channel = 1 << iota
	ChannelRealtime

	ChannelAll = ChannelBroker | ChannelRealtime
)

var ErrNoChannel = errors.New("no delivery channel selected")

// ParseChannels maps channel names ("broker", "realtime") to a Channel set.
// An empty list selects every channel.
func ParseChannels(names []string) (Channel, error) {
	if len(names) == 0 {
		return ChannelAll, nil
	}
	var out Channel
	for _, name := range names {
		switch name {
		case "broker", "kafka":
			out |= ChannelBroker
		case "realtime", "websocket", "ws":
			out |= ChannelRealtime
		default:
			return 0, errors.New("unknown channel " + name)
		}
	}
	return out, nil
}

// EventBus delivers a domain event to live subscribers and to the durable
// log in one call.
type EventBus struct {
	publisher *EventPublisher
	realtime  port.RealtimePublisher
}

func NewEventBus(publisher *EventPublisher, realtime port.RealtimePublisher) *EventBus {
	return &EventBus{publisher: publisher, realtime: realtime}
}

// Publish fans the event out in-process first, then sends it to the broker
// and returns the broker error. Realtime delivery is scoped to the metadata
// customer id except for CUSTOMER_CREATED, which goes to the unscoped topic.
func (b *EventBus) Publish(ctx context.Context, eventType domain.EventType, data any, meta domain.Metadata, channels Channel) error {
	if channels&ChannelAll == 0 {
		return ErrNoChannel
	}
	if channels&ChannelRealtime != 0 && b.realtime != nil {
		scope := meta.CustomerID
		if eventType == domain.CustomerCreated {
			scope = ""
		}
		delivered := b.realtime.Publish(eventType.RealtimeName(), data, scope)
		slog.Debug("domain event fanned out",
			slog.String("eventType", eventType.String()),
			slog.String("scope", scope),
			slog.Int("connections", delivered),
		)
	}
	if channels&ChannelBroker != 0 {
		if _, err := b.publisher.PublishDomainEvent(ctx, eventType, data, meta); err != nil {
			return err
		}
	}
	return nil
}

func (b *EventBus) PublishCustomerCreated(ctx context.Context, customer domain.Customer, requestID string) error {
	return b.Publish(ctx, domain.CustomerCreated, customer, customerMetadata(customer.ID, requestID), ChannelAll)
}

func (b *EventBus) PublishCustomerUpdated(ctx context.Context, customer domain.Customer, requestID string) error {
	return b.Publish(ctx, domain.CustomerUpdated, customer, customerMetadata(customer.ID, requestID), ChannelAll)
}

func (b *EventBus) PublishCustomerVerified(ctx context.Context, customer domain.Customer, requestID string) error {
	return b.Publish(ctx, domain.CustomerVerified, customer, customerMetadata(customer.ID, requestID), ChannelAll)
}

func (b *EventBus) PublishCustomerAddressAdded(ctx context.Context, customerID string, address domain.Address, requestID string) error {
	payload := domain.AddressAdded{CustomerID: customerID, Address: address}
	return b.Publish(ctx, domain.CustomerAddressAdded, payload, customerMetadata(customerID, requestID), ChannelAll)
}

func (b *EventBus) PublishCustomerNotificationSent(ctx context.Context, customerID string, notification domain.Notification, requestID string) error {
	payload := domain.NotificationSent{CustomerID: customerID, Notification: notification}
	return b.Publish(ctx, domain.CustomerNotificationSent, payload, customerMetadata(customerID, requestID), ChannelAll)
}
