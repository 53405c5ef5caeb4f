package handler

import (
	"context"
	"fmt"
	"log/slog"

	"customerWs/internal/modules/events/application/port"
	"customerWs/internal/modules/events/domain"
)

// EventRouter handles the events topic by dispatching on event type. Each
// sub-handler is isolated: its error or panic is logged here and never
// reaches the consumer loop.
type EventRouter struct {
	topic    string
	handlers map[domain.EventType]port.EventHandler
}

func NewEventRouter(topic string) *EventRouter {
	return &EventRouter{topic: topic, handlers: make(map[domain.EventType]port.EventHandler)}
}

func (r *EventRouter) Register(eventType domain.EventType, h port.EventHandler) {
	if h == nil {
		return
	}
	r.handlers[eventType] = h
}

func (r *EventRouter) Topic() string { return r.topic }

func (r *EventRouter) Handle(ctx context.Context, event domain.Event) error {
	h, ok := r.handlers[event.EventType]
	if !ok {
		if !event.EventType.Known() {
			slog.Warn("unrecognized event type on events topic",
				slog.String("topic", r.topic),
				slog.String("eventType", event.EventType.String()),
				slog.String("serviceName", event.ServiceName),
			)
			return nil
		}
		slog.Debug("event acknowledged",
			slog.String("topic", r.topic),
			slog.String("eventType", event.EventType.String()),
			slog.String("customerId", event.Metadata.CustomerID),
		)
		return nil
	}
	if err := runIsolated(ctx, h, event); err != nil {
		slog.Error("event sub-handler failed",
			slog.String("topic", r.topic),
			slog.String("eventType", event.EventType.String()),
			slog.String("requestId", event.Metadata.RequestID),
			slog.Any("error", err),
		)
	}
	return nil
}

func runIsolated(ctx context.Context, h port.EventHandler, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(ctx, event)
}

var _ port.TopicHandler = (*EventRouter)(nil)
