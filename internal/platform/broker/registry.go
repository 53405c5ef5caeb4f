package broker

import (
	"context"
	"fmt"

	"customerWs/internal/modules/events/application/port"
	"customerWs/internal/modules/events/domain"
)

// HandlerRegistry maps durable-log topics to their handlers.
type HandlerRegistry struct {
	handlers map[string]port.TopicHandler
	order    []string
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]port.TopicHandler)}
}

func (r *HandlerRegistry) Register(h port.TopicHandler) {
	topic := h.Topic()
	if _, exists := r.handlers[topic]; !exists {
		r.order = append(r.order, topic)
	}
	r.handlers[topic] = h
}

// Topics lists registered topics in registration order.
func (r *HandlerRegistry) Topics() []string {
	return append([]string(nil), r.order...)
}

// Dispatch runs the topic's handler, converting a panic into an error.
// Messages on topics without a handler are ignored.
func (r *HandlerRegistry) Dispatch(ctx context.Context, topic string, event domain.Event) (err error) {
	handler, ok := r.handlers[topic]
	if !ok {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler for %s panicked: %v", topic, rec)
		}
	}()
	return handler.Handle(ctx, event)
}
