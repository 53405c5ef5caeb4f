package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"customerWs/internal/modules/events/application/port"
	"customerWs/internal/modules/events/domain"
)

// NotificationReceived is the websocket event name used for notifications
// relayed from the notifications topic.
const NotificationReceived = "notification_received"

// NotificationsHandler relays notification events produced by other
// services to the customer's live connections.
type NotificationsHandler struct {
	topic    string
	realtime port.RealtimePublisher
}

func NewNotificationsHandler(topic string, realtime port.RealtimePublisher) *NotificationsHandler {
	return &NotificationsHandler{topic: topic, realtime: realtime}
}

func (h *NotificationsHandler) Topic() string { return h.topic }

func (h *NotificationsHandler) Handle(_ context.Context, event domain.Event) error {
	customerID := event.Metadata.CustomerID
	if customerID == "" {
		slog.Debug("notification without customer scope dropped", slog.String("eventType", event.EventType.String()))
		return nil
	}
	payload := map[string]any{
		"eventType": event.EventType.String(),
		"data":      json.RawMessage(event.Data),
	}
	delivered := h.realtime.Publish(NotificationReceived, payload, customerID)
	slog.Info("notification relayed",
		slog.String("eventType", event.EventType.String()),
		slog.String("customerId", customerID),
		slog.Int("connections", delivered),
	)
	return nil
}

var _ port.TopicHandler = (*NotificationsHandler)(nil)
