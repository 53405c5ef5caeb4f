package handler

import (
	"context"
	"log/slog"

	"customerWs/internal/modules/events/application/port"
	"customerWs/internal/modules/events/domain"
)

type AnalyticsHandler struct {
	topic string
}

func NewAnalyticsHandler(topic string) *AnalyticsHandler {
	return &AnalyticsHandler{topic: topic}
}

func (h *AnalyticsHandler) Topic() string { return h.topic }

func (h *AnalyticsHandler) Handle(_ context.Context, event domain.Event) error {
	slog.Info("analytics event received",
		slog.String("eventType", event.EventType.String()),
		slog.String("serviceName", event.ServiceName),
		slog.String("customerId", event.Metadata.CustomerID),
		slog.String("timestamp", event.Metadata.Timestamp),
	)
	return nil
}

var _ port.TopicHandler = (*AnalyticsHandler)(nil)
