package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"customerWs/internal/modules/events/application/usecase"
	"customerWs/internal/modules/events/domain"
	"customerWs/internal/platform/broker"
	"customerWs/internal/shared/httputil"
)

// EventBus is the publishing side the REST endpoint drives.
type EventBus interface {
	Publish(ctx context.Context, eventType domain.EventType, data any, meta domain.Metadata, channels usecase.Channel) error
}

// PublishRequest is the body of POST /events.
type PublishRequest struct {
	EventType  string          `json:"eventType"`
	Data       json.RawMessage `json:"data"`
	CustomerID string          `json:"customerId,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	Channels   []string        `json:"channels,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

type PublishResponse struct {
	Success   bool     `json:"success"`
	EventType string   `json:"eventType"`
	Channels  []string `json:"channels"`
	RequestID string   `json:"requestId,omitempty"`
}

var errInvalidChannels = errors.New("invalid channels")

var publishErrors = httputil.NewErrorMapper().
	WithMapping(domain.ErrMissingEventType, http.StatusBadRequest, "eventType is required").
	WithMapping(domain.ErrUnknownEventType, http.StatusBadRequest, "unknown eventType").
	WithMapping(errInvalidChannels, http.StatusBadRequest, "channels must be broker and/or realtime").
	WithMapping(usecase.ErrNoChannel, http.StatusBadRequest, "no channel selected").
	WithMapping(broker.ErrNotInitialized, http.StatusServiceUnavailable, "broker unavailable").
	WithDefault(http.StatusBadGateway, "event publish failed")

// NewPublishHTTPHandler lets other internal services raise a domain event
// on the broker and the live connections through one REST call.
func NewPublishHTTPHandler(bus EventBus) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req PublishRequest
		if err := c.Bind(&req); err != nil {
			slog.Warn("publish http: invalid request body", slog.Any("error", err))
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}

		eventType, err := domain.ParseEventType(req.EventType)
		if err != nil {
			return mapError(err, req.EventType)
		}
		channels, err := usecase.ParseChannels(normalizeChannels(req.Channels))
		if err != nil {
			return mapError(errors.Join(errInvalidChannels, err), req.EventType)
		}

		data := req.Data
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		requestID := strings.TrimSpace(req.RequestID)
		if requestID == "" {
			requestID = c.Response().Header().Get(echo.HeaderXRequestID)
		}
		meta := domain.Metadata{
			RequestID:  requestID,
			CustomerID: strings.TrimSpace(req.CustomerID),
			Extra:      req.Metadata,
		}

		if err := bus.Publish(c.Request().Context(), eventType, data, meta, channels); err != nil {
			return mapError(err, req.EventType)
		}

		slog.Info("publish http: event published",
			slog.String("eventType", eventType.String()),
			slog.String("customerId", meta.CustomerID),
			slog.String("requestId", requestID),
		)
		return c.JSON(http.StatusAccepted, PublishResponse{
			Success:   true,
			EventType: eventType.String(),
			Channels:  channelNames(channels),
			RequestID: requestID,
		})
	}
}

func mapError(err error, eventType string) error {
	he := publishErrors.HTTPError(err)
	if he.Code >= http.StatusInternalServerError {
		slog.Error("publish http: failed", slog.String("eventType", eventType), slog.Any("error", err))
	} else {
		slog.Warn("publish http: rejected", slog.String("eventType", eventType), slog.Any("error", err))
	}
	return he
}

func normalizeChannels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ch := range in {
		if ch = strings.ToLower(strings.TrimSpace(ch)); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

func channelNames(ch usecase.Channel) []string {
	var names []string
	if ch&usecase.ChannelBroker != 0 {
		names = append(names, "broker")
	}
	if ch&usecase.ChannelRealtime != 0 {
		names = append(names, "realtime")
	}
	return names
}
