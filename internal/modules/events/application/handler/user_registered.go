package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"customerWs/internal/modules/events/application/port"
	"customerWs/internal/modules/events/domain"
)

// UserRegisteredHandler provisions a customer profile when the identity
// service announces a new user. Redelivery is harmless: provisioning is an
// insert-if-absent.
type UserRegisteredHandler struct {
	Provisioner port.ProfileProvisioner
	Now         func() time.Time
}

func (h *UserRegisteredHandler) Handle(ctx context.Context, event domain.Event) error {
	user, err := domain.DecodeData[domain.RegisteredUser](event)
	if err != nil {
		return err
	}
	userID := strings.TrimSpace(user.UserID)
	if userID == "" {
		userID = strings.TrimSpace(event.Metadata.CustomerID)
	}
	if userID == "" {
		return fmt.Errorf("%s: missing user id", event.EventType)
	}
	if h.Provisioner == nil {
		slog.Info("user registered, no profile store configured", slog.String("customerId", userID))
		return nil
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	at := now().UTC()
	created, err := h.Provisioner.EnsureProfile(ctx, domain.Customer{
		ID:        userID,
		Email:     strings.TrimSpace(user.Email),
		FirstName: strings.TrimSpace(user.FirstName),
		LastName:  strings.TrimSpace(user.LastName),
		CreatedAt: at,
		UpdatedAt: at,
	})
	if err != nil {
		return fmt.Errorf("provision profile %s: %w", userID, err)
	}
	slog.Info("customer profile provisioned",
		slog.String("customerId", userID),
		slog.Bool("created", created),
		slog.String("sourceService", event.ServiceName),
	)
	return nil
}

var _ port.EventHandler = (*UserRegisteredHandler)(nil)
