package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"customerWs/internal/modules/events/application/port"
	"customerWs/internal/modules/events/domain"
)

// UpdateCustomerUseCase applies a customer update and announces it on the
// event bus. A publish failure after a successful write is logged only: the
// mutation stands and the event may be missing downstream.
type UpdateCustomerUseCase struct {
	store port.CustomerStore
	bus   *EventBus
}

func NewUpdateCustomerUseCase(store port.CustomerStore, bus *EventBus) *UpdateCustomerUseCase {
	return &UpdateCustomerUseCase{store: store, bus: bus}
}

func (uc *UpdateCustomerUseCase) UpdateCustomer(ctx context.Context, customerID string, updateData map[string]any) (*domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("update customer: missing customer id")
	}
	customer, err := uc.store.UpdateCustomer(ctx, customerID, updateData)
	if err != nil {
		return nil, err
	}
	if uc.bus != nil {
		if err := uc.bus.PublishCustomerUpdated(ctx, *customer, port.RequestIDFromContext(ctx)); err != nil {
			slog.Warn("customer updated but event not delivered to broker",
				slog.String("customerId", customerID),
				slog.Any("error", err),
			)
		}
	}
	return customer, nil
}

var _ port.CustomerUpdater = (*UpdateCustomerUseCase)(nil)
