package usecase

import (
	"context"
	"sync"

	"customerWs/internal/modules/events/domain"
)

type fakeProducer struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (f *fakeProducer) PublishEvent(_ context.Context, event domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type realtimeCall struct {
	eventType string
	data      any
	scopeID   string
}

type fakeRealtime struct {
	mu    sync.Mutex
	calls []realtimeCall
}

func (f *fakeRealtime) Publish(eventType string, data any, scopeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, realtimeCall{eventType: eventType, data: data, scopeID: scopeID})
	return 1
}

type fakeStore struct {
	customer *domain.Customer
	err      error
	updates  []map[string]any
}

func (f *fakeStore) UpdateCustomer(_ context.Context, customerID string, fields map[string]any) (*domain.Customer, error) {
	f.updates = append(f.updates, fields)
	if f.err != nil {
		return nil, f.err
	}
	return f.customer, nil
}

func (f *fakeStore) EnsureProfile(context.Context, domain.Customer) (bool, error) {
	return false, nil
}
