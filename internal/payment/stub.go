package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

// Stub is an in-memory provider for development and tests. Orders complete
// on capture with the amount they were created for.
type Stub struct {
	mu     sync.Mutex
	orders map[string]CreateOrderRequest

	// FailCapture makes every capture return a non-completed status.
	FailCapture bool
}

// Name identifies the provider.
func (s *Stub) Name() string { return "stub" }

// CreateOrder records the order and returns a synthetic id.
func (s *Stub) CreateOrder(_ context.Context, req CreateOrderRequest) (ProviderOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orders == nil {
		s.orders = make(map[string]CreateOrderRequest)
	}
	id := "STUB-" + uuid.NewString()
	s.orders[id] = req
	return ProviderOrder{
		ID:          id,
		Status:      "CREATED",
		ApproveLink: fmt.Sprintf("https://example.test/approve/%s", id),
	}, nil
}

// CaptureOrder completes the stored order.
func (s *Stub) CaptureOrder(_ context.Context, providerOrderID string) (CaptureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.orders[providerOrderID]
	if !ok {
		return CaptureResult{}, fmt.Errorf("unknown order %s: %w", providerOrderID, ErrProviderRejected)
	}
	status := "COMPLETED"
	if s.FailCapture {
		status = "DECLINED"
	}
	return CaptureResult{
		OrderID:   providerOrderID,
		Status:    status,
		Amount:    pricing.Money(req.Amount),
		Currency:  req.Currency,
		CaptureID: "CAP-" + providerOrderID,
	}, nil
}
