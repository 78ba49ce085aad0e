package payment

import (
	"context"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

// CreateOrderRequest carries the server-computed total for a new provider order.
type CreateOrderRequest struct {
	Reference string
	Amount    pricing.Money
	Currency  string
	ReturnURL string
	CancelURL string
}

// ProviderOrder is the provider-side order opened for a checkout session.
type ProviderOrder struct {
	ID          string
	Status      string
	ApproveLink string
}

// CaptureResult is the normalised outcome of capturing a provider order.
type CaptureResult struct {
	OrderID   string
	Status    string
	Amount    pricing.Money
	Currency  string
	CaptureID string
	Raw       []byte
}

// Completed reports whether the capture settled the payment.
func (c CaptureResult) Completed() bool {
	return c.Status == "COMPLETED"
}

// Provider abstracts the upstream payment provider.
type Provider interface {
	Name() string
	CreateOrder(ctx context.Context, req CreateOrderRequest) (ProviderOrder, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (CaptureResult, error)
}
