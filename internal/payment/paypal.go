package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

// ErrProviderRejected is returned when PayPal declines a request.
var ErrProviderRejected = errors.New("payment provider rejected request")

// PayPal implements Provider against the PayPal Orders v2 API.
type PayPal struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Name identifies the provider.
func (p *PayPal) Name() string { return "paypal" }

func (p *PayPal) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (p *PayPal) baseURL() string {
	base := strings.TrimSpace(p.BaseURL)
	if base == "" {
		base = "https://api-m.sandbox.paypal.com"
	}
	return strings.TrimRight(base, "/")
}

// centsToAmount renders integer cents as the two-decimal string PayPal expects.
func centsToAmount(amount pricing.Money) string {
	return decimal.New(int64(amount), -2).StringFixed(2)
}

// amountToCents parses a PayPal amount string back into integer cents.
func amountToCents(value string) (pricing.Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return pricing.Money(d.Shift(2).IntPart()), nil
}

func (p *PayPal) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL()+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.ClientID, p.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("oauth token status %d: %s: %w", resp.StatusCode, string(body), ErrProviderRejected)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	p.accessToken = payload.AccessToken
	// refresh a minute early
	p.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn-60) * time.Second)
	return p.accessToken, nil
}

func (p *PayPal) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return fmt.Errorf("paypal %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("paypal %s %s status %d: %s: %w", method, path, resp.StatusCode, string(raw), ErrProviderRejected)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode paypal response: %w", err)
		}
	}
	return nil
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Amount      struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateOrder opens a PayPal order for the given amount. The amount is the
// server-computed session total; nothing from the client reaches here.
func (p *PayPal) CreateOrder(ctx context.Context, req CreateOrderRequest) (ProviderOrder, error) {
	if req.Amount <= 0 {
		return ProviderOrder{}, errors.New("amount must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.Reference,
			"amount": map[string]string{
				"currency_code": currency,
				"value":         centsToAmount(req.Amount),
			},
		}},
	}
	if req.ReturnURL != "" || req.CancelURL != "" {
		body["payment_source"] = map[string]any{
			"paypal": map[string]any{
				"experience_context": map[string]string{
					"return_url": req.ReturnURL,
					"cancel_url": req.CancelURL,
				},
			},
		}
	}

	var resp paypalOrderResponse
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &resp); err != nil {
		return ProviderOrder{}, err
	}
	order := ProviderOrder{ID: resp.ID, Status: resp.Status}
	for _, link := range resp.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			order.ApproveLink = link.Href
			break
		}
	}
	if order.ID == "" {
		return ProviderOrder{}, fmt.Errorf("paypal order response missing id: %w", ErrProviderRejected)
	}
	return order, nil
}

// CaptureOrder captures an approved PayPal order and normalises the result.
func (p *PayPal) CaptureOrder(ctx context.Context, providerOrderID string) (CaptureResult, error) {
	if strings.TrimSpace(providerOrderID) == "" {
		return CaptureResult{}, errors.New("provider order id is required")
	}
	var resp paypalOrderResponse
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(providerOrderID)+"/capture", struct{}{}, &resp); err != nil {
		return CaptureResult{}, err
	}

	result := CaptureResult{OrderID: resp.ID, Status: resp.Status}
	for _, unit := range resp.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			result.CaptureID = capture.ID
			result.Currency = capture.Amount.CurrencyCode
			amount, err := amountToCents(capture.Amount.Value)
			if err != nil {
				return CaptureResult{}, err
			}
			result.Amount = amount
		}
	}
	raw, _ := json.Marshal(resp)
	result.Raw = raw
	return result, nil
}
