package payment

import (
	"context"
	"encoding/json"
	"net/http"
)

// WebhookHeaders are the PayPal transmission headers a webhook delivery
// carries for signature verification.
type WebhookHeaders struct {
	AuthAlgo         string
	CertURL          string
	TransmissionID   string
	TransmissionSig  string
	TransmissionTime string
}

// HeadersFromRequest extracts the transmission headers from a webhook request.
func HeadersFromRequest(h http.Header) WebhookHeaders {
	return WebhookHeaders{
		AuthAlgo:         h.Get("Paypal-Auth-Algo"),
		CertURL:          h.Get("Paypal-Cert-Url"),
		TransmissionID:   h.Get("Paypal-Transmission-Id"),
		TransmissionSig:  h.Get("Paypal-Transmission-Sig"),
		TransmissionTime: h.Get("Paypal-Transmission-Time"),
	}
}

// WebhookVerifier checks the authenticity of a provider webhook delivery.
type WebhookVerifier interface {
	VerifyWebhook(ctx context.Context, webhookID string, headers WebhookHeaders, body []byte) (bool, error)
}

type verifySignatureRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifySignatureResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhook asks PayPal's verify-webhook-signature endpoint whether the
// delivery is authentic. The raw body must be passed unmodified.
func (p *PayPal) VerifyWebhook(ctx context.Context, webhookID string, headers WebhookHeaders, body []byte) (bool, error) {
	req := verifySignatureRequest{
		AuthAlgo:         headers.AuthAlgo,
		CertURL:          headers.CertURL,
		TransmissionID:   headers.TransmissionID,
		TransmissionSig:  headers.TransmissionSig,
		TransmissionTime: headers.TransmissionTime,
		WebhookID:        webhookID,
		WebhookEvent:     json.RawMessage(body),
	}
	var resp verifySignatureResponse
	if err := p.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", req, &resp); err != nil {
		return false, err
	}
	return resp.VerificationStatus == "SUCCESS", nil
}

// VerifyWebhook on the stub accepts every delivery.
func (s *Stub) VerifyWebhook(context.Context, string, WebhookHeaders, []byte) (bool, error) {
	return true, nil
}
