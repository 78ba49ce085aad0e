package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/folienwerk/backend-shop/internal/payment"
)

type fakeVerifier struct {
	ok  bool
	err error
}

func (f fakeVerifier) VerifyWebhook(context.Context, string, payment.WebhookHeaders, []byte) (bool, error) {
	return f.ok, f.err
}

func webhookRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/paypal", strings.NewReader(body))
	req.Header.Set("Paypal-Transmission-Id", "t-1")
	req.Header.Set("Paypal-Transmission-Sig", "sig")
	return req
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	h := &WebhookHandler{Svc: &Service{}, Verifier: fakeVerifier{ok: false}, WebhookID: "wh-1"}
	rec := httptest.NewRecorder()
	h.handle(rec, webhookRequest(`{"event_type":"CHECKOUT.ORDER.APPROVED"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookVerifierUnavailable(t *testing.T) {
	h := &WebhookHandler{Svc: &Service{}, Verifier: fakeVerifier{err: errors.New("paypal down")}, WebhookID: "wh-1"}
	rec := httptest.NewRecorder()
	h.handle(rec, webhookRequest(`{"event_type":"CHECKOUT.ORDER.APPROVED"}`))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWebhookAcknowledgesUnhandledEvents(t *testing.T) {
	h := &WebhookHandler{Svc: &Service{}, Verifier: fakeVerifier{ok: true}, WebhookID: "wh-1"}
	rec := httptest.NewRecorder()
	h.handle(rec, webhookRequest(`{"event_type":"BILLING.SUBSCRIPTION.CREATED"}`))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookAcknowledgesEventWithoutOrderID(t *testing.T) {
	h := &WebhookHandler{Svc: &Service{}, Verifier: fakeVerifier{ok: true}, WebhookID: "wh-1"}
	rec := httptest.NewRecorder()
	h.handle(rec, webhookRequest(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{}}`))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookNotConfigured(t *testing.T) {
	h := &WebhookHandler{Svc: &Service{}}
	rec := httptest.NewRecorder()
	h.handle(rec, webhookRequest(`{}`))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
