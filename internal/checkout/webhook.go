package checkout

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/payment"
	"github.com/folienwerk/backend-shop/internal/store"
)

const maxWebhookBody = 1 << 20

// WebhookHandler processes PayPal webhook deliveries. The capture flow is
// driven by the storefront calling /checkout/capture; the webhook is the
// fallback path that settles sessions whose capture response was lost.
type WebhookHandler struct {
	Svc       *Service
	Verifier  payment.WebhookVerifier
	WebhookID string
	Logger    zerolog.Logger
}

// Routes mounts the webhook endpoint.
func (h *WebhookHandler) Routes(r chi.Router) {
	r.Post("/paypal", h.handle)
}

type webhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if h.Verifier == nil {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}
	ok, err := h.Verifier.VerifyWebhook(r.Context(), h.WebhookID, payment.HeadersFromRequest(r.Header), body)
	if err != nil {
		h.Logger.Error().Err(err).Msg("verify webhook signature")
		http.Error(w, "verification unavailable", http.StatusBadGateway)
		return
	}
	if !ok {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	providerOrderID := ""
	switch event.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		providerOrderID = event.Resource.ID
	case "PAYMENT.CAPTURE.COMPLETED":
		providerOrderID = event.Resource.SupplementaryData.RelatedIDs.OrderID
	default:
		// Unhandled event types are acknowledged so PayPal stops retrying.
		w.WriteHeader(http.StatusOK)
		return
	}
	if providerOrderID == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	session, err := h.Svc.Sessions.GetByProviderOrderID(r.Context(), providerOrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.Logger.Error().Err(err).Str("provider_order_id", providerOrderID).Msg("load session for webhook")
		http.Error(w, "session lookup failed", http.StatusInternalServerError)
		return
	}

	if _, err := h.Svc.Capture(r.Context(), session.UserID, providerOrderID); err != nil {
		// Expired and already-captured sessions are final; acknowledge them.
		if errors.Is(err, ErrSessionNotOpen) || errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrCaptureFailed) {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.Logger.Error().Err(err).Str("provider_order_id", providerOrderID).Msg("webhook capture")
		http.Error(w, "capture failed", http.StatusInternalServerError)
		return
	}

	h.Logger.Info().Str("provider_order_id", providerOrderID).Str("event", event.EventType).Msg("webhook settled session")
	w.WriteHeader(http.StatusOK)
}
