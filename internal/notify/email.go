package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/events"
	"github.com/folienwerk/backend-shop/internal/obs"
)

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	AdminMail    string
	TopicToggles map[string]bool
	Now          func() time.Time
}

func (n EmailNotifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(_ context.Context, topic string, raw json.RawMessage) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}

	to := extractRecipient(payload)
	if topic == events.TopicPaymentMismatch {
		// integrity alerts always go to the back office
		to = n.AdminMail
	}
	if to == "" {
		return nil
	}

	err := n.Mail.Send(to, subjectFor(topic), bodyFor(topic, payload, n.now()))
	if obs.EmailSendTotal != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		obs.EmailSendTotal.WithLabelValues(topic, result).Inc()
	}
	return err
}

func extractRecipient(payload map[string]any) string {
	for _, key := range []string{"email", "recipient", "userEmail", "customerEmail"} {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicOrderCreated:
		return "Bestellung eingegangen"
	case events.TopicOrderPaid:
		return "Zahlung erfolgreich – vielen Dank für Ihre Bestellung"
	case events.TopicOrderInProd:
		return "Ihre Bestellung ist in Produktion"
	case events.TopicOrderShipped:
		return "Ihre Bestellung wurde versandt"
	case events.TopicOrderCanceled:
		return "Bestellung storniert"
	case events.TopicPaymentFailed:
		return "Zahlung fehlgeschlagen"
	case events.TopicPaymentExpired:
		return "Zahlungsfrist abgelaufen"
	case events.TopicPaymentMismatch:
		return "Achtung: Zahlbetrag weicht vom Bestellwert ab"
	default:
		return fmt.Sprintf("Benachrichtigung %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("Ereignis %s am %s.", topic, occurred.Format("02.01.2006 15:04"))
	if orderID, ok := payload["orderId"].(string); ok && orderID != "" {
		summary += fmt.Sprintf("\nBestellnummer: %s", orderID)
	}
	if total, ok := payload["total"].(string); ok && total != "" {
		summary += fmt.Sprintf("\nGesamtbetrag: %s", total)
	}
	if note, ok := payload["message"].(string); ok && note != "" {
		summary += "\n" + note
	}
	summary += "\n\nIhr Folienwerk-Team"
	return summary
}
