package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/events"
)

func TestEmailNotifierSendsOrderPaid(t *testing.T) {
	mail := &common.InMemoryEmail{}
	n := EmailNotifier{
		Mail:    mail,
		Enabled: true,
		Now:     func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	}

	payload, _ := json.Marshal(map[string]string{
		"email":   "kunde@example.de",
		"orderId": "order-1",
		"total":   "54,21 EUR",
	})
	require.NoError(t, n.Notify(context.Background(), events.TopicOrderPaid, payload))
	require.Len(t, mail.Outbox, 1)
	require.Equal(t, "kunde@example.de", mail.Outbox[0].To)
	require.Contains(t, mail.Outbox[0].Subject, "Zahlung erfolgreich")
	require.Contains(t, mail.Outbox[0].HTML, "order-1")
	require.Contains(t, mail.Outbox[0].HTML, "54,21 EUR")
}

func TestEmailNotifierMismatchGoesToAdmin(t *testing.T) {
	mail := &common.InMemoryEmail{}
	n := EmailNotifier{Mail: mail, Enabled: true, AdminMail: "ops@folienwerk.de"}

	payload, _ := json.Marshal(map[string]string{"email": "kunde@example.de", "orderId": "order-2"})
	require.NoError(t, n.Notify(context.Background(), events.TopicPaymentMismatch, payload))
	require.Len(t, mail.Outbox, 1)
	require.Equal(t, "ops@folienwerk.de", mail.Outbox[0].To)
}

func TestEmailNotifierDisabledDoesNothing(t *testing.T) {
	mail := &common.InMemoryEmail{}
	n := EmailNotifier{Mail: mail, Enabled: false}

	require.NoError(t, n.Notify(context.Background(), events.TopicOrderPaid, nil))
	require.Empty(t, mail.Outbox)
}

func TestEmailNotifierSkipsWithoutRecipient(t *testing.T) {
	mail := &common.InMemoryEmail{}
	n := EmailNotifier{Mail: mail, Enabled: true}

	require.NoError(t, n.Notify(context.Background(), events.TopicOrderPaid, json.RawMessage(`{}`)))
	require.Empty(t, mail.Outbox)
}

func TestEmailNotifierTopicToggle(t *testing.T) {
	mail := &common.InMemoryEmail{}
	n := EmailNotifier{
		Mail:         mail,
		Enabled:      true,
		TopicToggles: map[string]bool{events.TopicOrderCreated: false},
	}

	payload := json.RawMessage(`{"email":"kunde@example.de"}`)
	require.NoError(t, n.Notify(context.Background(), events.TopicOrderCreated, payload))
	require.Empty(t, mail.Outbox)
}
