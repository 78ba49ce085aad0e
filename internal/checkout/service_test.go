package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/folienwerk/backend-shop/internal/events"
)

type recordingNotifier struct {
	topics   []string
	payloads []json.RawMessage
}

func (r *recordingNotifier) Notify(_ context.Context, topic string, payload json.RawMessage) error {
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return nil
}

func TestOrphanedProviderOrderAlertsBackOffice(t *testing.T) {
	rec := &recordingNotifier{}
	svc := &Service{
		Bus:    &events.Bus{Notifiers: []events.Notifier{rec}},
		Logger: zerolog.Nop(),
	}

	cartID := uuid.New()
	svc.alertOrphanedProviderOrder(context.Background(), "PAYPAL-123", cartID, errors.New("insert failed"))

	require.Equal(t, []string{events.TopicPaymentMismatch}, rec.topics)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.payloads[0], &payload))
	require.Equal(t, "PAYPAL-123", payload["providerOrderId"])
	require.Equal(t, cartID.String(), payload["cartId"])
	require.NotEmpty(t, payload["message"])
}

func TestOrphanedProviderOrderAlertWithoutBus(t *testing.T) {
	svc := &Service{Logger: zerolog.Nop()}
	require.NotPanics(t, func() {
		svc.alertOrphanedProviderOrder(context.Background(), "PAYPAL-123", uuid.New(), errors.New("insert failed"))
	})
}
