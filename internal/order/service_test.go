package order

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/folienwerk/backend-shop/internal/events"
	"github.com/folienwerk/backend-shop/internal/store"
)

func TestTransitionAllowed(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{store.OrderPendingPayment, store.OrderCanceled, true},
		{store.OrderPendingPayment, store.OrderShipped, false},
		{store.OrderPaid, store.OrderInProduction, true},
		{store.OrderPaid, store.OrderShipped, false},
		{store.OrderInProduction, store.OrderShipped, true},
		{store.OrderInProduction, store.OrderCanceled, true},
		{store.OrderShipped, store.OrderCanceled, false},
		{store.OrderCanceled, store.OrderPaid, false},
		{store.OrderPaid, store.OrderPaid, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, transitionAllowed(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTopicForStatus(t *testing.T) {
	require.Equal(t, events.TopicOrderInProd, topicForStatus(store.OrderInProduction))
	require.Equal(t, events.TopicOrderShipped, topicForStatus(store.OrderShipped))
	require.Equal(t, events.TopicOrderCanceled, topicForStatus(store.OrderCanceled))
	require.Empty(t, topicForStatus(store.OrderPaid))
	require.Empty(t, topicForStatus(store.OrderPendingPayment))
}
