package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	topics   []string
	payloads []json.RawMessage
	err      error
}

func (m *memStore) Append(_ context.Context, topic string, payload any) error {
	if m.err != nil {
		return m.err
	}
	m.topics = append(m.topics, topic)
	m.payloads = append(m.payloads, payload.(json.RawMessage))
	return nil
}

type memNotifier struct {
	seen []string
	err  error
}

func (m *memNotifier) Notify(_ context.Context, topic string, _ json.RawMessage) error {
	m.seen = append(m.seen, topic)
	return m.err
}

func TestBusEmitPersistsAndNotifies(t *testing.T) {
	st := &memStore{}
	n := &memNotifier{}
	bus := &Bus{Store: st, Notifiers: []Notifier{n}}

	err := bus.Emit(context.Background(), TopicOrderPaid, map[string]string{"orderId": "o-1"})
	require.NoError(t, err)
	require.Equal(t, []string{TopicOrderPaid}, st.topics)
	require.Equal(t, []string{TopicOrderPaid}, n.seen)
	require.JSONEq(t, `{"orderId":"o-1"}`, string(st.payloads[0]))
}

func TestBusEmitRejectsEmptyTopic(t *testing.T) {
	bus := &Bus{Store: &memStore{}}
	require.Error(t, bus.Emit(context.Background(), "  ", nil))
}

func TestBusEmitStoreFailureAborts(t *testing.T) {
	boom := errors.New("boom")
	n := &memNotifier{}
	bus := &Bus{Store: &memStore{err: boom}, Notifiers: []Notifier{n}}

	err := bus.Emit(context.Background(), TopicOrderCreated, nil)
	require.ErrorIs(t, err, boom)
	require.Empty(t, n.seen)
}

func TestBusEmitNotifierFailureStillPersists(t *testing.T) {
	st := &memStore{}
	n := &memNotifier{err: errors.New("smtp down")}
	bus := &Bus{Store: st, Notifiers: []Notifier{n}}

	err := bus.Emit(context.Background(), TopicOrderPaid, nil)
	require.Error(t, err)
	require.Len(t, st.topics, 1)
}

func TestBusEmitRejectsInvalidRawJSON(t *testing.T) {
	bus := &Bus{Store: &memStore{}}
	require.Error(t, bus.Emit(context.Background(), TopicOrderPaid, []byte("{not json")))
}
