package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/folienwerk/backend-shop/internal/store"
)

// Appender persists an event as part of the emitting transaction.
type Appender interface {
	Append(ctx context.Context, topic string, payload any) error
}

// Notifier reacts to emitted events (email, metrics, logging).
type Notifier interface {
	Notify(ctx context.Context, topic string, payload json.RawMessage) error
}

// Bus writes domain events to the outbox and fans them out to in-process
// notifiers. The outbox row makes the event durable; notifier failures are
// reported but never abort the emitting operation.
type Bus struct {
	Store     Appender
	Notifiers []Notifier
}

// Emit records the event and dispatches it to all configured notifiers.
func (b *Bus) Emit(ctx context.Context, topic string, payload any) error {
	if b == nil || b.Store == nil {
		return errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return errors.New("events: topic is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("events: encode payload: %w", err)
	}
	if err := b.Store.Append(ctx, topic, json.RawMessage(encoded)); err != nil {
		return fmt.Errorf("events: persist event: %w", err)
	}

	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, topic, encoded); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return joined
}

// NotifyOnly fans the event out to notifiers without writing the outbox,
// for events already persisted inside the emitting transaction.
func (b *Bus) NotifyOnly(ctx context.Context, topic string, payload any) error {
	if b == nil {
		return nil
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("events: encode payload: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, topic, encoded); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return joined
}

// WithStore returns a copy of the bus bound to a different appender,
// typically the outbox repo cloned onto a transaction.
func (b *Bus) WithStore(appender Appender) *Bus {
	return &Bus{Store: appender, Notifiers: b.Notifiers}
}

var _ Appender = (*store.EventRepo)(nil)

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case []byte:
		return validJSON(v)
	case json.RawMessage:
		return validJSON(v)
	case string:
		return validJSON([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}

func validJSON(data []byte) (json.RawMessage, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append(json.RawMessage(nil), data...), nil
}
