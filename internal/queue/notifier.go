package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// MailKind is the job kind carrying transactional mail events.
const MailKind = "mail"

// EventNotifier bridges the domain event bus to the job queue: instead of
// sending mail inline, events are parked as jobs and delivered by the
// worker with retries.
type EventNotifier struct {
	Enq Enqueuer
}

// Notify enqueues the event for asynchronous delivery. The dedup key is
// derived from topic and payload so a redelivered outbox event does not
// mail the customer twice.
func (n EventNotifier) Notify(ctx context.Context, topic string, payload json.RawMessage) error {
	sum := sha256.Sum256(append([]byte(topic+"\x00"), payload...))
	return n.Enq.Enqueue(ctx, MailKind, Job{
		Topic:   topic,
		Payload: payload,
		Key:     hex.EncodeToString(sum[:16]),
	})
}
