package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DomainEvent is an outbox row written in the same transaction as the
// state change it describes. The worker relays unpublished rows.
type DomainEvent struct {
	ID          uuid.UUID
	Topic       string
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// EventRepo is the transactional outbox.
type EventRepo struct {
	db     DB
	logger zerolog.Logger
}

// NewEventRepo creates an event repository.
func NewEventRepo(db DB, logger zerolog.Logger) *EventRepo {
	return &EventRepo{db: db, logger: logger.With().Str("repo", "events").Logger()}
}

// WithDB returns a copy bound to the given executor.
func (r *EventRepo) WithDB(db DB) *EventRepo {
	return &EventRepo{db: db, logger: r.logger}
}

// Append writes one event row. Call inside the transaction that produced
// the event.
func (r *EventRepo) Append(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`INSERT INTO domain_events (topic, payload) VALUES ($1, $2)`, topic, body); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// NextUnpublished claims a batch of unpublished events with SKIP LOCKED so
// multiple workers can drain concurrently.
func (r *EventRepo) NextUnpublished(ctx context.Context, limit int) ([]DomainEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, topic, payload, created_at, published_at
		FROM domain_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var events []DomainEvent
	for rows.Next() {
		var ev DomainEvent
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Payload, &ev.CreatedAt, &ev.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkPublished stamps events as relayed.
func (r *EventRepo) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx,
		`UPDATE domain_events SET published_at = $2 WHERE id = ANY($1)`, ids, at); err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}
