package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

// Checkout session statuses.
const (
	SessionOpen     = "OPEN"
	SessionCaptured = "CAPTURED"
	SessionExpired  = "EXPIRED"
)

// CheckoutSession snapshots the server-computed totals between order
// creation at the provider and capture. Capture trusts this row, never
// amounts coming back from the client.
type CheckoutSession struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	CartID           uuid.UUID
	ProviderOrderID  string
	Status           string
	Currency         string
	Subtotal         pricing.Money
	UserDiscount     pricing.Money
	CampaignDiscount pricing.Money
	ShippingCost     pricing.Money
	Tax              pricing.Money
	Total            pricing.Money
	DiscountCode     *string
	ShippingAddress  json.RawMessage
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// SessionRepo persists checkout sessions.
type SessionRepo struct {
	db     DB
	logger zerolog.Logger
}

// NewSessionRepo creates a checkout session repository.
func NewSessionRepo(db DB, logger zerolog.Logger) *SessionRepo {
	return &SessionRepo{db: db, logger: logger.With().Str("repo", "checkout_sessions").Logger()}
}

// WithDB returns a copy bound to the given executor.
func (r *SessionRepo) WithDB(db DB) *SessionRepo {
	return &SessionRepo{db: db, logger: r.logger}
}

const sessionColumns = `id, user_id, cart_id, provider_order_id, status, currency,
	subtotal_cents, user_discount_cents, campaign_discount_cents, shipping_cents,
	tax_cents, total_cents, discount_code, shipping_address, expires_at, created_at`

func scanSession(row interface{ Scan(...any) error }) (CheckoutSession, error) {
	var s CheckoutSession
	err := row.Scan(&s.ID, &s.UserID, &s.CartID, &s.ProviderOrderID, &s.Status, &s.Currency,
		&s.Subtotal, &s.UserDiscount, &s.CampaignDiscount, &s.ShippingCost,
		&s.Tax, &s.Total, &s.DiscountCode, &s.ShippingAddress, &s.ExpiresAt, &s.CreatedAt)
	return s, err
}

// Create inserts a new open session.
func (r *SessionRepo) Create(ctx context.Context, s CheckoutSession) (CheckoutSession, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO checkout_sessions (user_id, cart_id, provider_order_id, status, currency,
			subtotal_cents, user_discount_cents, campaign_discount_cents, shipping_cents,
			tax_cents, total_cents, discount_code, shipping_address, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING `+sessionColumns,
		s.UserID, s.CartID, s.ProviderOrderID, SessionOpen, s.Currency,
		s.Subtotal, s.UserDiscount, s.CampaignDiscount, s.ShippingCost,
		s.Tax, s.Total, s.DiscountCode, s.ShippingAddress, s.ExpiresAt)
	created, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err) {
			return CheckoutSession{}, ErrConflict
		}
		r.logger.Error().Err(err).Msg("create checkout session")
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	return created, nil
}

// GetByProviderOrderID loads a session by the provider order reference.
func (r *SessionRepo) GetByProviderOrderID(ctx context.Context, providerOrderID string) (CheckoutSession, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM checkout_sessions WHERE provider_order_id = $1`, providerOrderID)
	s, err := scanSession(row)
	if err != nil {
		return CheckoutSession{}, mapNoRows(err)
	}
	return s, nil
}

// GetByProviderOrderIDForUpdate row-locks the session so concurrent
// captures of the same provider order serialise.
func (r *SessionRepo) GetByProviderOrderIDForUpdate(ctx context.Context, providerOrderID string) (CheckoutSession, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM checkout_sessions WHERE provider_order_id = $1 FOR UPDATE`, providerOrderID)
	s, err := scanSession(row)
	if err != nil {
		return CheckoutSession{}, mapNoRows(err)
	}
	return s, nil
}

// MarkCaptured flips an open session to captured. Returns ErrConflict when
// the session is no longer open.
func (r *SessionRepo) MarkCaptured(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE checkout_sessions SET status = $2 WHERE id = $1 AND status = $3`,
		id, SessionCaptured, SessionOpen)
	if err != nil {
		return fmt.Errorf("mark session captured: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// ExpireStale marks open sessions past their deadline. Run by the worker.
func (r *SessionRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE checkout_sessions SET status = $2 WHERE status = $1 AND expires_at < $3`,
		SessionOpen, SessionExpired, now)
	if err != nil {
		return 0, fmt.Errorf("expire checkout sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
