package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

// User is a shop account. ResellerBps is the flat per-user reseller
// discount in basis points, applied to every purchase. PasswordHash is only
// set for back-office accounts; customers authenticate with external JWTs.
type User struct {
	ID                uuid.UUID
	Email             string
	Name              string
	ResellerBps       int32
	Roles             []string
	PasswordHash      *string
	ShippingProfileID *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Address is a delivery address owned by a user.
type Address struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Receiver   string
	Street     string
	PostalCode string
	City       string
	Country    string
	IsDefault  bool
}

// ShippingProfile defines a shipping cost and an optional free-shipping
// threshold.
type ShippingProfile struct {
	ID            uuid.UUID
	Name          string
	Cost          pricing.Money
	FreeThreshold *pricing.Money
	IsDefault     bool
}

// UserRepo provides access to users, addresses and shipping profiles.
type UserRepo struct {
	db     DB
	logger zerolog.Logger
}

// NewUserRepo creates a user repository.
func NewUserRepo(db DB, logger zerolog.Logger) *UserRepo {
	return &UserRepo{db: db, logger: logger.With().Str("repo", "users").Logger()}
}

// WithDB returns a copy bound to the given executor.
func (r *UserRepo) WithDB(db DB) *UserRepo {
	return &UserRepo{db: db, logger: r.logger}
}

const userColumns = `id, email, name, reseller_discount_bps, roles, password_hash, shipping_profile_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.ResellerBps, &u.Roles,
		&u.PasswordHash, &u.ShippingProfileID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByID returns one user.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return User{}, mapNoRows(err)
	}
	return u, nil
}

// GetByEmail returns one user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		return User{}, mapNoRows(err)
	}
	return u, nil
}

// Ensure upserts the external identity on first request so customers
// arriving with a provider-issued JWT get a local row.
func (r *UserRepo) Ensure(ctx context.Context, id uuid.UUID, email, name string) (User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, name)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, updated_at = now()
		RETURNING `+userColumns, id, email, name)
	u, err := scanUser(row)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", id.String()).Msg("ensure user")
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return u, nil
}

// SetResellerBps stores a user's reseller discount rate.
func (r *UserRepo) SetResellerBps(ctx context.Context, id uuid.UUID, bps int32) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET reseller_discount_bps = $2, updated_at = now() WHERE id = $1`, id, bps)
	if err != nil {
		return fmt.Errorf("set reseller bps: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const addressColumns = `id, user_id, receiver, street, postal_code, city, country, is_default`

func scanAddress(row interface{ Scan(...any) error }) (Address, error) {
	var a Address
	err := row.Scan(&a.ID, &a.UserID, &a.Receiver, &a.Street, &a.PostalCode, &a.City, &a.Country, &a.IsDefault)
	return a, err
}

// GetAddressForUser loads an address and enforces ownership.
func (r *UserRepo) GetAddressForUser(ctx context.Context, addressID, userID uuid.UUID) (Address, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	a, err := scanAddress(row)
	if err != nil {
		return Address{}, mapNoRows(err)
	}
	return a, nil
}

// ListAddresses returns a user's addresses, default first.
func (r *UserRepo) ListAddresses(ctx context.Context, userID uuid.UUID) ([]Address, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, city`, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var addrs []Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// CreateAddress inserts an address for a user.
func (r *UserRepo) CreateAddress(ctx context.Context, a Address) (Address, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO addresses (user_id, receiver, street, postal_code, city, country, is_default)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+addressColumns,
		a.UserID, a.Receiver, a.Street, a.PostalCode, a.City, a.Country, a.IsDefault)
	created, err := scanAddress(row)
	if err != nil {
		return Address{}, fmt.Errorf("create address: %w", err)
	}
	return created, nil
}

// DeleteAddress removes an address owned by the user.
func (r *UserRepo) DeleteAddress(ctx context.Context, addressID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetShippingProfileForUser resolves the user's selected shipping profile,
// falling back to the shop default.
func (r *UserRepo) GetShippingProfileForUser(ctx context.Context, userID uuid.UUID) (ShippingProfile, error) {
	row := r.db.QueryRow(ctx, `
		SELECT p.id, p.name, p.cost_cents, p.free_threshold_cents, p.is_default
		FROM shipping_profiles p
		LEFT JOIN users u ON u.shipping_profile_id = p.id AND u.id = $1
		WHERE u.id IS NOT NULL OR p.is_default
		ORDER BY (u.id IS NOT NULL) DESC
		LIMIT 1`, userID)
	var p ShippingProfile
	if err := row.Scan(&p.ID, &p.Name, &p.Cost, &p.FreeThreshold, &p.IsDefault); err != nil {
		return ShippingProfile{}, mapNoRows(err)
	}
	return p, nil
}
