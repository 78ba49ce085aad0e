package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

// Cart belongs to a registered user or an anonymous visitor.
type Cart struct {
	ID           uuid.UUID
	UserID       *uuid.UUID
	AnonID       *string
	DiscountCode *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CartItem snapshots the tier unit price at add/update time. The snapshot is
// authoritative until the next quantity change re-resolves the tier.
type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Qty       int
	UnitPrice pricing.Money
	WidthMM   *int
	HeightMM  *int
	UploadID  *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddonService is an optional per-item service (Zusatzleistung) with its own
// server-side price.
type AddonService struct {
	ID     uuid.UUID
	Name   string
	Price  pricing.Money
	Active bool
}

// CartRepo persists carts, their items and item/service links.
type CartRepo struct {
	db     DB
	logger zerolog.Logger
}

// NewCartRepo creates a cart repository.
func NewCartRepo(db DB, logger zerolog.Logger) *CartRepo {
	return &CartRepo{db: db, logger: logger.With().Str("repo", "carts").Logger()}
}

// WithDB returns a copy bound to the given executor.
func (r *CartRepo) WithDB(db DB) *CartRepo {
	return &CartRepo{db: db, logger: r.logger}
}

const cartColumns = `id, user_id, anon_id, applied_discount_code, expires_at, created_at, updated_at`

func scanCart(row interface{ Scan(...any) error }) (Cart, error) {
	var c Cart
	err := row.Scan(&c.ID, &c.UserID, &c.AnonID, &c.DiscountCode, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetByID loads one cart.
func (r *CartRepo) GetByID(ctx context.Context, id uuid.UUID) (Cart, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
	c, err := scanCart(row)
	if err != nil {
		return Cart{}, mapNoRows(err)
	}
	return c, nil
}

// GetActiveByUser returns the user's unexpired cart.
func (r *CartRepo) GetActiveByUser(ctx context.Context, userID uuid.UUID) (Cart, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE user_id = $1 AND expires_at > now() ORDER BY updated_at DESC LIMIT 1`,
		userID)
	c, err := scanCart(row)
	if err != nil {
		return Cart{}, mapNoRows(err)
	}
	return c, nil
}

// GetActiveByAnon returns the visitor's unexpired cart.
func (r *CartRepo) GetActiveByAnon(ctx context.Context, anonID string) (Cart, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE anon_id = $1 AND expires_at > now() ORDER BY updated_at DESC LIMIT 1`,
		anonID)
	c, err := scanCart(row)
	if err != nil {
		return Cart{}, mapNoRows(err)
	}
	return c, nil
}

// Create inserts a cart for a user or an anonymous visitor.
func (r *CartRepo) Create(ctx context.Context, userID *uuid.UUID, anonID *string, expiresAt time.Time) (Cart, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO carts (user_id, anon_id, expires_at) VALUES ($1,$2,$3) RETURNING `+cartColumns,
		userID, anonID, expiresAt)
	c, err := scanCart(row)
	if err != nil {
		r.logger.Error().Err(err).Msg("create cart")
		return Cart{}, fmt.Errorf("create cart: %w", err)
	}
	return c, nil
}

// Touch extends the cart lifetime.
func (r *CartRepo) Touch(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE carts SET expires_at = $2, updated_at = now() WHERE id = $1`, id, expiresAt)
	return err
}

// SetDiscountCode attaches or clears (code == nil) the campaign code.
func (r *CartRepo) SetDiscountCode(ctx context.Context, id uuid.UUID, code *string) error {
	_, err := r.db.Exec(ctx, `UPDATE carts SET applied_discount_code = $2, updated_at = now() WHERE id = $1`, id, code)
	return err
}

// TransferToUser reassigns an anonymous cart after login.
func (r *CartRepo) TransferToUser(ctx context.Context, id, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE carts SET user_id = $2, anon_id = NULL, updated_at = now() WHERE id = $1`, id, userID)
	return err
}

const cartItemColumns = `id, cart_id, product_id, qty, unit_price_cents, width_mm, height_mm, upload_id, created_at, updated_at`

func scanCartItem(row interface{ Scan(...any) error }) (CartItem, error) {
	var it CartItem
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Qty, &it.UnitPrice,
		&it.WidthMM, &it.HeightMM, &it.UploadID, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// ListItems returns all items of a cart.
func (r *CartRepo) ListItems(ctx context.Context, cartID uuid.UUID) ([]CartItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY created_at`, cartID)
	if err != nil {
		r.logger.Error().Err(err).Msg("list cart items")
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []CartItem
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItem loads one cart item.
func (r *CartRepo) GetItem(ctx context.Context, itemID uuid.UUID) (CartItem, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cartItemColumns+` FROM cart_items WHERE id = $1`, itemID)
	it, err := scanCartItem(row)
	if err != nil {
		return CartItem{}, mapNoRows(err)
	}
	return it, nil
}

// GetItemForUpdate locks one cart item row. The quantity-update flow locks
// the row, re-resolves the tier and overwrites the price snapshot inside a
// single transaction so concurrent edits cannot interleave.
func (r *CartRepo) GetItemForUpdate(ctx context.Context, itemID uuid.UUID) (CartItem, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cartItemColumns+` FROM cart_items WHERE id = $1 FOR UPDATE`, itemID)
	it, err := scanCartItem(row)
	if err != nil {
		return CartItem{}, mapNoRows(err)
	}
	return it, nil
}

// FindItemByProduct locates an existing line for the product.
func (r *CartRepo) FindItemByProduct(ctx context.Context, cartID, productID uuid.UUID) (CartItem, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	it, err := scanCartItem(row)
	if err != nil {
		return CartItem{}, mapNoRows(err)
	}
	return it, nil
}

// CreateItem inserts a cart line.
func (r *CartRepo) CreateItem(ctx context.Context, it CartItem) (CartItem, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO cart_items (cart_id, product_id, qty, unit_price_cents, width_mm, height_mm, upload_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+cartItemColumns,
		it.CartID, it.ProductID, it.Qty, it.UnitPrice, it.WidthMM, it.HeightMM, it.UploadID)
	created, err := scanCartItem(row)
	if err != nil {
		r.logger.Error().Err(err).Msg("create cart item")
		return CartItem{}, fmt.Errorf("create cart item: %w", err)
	}
	return created, nil
}

// UpdateItemQtyPrice overwrites quantity and the unit price snapshot.
func (r *CartRepo) UpdateItemQtyPrice(ctx context.Context, itemID uuid.UUID, qty int, unitPrice pricing.Money) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE cart_items SET qty = $2, unit_price_cents = $3, updated_at = now() WHERE id = $1`,
		itemID, qty, unitPrice)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteItem removes a line from a cart.
func (r *CartRepo) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteItems clears the whole cart, used when an order is finalised.
func (r *CartRepo) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return err
}

// SetItemServices replaces the add-on services linked to a cart item.
func (r *CartRepo) SetItemServices(ctx context.Context, itemID uuid.UUID, serviceIDs []uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cart_item_services WHERE cart_item_id = $1`, itemID); err != nil {
		return fmt.Errorf("clear item services: %w", err)
	}
	for _, sid := range serviceIDs {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO cart_item_services (cart_item_id, service_id) VALUES ($1,$2)`, itemID, sid); err != nil {
			return fmt.Errorf("link item service: %w", err)
		}
	}
	return nil
}

// ItemServicesTotal sums the current prices of an item's linked services.
// Prices always come from the services table, never from client input.
func (r *CartRepo) ItemServicesTotal(ctx context.Context, itemID uuid.UUID) (pricing.Money, error) {
	var total pricing.Money
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(s.price_cents), 0)
		FROM cart_item_services cis
		JOIN addon_services s ON s.id = cis.service_id
		WHERE cis.cart_item_id = $1`, itemID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum item services: %w", err)
	}
	return total, nil
}

// ListActiveServices returns the selectable add-on services.
func (r *CartRepo) ListActiveServices(ctx context.Context) ([]AddonService, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, price_cents, active FROM addon_services WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []AddonService
	for rows.Next() {
		var s AddonService
		if err := rows.Scan(&s.ID, &s.Name, &s.Price, &s.Active); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// CountActiveServices reports how many of the given ids are active services.
func (r *CartRepo) CountActiveServices(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM addon_services WHERE active AND id = ANY($1)`, ids).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count services: %w", err)
	}
	return count, nil
}
