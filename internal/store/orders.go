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

// Order statuses.
const (
	OrderPendingPayment = "PENDING_PAYMENT"
	OrderPaid           = "PAID"
	OrderInProduction   = "IN_PRODUCTION"
	OrderShipped        = "SHIPPED"
	OrderCanceled       = "CANCELED"
)

// Order is a finalised purchase with the persisted price breakdown.
type Order struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Status           string
	Currency         string
	Subtotal         pricing.Money
	UserDiscount     pricing.Money
	CampaignDiscount pricing.Money
	ShippingCost     pricing.Money
	Tax              pricing.Money
	Total            pricing.Money
	DiscountCode     *string
	ProviderOrderID  *string
	ShippingAddress  json.RawMessage
	CreatedAt        time.Time
}

// OrderItem is one purchased position.
type OrderItem struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	ProductID     uuid.UUID
	Name          string
	Slug          string
	Qty           int
	UnitPrice     pricing.Money
	ServicesTotal pricing.Money
	UploadID      *uuid.UUID
}

// OrderRepo persists orders and their items.
type OrderRepo struct {
	db     DB
	logger zerolog.Logger
}

// NewOrderRepo creates an order repository.
func NewOrderRepo(db DB, logger zerolog.Logger) *OrderRepo {
	return &OrderRepo{db: db, logger: logger.With().Str("repo", "orders").Logger()}
}

// WithDB returns a copy bound to the given executor.
func (r *OrderRepo) WithDB(db DB) *OrderRepo {
	return &OrderRepo{db: db, logger: r.logger}
}

const orderColumns = `id, user_id, status, currency, subtotal_cents, user_discount_cents,
	campaign_discount_cents, shipping_cents, tax_cents, total_cents,
	discount_code, provider_order_id, shipping_address, created_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Currency, &o.Subtotal, &o.UserDiscount,
		&o.CampaignDiscount, &o.ShippingCost, &o.Tax, &o.Total,
		&o.DiscountCode, &o.ProviderOrderID, &o.ShippingAddress, &o.CreatedAt)
	return o, err
}

// Create inserts an order with its breakdown. Run inside the finalising
// transaction.
func (r *OrderRepo) Create(ctx context.Context, o Order) (Order, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, currency, subtotal_cents, user_discount_cents,
			campaign_discount_cents, shipping_cents, tax_cents, total_cents,
			discount_code, provider_order_id, shipping_address)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+orderColumns,
		o.UserID, o.Status, o.Currency, o.Subtotal, o.UserDiscount,
		o.CampaignDiscount, o.ShippingCost, o.Tax, o.Total,
		o.DiscountCode, o.ProviderOrderID, o.ShippingAddress)
	created, err := scanOrder(row)
	if err != nil {
		r.logger.Error().Err(err).Msg("create order")
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	return created, nil
}

// CreateItem inserts one order position.
func (r *OrderRepo) CreateItem(ctx context.Context, it OrderItem) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO order_items (order_id, product_id, name, slug, qty, unit_price_cents, services_total_cents, upload_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		it.OrderID, it.ProductID, it.Name, it.Slug, it.Qty, it.UnitPrice, it.ServicesTotal, it.UploadID)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

// ListForUser returns a page of the user's orders, newest first.
func (r *OrderRepo) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CountForUser returns the user's total order count.
func (r *OrderRepo) CountForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// GetForUser loads one order and enforces ownership.
func (r *OrderRepo) GetForUser(ctx context.Context, orderID, userID uuid.UUID) (Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, orderID, userID)
	o, err := scanOrder(row)
	if err != nil {
		return Order{}, mapNoRows(err)
	}
	return o, nil
}

// List returns a page of all orders for the back office, optionally
// filtered by status.
func (r *OrderRepo) List(ctx context.Context, status string, limit, offset int) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Count returns the total order count behind List.
func (r *OrderRepo) Count(ctx context.Context, status string) (int64, error) {
	query := `SELECT COUNT(*) FROM orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// GetByID loads one order without an ownership check, for the back office.
func (r *OrderRepo) GetByID(ctx context.Context, orderID uuid.UUID) (Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	o, err := scanOrder(row)
	if err != nil {
		return Order{}, mapNoRows(err)
	}
	return o, nil
}

// GetByProviderOrderID finds the order created for a provider reference.
// Used to answer capture retries idempotently.
func (r *OrderRepo) GetByProviderOrderID(ctx context.Context, providerOrderID string) (Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE provider_order_id = $1`, providerOrderID)
	o, err := scanOrder(row)
	if err != nil {
		return Order{}, mapNoRows(err)
	}
	return o, nil
}

// ListItems returns the positions of an order.
func (r *OrderRepo) ListItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, name, slug, qty, unit_price_cents, services_total_cents, upload_id
		FROM order_items WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Slug, &it.Qty,
			&it.UnitPrice, &it.ServicesTotal, &it.UploadID); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateStatus transitions an order.
func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
