package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/discount"
	"github.com/folienwerk/backend-shop/internal/pricing"
)

// DiscountRepo reads campaign discount codes and records their usage. Tier
// and discount tables are read-only from the pricing core's perspective;
// usage_count is the only mutable shared state and is incremented with a
// single atomic UPDATE inside the order-finalising transaction.
type DiscountRepo struct {
	db     DB
	logger zerolog.Logger
}

// NewDiscountRepo creates a discount repository.
func NewDiscountRepo(db DB, logger zerolog.Logger) *DiscountRepo {
	return &DiscountRepo{db: db, logger: logger.With().Str("repo", "discounts").Logger()}
}

// WithDB returns a copy bound to the given executor.
func (r *DiscountRepo) WithDB(db DB) *DiscountRepo {
	return &DiscountRepo{db: db, logger: r.logger}
}

const discountColumns = `id, code, kind, value_cents, percent_bps, min_purchase_cents,
	max_discount_cents, usage_limit, usage_count, usage_limit_per_user,
	applies_to, product_ids, category_ids, starts_at, ends_at, active`

func scanDiscount(row interface{ Scan(...any) error }) (discount.Rule, error) {
	var (
		rule        discount.Rule
		percentBps  *int32
		productIDs  []uuid.UUID
		categoryIDs []uuid.UUID
		endsAt      *time.Time
	)
	err := row.Scan(&rule.ID, &rule.Code, &rule.Kind, &rule.ValueCents, &percentBps,
		&rule.MinPurchase, &rule.MaxDiscount, &rule.UsageLimit, &rule.UsageCount,
		&rule.PerUserLimit, &rule.AppliesTo, &productIDs, &categoryIDs,
		&rule.StartsAt, &endsAt, &rule.Active)
	if err != nil {
		return discount.Rule{}, err
	}
	if percentBps != nil {
		rule.PercentBps = *percentBps
	}
	rule.ProductIDs = productIDs
	rule.CategoryIDs = categoryIDs
	rule.EndsAt = endsAt
	return rule, nil
}

// GetByCode loads a discount by its code.
func (r *DiscountRepo) GetByCode(ctx context.Context, code string) (discount.Rule, error) {
	row := r.db.QueryRow(ctx, `SELECT `+discountColumns+` FROM discounts WHERE code = $1`, code)
	rule, err := scanDiscount(row)
	if err != nil {
		return discount.Rule{}, mapNoRows(err)
	}
	return rule, nil
}

// GetByCodeForUpdate loads a discount with a row lock. Used inside the
// order-finalising transaction so concurrent checkouts cannot over-redeem.
func (r *DiscountRepo) GetByCodeForUpdate(ctx context.Context, code string) (discount.Rule, error) {
	row := r.db.QueryRow(ctx, `SELECT `+discountColumns+` FROM discounts WHERE code = $1 FOR UPDATE`, code)
	rule, err := scanDiscount(row)
	if err != nil {
		return discount.Rule{}, mapNoRows(err)
	}
	return rule, nil
}

// List returns all discounts for the back office.
func (r *DiscountRepo) List(ctx context.Context, limit, offset int) ([]discount.Rule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+discountColumns+` FROM discounts ORDER BY starts_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	var rules []discount.Rule
	for rows.Next() {
		rule, err := scanDiscount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Create inserts a discount.
func (r *DiscountRepo) Create(ctx context.Context, rule discount.Rule) (discount.Rule, error) {
	var percentBps *int32
	if rule.PercentBps > 0 {
		percentBps = &rule.PercentBps
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO discounts (code, kind, value_cents, percent_bps, min_purchase_cents,
			max_discount_cents, usage_limit, usage_limit_per_user, applies_to,
			product_ids, category_ids, starts_at, ends_at, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING `+discountColumns,
		rule.Code, rule.Kind, rule.ValueCents, percentBps, rule.MinPurchase,
		rule.MaxDiscount, rule.UsageLimit, rule.PerUserLimit, rule.AppliesTo,
		rule.ProductIDs, rule.CategoryIDs, rule.StartsAt, rule.EndsAt, rule.Active)
	created, err := scanDiscount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return discount.Rule{}, fmt.Errorf("code %q: %w", rule.Code, ErrConflict)
		}
		r.logger.Error().Err(err).Str("code", rule.Code).Msg("create discount")
		return discount.Rule{}, fmt.Errorf("create discount: %w", err)
	}
	return created, nil
}

// Update overwrites the mutable discount fields by code.
func (r *DiscountRepo) Update(ctx context.Context, rule discount.Rule) (discount.Rule, error) {
	var percentBps *int32
	if rule.PercentBps > 0 {
		percentBps = &rule.PercentBps
	}
	row := r.db.QueryRow(ctx, `
		UPDATE discounts SET kind=$2, value_cents=$3, percent_bps=$4, min_purchase_cents=$5,
			max_discount_cents=$6, usage_limit=$7, usage_limit_per_user=$8, applies_to=$9,
			product_ids=$10, category_ids=$11, starts_at=$12, ends_at=$13, active=$14
		WHERE code=$1
		RETURNING `+discountColumns,
		rule.Code, rule.Kind, rule.ValueCents, percentBps, rule.MinPurchase,
		rule.MaxDiscount, rule.UsageLimit, rule.PerUserLimit, rule.AppliesTo,
		rule.ProductIDs, rule.CategoryIDs, rule.StartsAt, rule.EndsAt, rule.Active)
	updated, err := scanDiscount(row)
	if err != nil {
		return discount.Rule{}, mapNoRows(err)
	}
	return updated, nil
}

// CountUsageForUser returns how often a user has redeemed a discount.
func (r *DiscountRepo) CountUsageForUser(ctx context.Context, discountID, userID uuid.UUID) (int32, error) {
	var count int32
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM discount_usages WHERE discount_id = $1 AND user_id = $2`,
		discountID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count discount usage: %w", err)
	}
	return count, nil
}

// HasUsageForOrder reports whether usage was already recorded for an order,
// making settlement idempotent under webhook replays.
func (r *DiscountRepo) HasUsageForOrder(ctx context.Context, discountID, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM discount_usages WHERE discount_id = $1 AND order_id = $2)`,
		discountID, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check discount usage: %w", err)
	}
	return exists, nil
}

// RecordUsage inserts a usage row and bumps the counter atomically. Callers
// run this inside the transaction that finalises the order.
func (r *DiscountRepo) RecordUsage(ctx context.Context, discountID uuid.UUID, userID *uuid.UUID, orderID uuid.UUID, amount pricing.Money) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO discount_usages (discount_id, user_id, order_id, amount_cents) VALUES ($1,$2,$3,$4)`,
		discountID, userID, orderID, amount); err != nil {
		return fmt.Errorf("insert discount usage: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`UPDATE discounts SET usage_count = usage_count + 1 WHERE id = $1`, discountID); err != nil {
		return fmt.Errorf("increment discount usage: %w", err)
	}
	return nil
}
