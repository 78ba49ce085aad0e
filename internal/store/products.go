package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

// Price calculation methods.
const (
	CalcPerPiece = "per_piece"
	CalcPerArea  = "per_area"
	CalcPerMeter = "per_meter"
)

// Product is a catalog item. Dimensional constraints are millimetres and
// only set for products that accept uploaded designs.
type Product struct {
	ID              uuid.UUID
	Slug            string
	Name            string
	Description     string
	BasePrice       pricing.Money
	CompareAtPrice  *pricing.Money
	CalcMethod      string
	MinWidthMM      *int
	MaxWidthMM      *int
	MinHeightMM     *int
	MaxHeightMM     *int
	RequiresUpload  bool
	TrackInventory  bool
	Stock           int
	CategoryID      *uuid.UUID
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Category groups products.
type Category struct {
	ID   uuid.UUID
	Slug string
	Name string
}

// ProductRepo provides access to products, categories and price tiers.
type ProductRepo struct {
	db     DB
	logger zerolog.Logger
}

// NewProductRepo creates a product repository.
func NewProductRepo(db DB, logger zerolog.Logger) *ProductRepo {
	return &ProductRepo{db: db, logger: logger.With().Str("repo", "products").Logger()}
}

// WithDB returns a copy bound to the given executor, typically a transaction.
func (r *ProductRepo) WithDB(db DB) *ProductRepo {
	return &ProductRepo{db: db, logger: r.logger}
}

const productColumns = `id, slug, name, description, base_price_cents, compare_at_price_cents,
	calc_method, min_width_mm, max_width_mm, min_height_mm, max_height_mm,
	requires_upload, track_inventory, stock, category_id, active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.BasePrice, &p.CompareAtPrice,
		&p.CalcMethod, &p.MinWidthMM, &p.MaxWidthMM, &p.MinHeightMM, &p.MaxHeightMM,
		&p.RequiresUpload, &p.TrackInventory, &p.Stock, &p.CategoryID, &p.Active,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// List returns active products, optionally filtered by category slug.
func (r *ProductRepo) List(ctx context.Context, categorySlug string, limit, offset int) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE active`
	args := []any{}
	if categorySlug != "" {
		query += ` AND category_id = (SELECT id FROM categories WHERE slug = $1)`
		args = append(args, categorySlug)
	}
	query += fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("list products")
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Count returns the number of active products behind List.
func (r *ProductRepo) Count(ctx context.Context, categorySlug string) (int64, error) {
	query := `SELECT COUNT(*) FROM products WHERE active`
	args := []any{}
	if categorySlug != "" {
		query += ` AND category_id = (SELECT id FROM categories WHERE slug = $1)`
		args = append(args, categorySlug)
	}
	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return count, nil
}

// GetBySlug returns one product by its slug.
func (r *ProductRepo) GetBySlug(ctx context.Context, slug string) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE slug = $1`, slug)
	p, err := scanProduct(row)
	if err != nil {
		return Product{}, mapNoRows(err)
	}
	return p, nil
}

// GetByID returns one product by id.
func (r *ProductRepo) GetByID(ctx context.Context, id uuid.UUID) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		return Product{}, mapNoRows(err)
	}
	return p, nil
}

// Create inserts a product.
func (r *ProductRepo) Create(ctx context.Context, p Product) (Product, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO products (slug, name, description, base_price_cents, compare_at_price_cents,
			calc_method, min_width_mm, max_width_mm, min_height_mm, max_height_mm,
			requires_upload, track_inventory, stock, category_id, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING `+productColumns,
		p.Slug, p.Name, p.Description, p.BasePrice, p.CompareAtPrice,
		p.CalcMethod, p.MinWidthMM, p.MaxWidthMM, p.MinHeightMM, p.MaxHeightMM,
		p.RequiresUpload, p.TrackInventory, p.Stock, p.CategoryID, p.Active)
	created, err := scanProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Product{}, fmt.Errorf("slug %q: %w", p.Slug, ErrConflict)
		}
		r.logger.Error().Err(err).Str("slug", p.Slug).Msg("create product")
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

// Update overwrites the mutable product fields.
func (r *ProductRepo) Update(ctx context.Context, p Product) (Product, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE products SET name=$2, description=$3, base_price_cents=$4, compare_at_price_cents=$5,
			calc_method=$6, min_width_mm=$7, max_width_mm=$8, min_height_mm=$9, max_height_mm=$10,
			requires_upload=$11, track_inventory=$12, stock=$13, category_id=$14, active=$15,
			updated_at=now()
		WHERE id=$1
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.BasePrice, p.CompareAtPrice,
		p.CalcMethod, p.MinWidthMM, p.MaxWidthMM, p.MinHeightMM, p.MaxHeightMM,
		p.RequiresUpload, p.TrackInventory, p.Stock, p.CategoryID, p.Active)
	updated, err := scanProduct(row)
	if err != nil {
		return Product{}, mapNoRows(err)
	}
	return updated, nil
}

// DecrementStock reduces inventory. Tracked products fail with ErrConflict
// when the remaining stock is insufficient; untracked products pass through.
func (r *ProductRepo) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products SET stock = GREATEST(stock - $2, 0)
		WHERE id = $1 AND (NOT track_inventory OR stock >= $2)`, id, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// TiersForProduct loads the price tiers of a product ordered for display.
func (r *ProductRepo) TiersForProduct(ctx context.Context, productID uuid.UUID) ([]pricing.Tier, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, min_quantity, max_quantity, price_per_unit_cents, discount_percent_bps, display_order
		FROM price_tiers WHERE product_id = $1
		ORDER BY display_order, min_quantity`, productID)
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", productID.String()).Msg("load tiers")
		return nil, fmt.Errorf("load tiers: %w", err)
	}
	defer rows.Close()

	var tiers []pricing.Tier
	for rows.Next() {
		var t pricing.Tier
		if err := rows.Scan(&t.ID, &t.ProductID, &t.MinQuantity, &t.MaxQuantity, &t.PricePerUnit, &t.DiscountBps, &t.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// ReplaceTiers swaps the full tier set of a product. Run inside a
// transaction so a failed insert does not leave the product tierless.
func (r *ProductRepo) ReplaceTiers(ctx context.Context, productID uuid.UUID, tiers []pricing.Tier) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM price_tiers WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("delete tiers: %w", err)
	}
	for i, t := range tiers {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO price_tiers (product_id, min_quantity, max_quantity, price_per_unit_cents, discount_percent_bps, display_order)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			productID, t.MinQuantity, t.MaxQuantity, t.PricePerUnit, t.DiscountBps, i); err != nil {
			return fmt.Errorf("insert tier: %w", err)
		}
	}
	return nil
}

// Categories lists all categories.
func (r *ProductRepo) Categories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, slug, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// ActiveSlugs returns slugs of active products, used by the sitemap.
func (r *ProductRepo) ActiveSlugs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT slug FROM products WHERE active ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slugs = append(slugs, s)
	}
	return slugs, rows.Err()
}
