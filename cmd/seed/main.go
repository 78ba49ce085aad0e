package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/folienwerk/backend-shop/internal/auth"
	"github.com/folienwerk/backend-shop/internal/config"
	"github.com/folienwerk/backend-shop/internal/obs"
)

// Seeds a development database with an admin account, the default shipping
// profile, and a small DTF catalog with quantity tiers.
func main() {
	logger := obs.NewLogger(envOrDefault("LOG_FORMAT", "console"), envOrDefault("LOG_LEVEL", "info"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	adminMail := envOrDefault("SEED_ADMIN_EMAIL", "admin@folienwerk.de")
	adminPass := envOrDefault("SEED_ADMIN_PASSWORD", "admin-dev-only")
	hash, err := auth.HashPassword(adminPass)
	if err != nil {
		logger.Fatal().Err(err).Msg("hash admin password")
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO users (email, name, roles, password_hash)
		VALUES ($1, 'Administrator', '{admin}', $2)
		ON CONFLICT (email) DO UPDATE SET roles = EXCLUDED.roles, password_hash = EXCLUDED.password_hash`,
		adminMail, hash); err != nil {
		logger.Fatal().Err(err).Msg("seed admin user")
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO shipping_profiles (name, cost_cents, free_threshold_cents, is_default)
		SELECT 'Standardversand', $1, $2, true
		WHERE NOT EXISTS (SELECT 1 FROM shipping_profiles WHERE is_default)`,
		cfg.DefaultShippingCost, cfg.FreeShippingAbove); err != nil {
		logger.Fatal().Err(err).Msg("seed shipping profile")
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO categories (slug, name) VALUES
			('dtf-transfers', 'DTF Transfers'),
			('zubehoer', 'Zubehör')
		ON CONFLICT (slug) DO NOTHING`); err != nil {
		logger.Fatal().Err(err).Msg("seed categories")
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO products (slug, name, description, base_price_cents, calc_method,
			min_width_mm, max_width_mm, min_height_mm, max_height_mm, requires_upload, category_id)
		VALUES
			('dtf-transfer-a4', 'DTF Transfer A4', 'Transfer bis 210 x 297 mm, 300 DPI Druck.',
				590, 'per_piece', 10, 210, 10, 297, true,
				(SELECT id FROM categories WHERE slug = 'dtf-transfers')),
			('dtf-transfer-meterware', 'DTF Transfer Meterware', 'Laufender Meter auf 560 mm Rollenbreite.',
				2490, 'per_meter', 10, 560, 100, 10000, true,
				(SELECT id FROM categories WHERE slug = 'dtf-transfers')),
			('dtf-transfer-frei', 'DTF Transfer Wunschformat', 'Freies Format, Abrechnung nach Fläche.',
				390, 'per_area', 10, 560, 10, 1000, true,
				(SELECT id FROM categories WHERE slug = 'dtf-transfers'))
		ON CONFLICT (slug) DO NOTHING`); err != nil {
		logger.Fatal().Err(err).Msg("seed products")
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO price_tiers (product_id, min_quantity, max_quantity, price_per_unit_cents, discount_percent_bps, display_order)
		SELECT p.id, t.min_qty, t.max_qty, t.price, t.bps, t.ord
		FROM products p,
			(VALUES (1, 9, 590, 0, 1), (10, 49, 490, 1700, 2), (50, NULL::int, 390, 3400, 3))
				AS t (min_qty, max_qty, price, bps, ord)
		WHERE p.slug = 'dtf-transfer-a4'
		  AND NOT EXISTS (SELECT 1 FROM price_tiers WHERE product_id = p.id)`); err != nil {
		logger.Fatal().Err(err).Msg("seed price tiers")
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO addon_services (name, price_cents)
		SELECT v.name, v.price
		FROM (VALUES ('Express-Produktion', 990), ('Konturschnitt', 250)) AS v (name, price)
		WHERE NOT EXISTS (SELECT 1 FROM addon_services)`); err != nil {
		logger.Fatal().Err(err).Msg("seed addon services")
	}

	logger.Info().Str("admin", adminMail).Msg("seed completed")
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
