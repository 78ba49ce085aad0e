package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/pricing"
	"github.com/folienwerk/backend-shop/internal/store"
)

const cachePrefix = "shop:stats:"

// DailySales is one day of aggregated order volume. Canceled orders are
// excluded.
type DailySales struct {
	Day     time.Time     `json:"day"`
	Orders  int64         `json:"orders"`
	Revenue pricing.Money `json:"revenueCents"`
}

// TopProduct is one row of the best-seller ranking.
type TopProduct struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	Slug      string        `json:"slug"`
	Quantity  int64         `json:"quantity"`
	Revenue   pricing.Money `json:"revenueCents"`
}

// Service aggregates sales figures for the back office. Results are cached
// in Redis because the queries scan the full order history.
type Service struct {
	DB     store.DB
	Client *redis.Client
	TTL    time.Duration
	Logger zerolog.Logger
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 5 * time.Minute
	}
	return s.TTL
}

// SalesDaily returns one row per day in [from, to).
func (s *Service) SalesDaily(ctx context.Context, from, to time.Time) ([]DailySales, error) {
	key := fmt.Sprintf("%ssales:%s:%s", cachePrefix, from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached []DailySales
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	if s == nil || s.DB == nil {
		return nil, errors.New("analytics service not configured")
	}

	rows, err := s.DB.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day, COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM orders
		WHERE status <> $1 AND created_at >= $2 AND created_at < $3
		GROUP BY day
		ORDER BY day`, store.OrderCanceled, from, to)
	if err != nil {
		return nil, fmt.Errorf("sales daily: %w", err)
	}
	defer rows.Close()

	result := make([]DailySales, 0)
	for rows.Next() {
		var d DailySales
		if err := rows.Scan(&d.Day, &d.Orders, &d.Revenue); err != nil {
			return nil, fmt.Errorf("scan sales row: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sales daily: %w", err)
	}
	s.toCache(ctx, key, result)
	return result, nil
}

// TopProducts ranks products by quantity sold across paid orders.
func (s *Service) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	key := fmt.Sprintf("%stop:%d", cachePrefix, limit)
	var cached []TopProduct
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	if s == nil || s.DB == nil {
		return nil, errors.New("analytics service not configured")
	}

	rows, err := s.DB.Query(ctx, `
		SELECT oi.product_id, oi.name, oi.slug,
			SUM(oi.qty), SUM(oi.qty * oi.unit_price_cents + oi.services_total_cents)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status <> $1
		GROUP BY oi.product_id, oi.name, oi.slug
		ORDER BY SUM(oi.qty) DESC
		LIMIT $2`, store.OrderCanceled, limit)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	defer rows.Close()

	result := make([]TopProduct, 0, limit)
	for rows.Next() {
		var p TopProduct
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Slug, &p.Quantity, &p.Revenue); err != nil {
			return nil, fmt.Errorf("scan top product: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	s.toCache(ctx, key, result)
	return result, nil
}

func (s *Service) fromCache(ctx context.Context, key string, dst any) bool {
	if s == nil || s.Client == nil {
		return false
	}
	raw, err := s.Client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (s *Service) toCache(ctx context.Context, key string, value any) {
	if s == nil || s.Client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.Client.Set(ctx, key, raw, s.ttl()).Err(); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("cache stats")
	}
}
