package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSalesDailyServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	cached := []DailySales{{Day: from, Orders: 3, Revenue: 14700}}
	raw, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, mr.Set("shop:stats:sales:2026-08-01:2026-08-08", string(raw)))

	// DB is nil: a hit must be satisfied entirely by the cache.
	svc := &Service{Client: client}
	got, err := svc.SalesDaily(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(3), got[0].Orders)
}

func TestSalesDailyWithoutBackendFails(t *testing.T) {
	svc := &Service{}
	_, err := svc.SalesDaily(context.Background(), time.Now().AddDate(0, 0, -1), time.Now())
	require.Error(t, err)
}

func TestTopProductsServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cached := []TopProduct{{Name: "DTF Transfer A4", Slug: "dtf-transfer-a4", Quantity: 120, Revenue: 58800}}
	raw, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, mr.Set("shop:stats:top:10", string(raw)))

	svc := &Service{Client: client}
	got, err := svc.TopProducts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(120), got[0].Quantity)
}
