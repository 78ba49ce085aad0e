package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/folienwerk/backend-shop/internal/store"
)

func testCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, 5*time.Minute), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}

	hit, err := cache.GetJSON(ctx, "shop:catalog:product:dtf-a4", &payload{})
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, cache.SetJSON(ctx, "shop:catalog:product:dtf-a4", payload{Name: "DTF Transfer A4"}))

	var got payload
	hit, err = cache.GetJSON(ctx, "shop:catalog:product:dtf-a4", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "DTF Transfer A4", got.Name)
}

func TestCacheInvalidatePatterns(t *testing.T) {
	cache, mr := testCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, "shop:catalog:list:all:1:24", map[string]int{"n": 1}))
	require.NoError(t, cache.SetJSON(ctx, "shop:catalog:list:dtf:1:24", map[string]int{"n": 2}))
	require.NoError(t, cache.SetJSON(ctx, "shop:catalog:product:dtf-a4", map[string]int{"n": 3}))

	require.NoError(t, cache.Invalidate(ctx, "shop:catalog:list:*", "shop:catalog:product:dtf-a4"))

	require.False(t, mr.Exists("shop:catalog:list:all:1:24"))
	require.False(t, mr.Exists("shop:catalog:list:dtf:1:24"))
	require.False(t, mr.Exists("shop:catalog:product:dtf-a4"))
}

func TestCacheNilClientPassesThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	hit, err := cache.GetJSON(ctx, "anything", &struct{}{})
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, cache.SetJSON(ctx, "anything", 1))
	require.NoError(t, cache.Invalidate(ctx, "anything"))
}

func TestProductViewStockFlag(t *testing.T) {
	p := store.Product{Slug: "dtf-a4", Name: "DTF Transfer A4", BasePrice: 500, CalcMethod: store.CalcPerPiece}

	p.TrackInventory = false
	p.Stock = 0
	require.True(t, toView(p).InStock)

	p.TrackInventory = true
	require.False(t, toView(p).InStock)

	p.Stock = 3
	require.True(t, toView(p).InStock)
}
