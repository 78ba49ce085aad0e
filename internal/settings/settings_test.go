package settings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

func testService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Service{
		Client:   client,
		Defaults: Settings{TaxRateBps: 1900, DefaultShippingCents: 490},
		TTL:      time.Minute,
	}, mr
}

func TestGetReturnsDefaultsWithoutOverride(t *testing.T) {
	svc, _ := testService(t)
	got := svc.Get(context.Background())
	require.Equal(t, int32(1900), got.TaxRateBps)
	require.Equal(t, pricing.Money(490), got.DefaultShippingCents)
	require.Nil(t, got.FreeShippingAbove)
}

func TestUpdatePersistsAndReads(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	threshold := pricing.Money(10000)
	next := Settings{TaxRateBps: 1900, DefaultShippingCents: 590, FreeShippingAbove: &threshold}
	require.NoError(t, svc.Update(ctx, next))

	got := svc.Get(ctx)
	require.Equal(t, pricing.Money(590), got.DefaultShippingCents)
	require.NotNil(t, got.FreeShippingAbove)
	require.Equal(t, pricing.Money(10000), *got.FreeShippingAbove)

	// A fresh service sees the stored override, not the defaults.
	fresh := &Service{Client: svc.Client, Defaults: svc.Defaults, TTL: time.Minute}
	require.Equal(t, pricing.Money(590), fresh.Get(ctx).DefaultShippingCents)
}

func TestSnapshotRefreshesAfterTTL(t *testing.T) {
	svc, mr := testService(t)
	ctx := context.Background()

	require.NoError(t, svc.Update(ctx, Settings{TaxRateBps: 1900, DefaultShippingCents: 490}))
	require.Equal(t, pricing.Money(490), svc.Get(ctx).DefaultShippingCents)

	// Change behind the service's back, then expire the snapshot.
	mr.Set("shop:settings", `{"taxRateBps":1900,"defaultShippingCents":790}`)
	svc.mu.Lock()
	svc.fetchedAt = time.Now().Add(-2 * time.Minute)
	svc.mu.Unlock()

	require.Equal(t, pricing.Money(790), svc.Get(ctx).DefaultShippingCents)
}

func TestNilClientFallsBackToDefaults(t *testing.T) {
	svc := &Service{Defaults: Settings{TaxRateBps: 1900}}
	require.Equal(t, int32(1900), svc.Get(context.Background()).TaxRateBps)
	require.Error(t, svc.Update(context.Background(), Settings{}))
}
