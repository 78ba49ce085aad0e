package cart

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/folienwerk/backend-shop/internal/discount"
	"github.com/folienwerk/backend-shop/internal/pricing"
	"github.com/folienwerk/backend-shop/internal/store"
)

func intp(v int) *int { return &v }

func TestUnitPriceForPerPieceUsesTierPrice(t *testing.T) {
	product := store.Product{BasePrice: 500, CalcMethod: store.CalcPerPiece}
	tiers := []pricing.Tier{
		{MinQuantity: 10, PricePerUnit: 450},
		{MinQuantity: 50, PricePerUnit: 400},
	}

	require.Equal(t, pricing.Money(500), unitPriceFor(product, tiers, 5, nil, nil))
	require.Equal(t, pricing.Money(450), unitPriceFor(product, tiers, 10, nil, nil))
	require.Equal(t, pricing.Money(400), unitPriceFor(product, tiers, 120, nil, nil))
}

func TestUnitPriceForPerAreaScalesByGeometry(t *testing.T) {
	// 25.00 EUR per m², 500x200 mm = 0.1 m² -> 2.50 EUR
	product := store.Product{BasePrice: 2500, CalcMethod: store.CalcPerArea}

	got := unitPriceFor(product, nil, 1, intp(500), intp(200))
	require.Equal(t, pricing.Money(250), got)
}

func TestUnitPriceForPerAreaRoundsToNearestCent(t *testing.T) {
	// 9.99 EUR per m², 333x333 mm = 0.110889 m² -> 110.778 cents -> 111
	product := store.Product{BasePrice: 999, CalcMethod: store.CalcPerArea}

	got := unitPriceFor(product, nil, 1, intp(333), intp(333))
	require.Equal(t, pricing.Money(111), got)
}

func TestUnitPriceForPerMeterUsesLength(t *testing.T) {
	// 8.00 EUR per running metre, 2500 mm -> 20.00 EUR
	product := store.Product{BasePrice: 800, CalcMethod: store.CalcPerMeter}

	got := unitPriceFor(product, nil, 1, intp(500), intp(2500))
	require.Equal(t, pricing.Money(2000), got)
}

func TestUnitPriceForDimensionalAppliesTierBeforeScaling(t *testing.T) {
	product := store.Product{BasePrice: 2500, CalcMethod: store.CalcPerArea}
	tiers := []pricing.Tier{{MinQuantity: 10, PricePerUnit: 2000}}

	// 20.00 EUR per m² at qty 10, 1 m² print
	got := unitPriceFor(product, tiers, 10, intp(1000), intp(1000))
	require.Equal(t, pricing.Money(2000), got)
}

func TestPriceLinesSubtotalIsPreReseller(t *testing.T) {
	// qty 5 at tier price 8.00 EUR, reseller 10%. The discount engine base
	// must be derived from the pre-reseller subtotal (4000) reduced once
	// (3600), never from line totals that already carry the reseller rate.
	product := store.Product{BasePrice: 1000, CalcMethod: store.CalcPerPiece}
	tiers := []pricing.Tier{{MinQuantity: 5, PricePerUnit: 800}}
	item := store.CartItem{ID: uuid.New(), ProductID: uuid.New(), Qty: 5}

	priced := priceLines([]quoteLineInput{{Item: item, Product: product, Tiers: tiers}}, 1000)

	require.Equal(t, pricing.Money(4000), priced.subtotal)
	afterUser := priced.subtotal - pricing.ApplyBps(priced.subtotal, 1000)
	require.Equal(t, pricing.Money(3600), afterUser)

	// the displayed line total does carry the reseller rate
	require.Len(t, priced.items, 1)
	require.Equal(t, pricing.Money(3600), priced.items[0].LineTotal)
	require.Len(t, priced.dcLines, 1)
	require.Equal(t, pricing.Money(4000), priced.dcLines[0].Subtotal)
}

func TestPriceLinesMinPurchaseAgainstPostResellerBase(t *testing.T) {
	product := store.Product{BasePrice: 800, CalcMethod: store.CalcPerPiece}
	item := store.CartItem{ID: uuid.New(), ProductID: uuid.New(), Qty: 5}

	priced := priceLines([]quoteLineInput{{Item: item, Product: product}}, 1000)
	afterUser := priced.subtotal - pricing.ApplyBps(priced.subtotal, 1000)

	minPurchase := pricing.Money(3500)
	rule := discount.Rule{
		Code:        "SOMMER10",
		Kind:        discount.KindPercentage,
		PercentBps:  1000,
		MinPurchase: &minPurchase,
		AppliesTo:   discount.AppliesAll,
		Active:      true,
	}
	// 3600 clears the 35.00 EUR minimum; a base that had the reseller rate
	// applied twice (3240) would wrongly reject the cart.
	require.NoError(t, rule.Validate(time.Now(), 0, afterUser, priced.dcLines))
	require.Equal(t, pricing.Money(360), rule.Amount(afterUser))
}

func TestPriceLinesServicesEnterDiscountBase(t *testing.T) {
	product := store.Product{BasePrice: 1000, CalcMethod: store.CalcPerPiece}
	item := store.CartItem{ID: uuid.New(), ProductID: uuid.New(), Qty: 2}

	priced := priceLines([]quoteLineInput{{Item: item, Product: product, Services: 500}}, 0)
	require.Equal(t, pricing.Money(2500), priced.subtotal)
	require.Equal(t, pricing.Money(2500), priced.items[0].LineTotal)
}

func TestCheckDimensions(t *testing.T) {
	product := store.Product{
		CalcMethod:  store.CalcPerArea,
		MinWidthMM:  intp(100),
		MaxWidthMM:  intp(1000),
		MinHeightMM: intp(100),
		MaxHeightMM: intp(5000),
	}

	require.NoError(t, checkDimensions(product, intp(500), intp(500)))
	require.ErrorIs(t, checkDimensions(product, intp(50), intp(500)), ErrDimensionsOutOfRange)
	require.ErrorIs(t, checkDimensions(product, intp(500), intp(6000)), ErrDimensionsOutOfRange)
	require.ErrorIs(t, checkDimensions(product, nil, intp(500)), ErrInvalidInput)

	// per-piece products carry no geometry
	require.NoError(t, checkDimensions(store.Product{CalcMethod: store.CalcPerPiece}, nil, nil))
}

func TestCheckStock(t *testing.T) {
	require.NoError(t, checkStock(store.Product{TrackInventory: false, Stock: 0}, 100))
	require.NoError(t, checkStock(store.Product{TrackInventory: true, Stock: 10}, 10))
	require.ErrorIs(t, checkStock(store.Product{TrackInventory: true, Stock: 10}, 11), ErrOutOfStock)
}

func TestSameConfiguration(t *testing.T) {
	item := store.CartItem{WidthMM: intp(500), HeightMM: intp(200)}

	require.True(t, sameConfiguration(item, AddItemInput{WidthMM: intp(500), HeightMM: intp(200)}))
	require.False(t, sameConfiguration(item, AddItemInput{WidthMM: intp(400), HeightMM: intp(200)}))

	// items with add-on services never merge into an existing position
	withServices := AddItemInput{WidthMM: intp(500), HeightMM: intp(200), ServiceIDs: []uuid.UUID{uuid.New()}}
	require.False(t, sameConfiguration(item, withServices))
}
