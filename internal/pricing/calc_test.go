package pricing

import (
	"testing"
)

func intPtr(v int) *int { return &v }

func TestResolveTierPrefersHighestMinQuantity(t *testing.T) {
	tiers := []Tier{
		{MinQuantity: 1, MaxQuantity: intPtr(100), PricePerUnit: 950},
		{MinQuantity: 10, MaxQuantity: intPtr(49), PricePerUnit: 800},
		{MinQuantity: 25, PricePerUnit: 700},
	}
	got := ResolveTier(tiers, 30)
	if got == nil || got.MinQuantity != 25 {
		t.Fatalf("expected tier with min 25, got %+v", got)
	}
	// 10..49 and 25.. overlap at 30; the higher minimum must win even when
	// the lower tier also contains the quantity.
	got = ResolveTier(tiers, 12)
	if got == nil || got.MinQuantity != 10 {
		t.Fatalf("expected tier with min 10, got %+v", got)
	}
}

func TestResolveTierNoMatch(t *testing.T) {
	tiers := []Tier{
		{MinQuantity: 5, PricePerUnit: 800},
		{MinQuantity: 10, PricePerUnit: 700},
	}
	if got := ResolveTier(tiers, 3); got != nil {
		t.Fatalf("expected nil for quantity below every tier, got %+v", got)
	}
	if got := ResolveTier(nil, 3); got != nil {
		t.Fatalf("expected nil for empty tier set, got %+v", got)
	}
}

func TestResolveTierRespectsMaxQuantity(t *testing.T) {
	tiers := []Tier{
		{MinQuantity: 5, MaxQuantity: intPtr(9), PricePerUnit: 800},
	}
	if got := ResolveTier(tiers, 10); got != nil {
		t.Fatalf("expected nil above the tier max, got %+v", got)
	}
	if got := ResolveTier(tiers, 9); got == nil {
		t.Fatal("expected inclusive max to match")
	}
}

func TestCalculateBasePriceOnly(t *testing.T) {
	// basePrice 10.00, no tiers, qty 3.
	calc := Calculate(1000, 3, nil, 0)
	if calc.UnitPrice != 1000 || calc.Subtotal != 3000 || calc.TierDiscount != 0 || calc.Total != 3000 {
		t.Fatalf("unexpected calculation: %+v", calc)
	}
	if calc.TotalDiscount != 0 {
		t.Fatalf("expected zero total discount, got %d", calc.TotalDiscount)
	}
}

func TestCalculateWithTier(t *testing.T) {
	// basePrice 10.00, tier min=5 unbounded at 8.00, qty 5.
	tiers := []Tier{{MinQuantity: 5, PricePerUnit: 800}}
	calc := Calculate(1000, 5, tiers, 0)
	if calc.UnitPrice != 800 {
		t.Fatalf("expected tier price 800, got %d", calc.UnitPrice)
	}
	if calc.Subtotal != 4000 {
		t.Fatalf("expected subtotal 4000, got %d", calc.Subtotal)
	}
	if calc.TierDiscount != 1000 {
		t.Fatalf("expected tier discount (1000-800)*5=1000, got %d", calc.TierDiscount)
	}
	// The tier saving is already inside the subtotal and must not be
	// subtracted again.
	if calc.Total != 4000 {
		t.Fatalf("expected total 4000, got %d", calc.Total)
	}
}

func TestCalculateWithResellerDiscount(t *testing.T) {
	tiers := []Tier{{MinQuantity: 5, PricePerUnit: 800}}
	calc := Calculate(1000, 5, tiers, 1000) // 10%
	if calc.ResellerDiscount != 400 {
		t.Fatalf("expected reseller discount 400, got %d", calc.ResellerDiscount)
	}
	if calc.Total != 3600 {
		t.Fatalf("expected total 3600, got %d", calc.Total)
	}
	if calc.TotalDiscount != 1400 {
		t.Fatalf("expected total discount 1400, got %d", calc.TotalDiscount)
	}
}

func TestCalculateIsPure(t *testing.T) {
	tiers := []Tier{{MinQuantity: 2, PricePerUnit: 450}}
	a := Calculate(500, 4, tiers, 500)
	b := Calculate(500, 4, tiers, 500)
	// Tier points at a fresh allocation per call, so compare the resolved
	// tier by value and the rest of the struct with the pointers zeroed.
	if (a.Tier == nil) != (b.Tier == nil) || (a.Tier != nil && *a.Tier != *b.Tier) {
		t.Fatalf("identical inputs must resolve the same tier: %+v vs %+v", a.Tier, b.Tier)
	}
	a.Tier, b.Tier = nil, nil
	if a != b {
		t.Fatalf("identical inputs must yield identical output: %+v vs %+v", a, b)
	}
}

func TestCalculateTotalNeverExceedsSubtotal(t *testing.T) {
	for _, bps := range []int32{0, 1, 500, 9999, 10000} {
		calc := Calculate(1299, 7, nil, bps)
		if calc.Total > calc.Subtotal {
			t.Fatalf("bps=%d: total %d exceeds subtotal %d", bps, calc.Total, calc.Subtotal)
		}
	}
}

func TestComputeBreakdownSequentialDiscounts(t *testing.T) {
	threshold := Money(100_00)
	in := BreakdownInput{
		Lines:             []Line{{Qty: 5, UnitPrice: 800, ServicesTotal: 0}},
		UserDiscountBps:   1000,         // 10%
		CampaignDiscount:  500,          // computed by the engine against post-user subtotal
		ShippingCost:      490,
		FreeShippingAbove: &threshold,
		TaxBps:            1900,
	}
	b := ComputeBreakdown(in)
	if b.Subtotal != 4000 {
		t.Fatalf("subtotal: %d", b.Subtotal)
	}
	if b.UserDiscount != 400 {
		t.Fatalf("user discount: %d", b.UserDiscount)
	}
	if b.CampaignDiscount != 500 {
		t.Fatalf("campaign discount: %d", b.CampaignDiscount)
	}
	if b.ShippingCost != 490 {
		t.Fatalf("shipping: %d", b.ShippingCost)
	}
	taxable := Money(4000 - 400 - 500 + 490)
	wantTax := taxable * 1900 / 10000
	if b.Tax != wantTax {
		t.Fatalf("tax: got %d want %d", b.Tax, wantTax)
	}
	if b.Total != taxable+wantTax {
		t.Fatalf("total: got %d want %d", b.Total, taxable+wantTax)
	}
}

func TestComputeBreakdownFreeShippingCode(t *testing.T) {
	in := BreakdownInput{
		Lines:           []Line{{Qty: 2, UnitPrice: 2500}},
		UserDiscountBps: 0,
		FreeShipping:    true,
		ShippingCost:    590,
		TaxBps:          1900,
	}
	b := ComputeBreakdown(in)
	if b.ShippingCost != 0 {
		t.Fatalf("free_shipping code must zero shipping, got %d", b.ShippingCost)
	}
	if b.CampaignDiscount != 0 {
		t.Fatalf("free_shipping code contributes no discount amount, got %d", b.CampaignDiscount)
	}
	wantTax := Money(5000) * 1900 / 10000
	if b.Tax != wantTax {
		t.Fatalf("tax on subtotal without shipping: got %d want %d", b.Tax, wantTax)
	}
}

func TestComputeBreakdownThresholdShipping(t *testing.T) {
	threshold := Money(5000)
	in := BreakdownInput{
		Lines:             []Line{{Qty: 2, UnitPrice: 2500}},
		ShippingCost:      490,
		FreeShippingAbove: &threshold,
		TaxBps:            1900,
	}
	b := ComputeBreakdown(in)
	if b.ShippingCost != 0 {
		t.Fatalf("subtotal at threshold must ship free, got %d", b.ShippingCost)
	}
	in.Lines = []Line{{Qty: 1, UnitPrice: 2500}}
	b = ComputeBreakdown(in)
	if b.ShippingCost != 490 {
		t.Fatalf("below threshold shipping must be charged, got %d", b.ShippingCost)
	}
}

func TestComputeBreakdownServicesEnterSubtotal(t *testing.T) {
	in := BreakdownInput{
		Lines:  []Line{{Qty: 3, UnitPrice: 1000, ServicesTotal: 750}},
		TaxBps: 1900,
	}
	b := ComputeBreakdown(in)
	if b.Subtotal != 3750 {
		t.Fatalf("services must be part of the subtotal, got %d", b.Subtotal)
	}
}

func TestOverlappingTiers(t *testing.T) {
	tiers := []Tier{
		{MinQuantity: 1, MaxQuantity: intPtr(9)},
		{MinQuantity: 10, MaxQuantity: intPtr(24)},
		{MinQuantity: 20},
	}
	overlaps := OverlappingTiers(tiers)
	if len(overlaps) != 1 {
		t.Fatalf("expected one overlapping pair, got %d", len(overlaps))
	}
}
