package discount

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

func activeRule() Rule {
	return Rule{
		ID:       uuid.New(),
		Code:     "SOMMER10",
		Kind:     KindPercentage,
		PercentBps: 1000,
		AppliesTo: AppliesAll,
		StartsAt: time.Now().Add(-time.Hour),
		Active:   true,
	}
}

func moneyPtr(v pricing.Money) *pricing.Money { return &v }
func int32Ptr(v int32) *int32                 { return &v }

func TestValidateWindow(t *testing.T) {
	r := activeRule()
	now := time.Now()

	r.StartsAt = now.Add(time.Hour)
	if err := r.Validate(now, 0, 10_000, nil); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("not yet started: got %v", err)
	}

	r = activeRule()
	past := now.Add(-time.Minute)
	r.EndsAt = &past
	if err := r.Validate(now, 0, 10_000, nil); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("expired: got %v", err)
	}

	r = activeRule()
	r.Active = false
	if err := r.Validate(now, 0, 10_000, nil); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("inactive: got %v", err)
	}
}

func TestValidateUsageLimits(t *testing.T) {
	r := activeRule()
	r.UsageLimit = int32Ptr(1)
	r.UsageCount = 1
	// The global limit wins regardless of every other field.
	if err := r.Validate(time.Now(), 0, 10_000, nil); !errors.Is(err, ErrUsageLimitReached) {
		t.Fatalf("global limit: got %v", err)
	}

	r = activeRule()
	r.PerUserLimit = int32Ptr(2)
	if err := r.Validate(time.Now(), 2, 10_000, nil); !errors.Is(err, ErrUserLimitReached) {
		t.Fatalf("per-user limit: got %v", err)
	}
	if err := r.Validate(time.Now(), 1, 10_000, nil); err != nil {
		t.Fatalf("under per-user limit: got %v", err)
	}
}

func TestValidateProductScope(t *testing.T) {
	eligible := uuid.New()
	other := uuid.New()
	r := activeRule()
	r.AppliesTo = AppliesProducts
	r.ProductIDs = []uuid.UUID{eligible}

	lines := []CartLine{{ProductID: other, Subtotal: 5000}}
	if err := r.Validate(time.Now(), 0, 5000, lines); !errors.Is(err, ErrNoEligibleProducts) {
		t.Fatalf("no eligible products: got %v", err)
	}

	lines = append(lines, CartLine{ProductID: eligible, Subtotal: 2000})
	if err := r.Validate(time.Now(), 0, 7000, lines); err != nil {
		t.Fatalf("eligible product present: got %v", err)
	}
}

func TestValidateCategoryScope(t *testing.T) {
	cat := uuid.New()
	r := activeRule()
	r.AppliesTo = AppliesCategories
	r.CategoryIDs = []uuid.UUID{cat}

	lines := []CartLine{{ProductID: uuid.New(), Subtotal: 5000}}
	if err := r.Validate(time.Now(), 0, 5000, lines); !errors.Is(err, ErrNoEligibleProducts) {
		t.Fatalf("uncategorised line: got %v", err)
	}
	lines[0].CategoryID = &cat
	if err := r.Validate(time.Now(), 0, 5000, lines); err != nil {
		t.Fatalf("category match: got %v", err)
	}
}

func TestValidateMinimumPurchase(t *testing.T) {
	// fixed_amount 5.00 with min purchase 50.00 against a post-reseller
	// subtotal of 40.00 fails with the distinct below-minimum reason.
	r := activeRule()
	r.Kind = KindFixedAmount
	r.ValueCents = 500
	r.MinPurchase = moneyPtr(5000)
	if err := r.Validate(time.Now(), 0, 4000, nil); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("below minimum: got %v", err)
	}
}

func TestAmountPercentageCapped(t *testing.T) {
	r := activeRule()
	r.PercentBps = 2000 // 20%
	r.MaxDiscount = moneyPtr(500)
	if got := r.Amount(10_000); got != 500 {
		t.Fatalf("expected cap at 500, got %d", got)
	}
	r.MaxDiscount = nil
	if got := r.Amount(10_000); got != 2000 {
		t.Fatalf("expected 2000, got %d", got)
	}
}

func TestAmountFixedCappedAtSubtotal(t *testing.T) {
	r := activeRule()
	r.Kind = KindFixedAmount
	r.ValueCents = 9000
	if got := r.Amount(4000); got != 4000 {
		t.Fatalf("fixed amount must not exceed the remaining subtotal, got %d", got)
	}
}

func TestFreeShippingContributesNoAmount(t *testing.T) {
	r := activeRule()
	r.Kind = KindFreeShipping
	if got := r.Amount(10_000); got != 0 {
		t.Fatalf("free_shipping amount must be zero, got %d", got)
	}
	if !r.FreeShipping() {
		t.Fatal("expected FreeShipping to be true")
	}
}

func TestDiscountStacking(t *testing.T) {
	// subtotal S=100.00, user discount 10%, campaign 20% capped at 10.00:
	// campaign applies to S - S*10% = 90.00 -> 18.00 -> capped 10.00.
	subtotal := pricing.Money(10_000)
	userDiscount := pricing.ApplyBps(subtotal, 1000)
	r := activeRule()
	r.PercentBps = 2000
	r.MaxDiscount = moneyPtr(1000)
	campaign := r.Amount(subtotal - userDiscount)
	if campaign != 1000 {
		t.Fatalf("expected capped campaign discount 1000, got %d", campaign)
	}
	b := pricing.ComputeBreakdown(pricing.BreakdownInput{
		Lines:            []pricing.Line{{Qty: 1, UnitPrice: subtotal}},
		UserDiscountBps:  1000,
		CampaignDiscount: campaign,
		TaxBps:           1900,
	})
	taxable := subtotal - userDiscount - campaign
	if b.Total != taxable+taxable*1900/10000 {
		t.Fatalf("sequential composition broken: %+v", b)
	}
}
