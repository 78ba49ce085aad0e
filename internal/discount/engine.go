package discount

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/pricing"
)

// Discount kinds.
const (
	KindPercentage   = "percentage"
	KindFixedAmount  = "fixed_amount"
	KindFreeShipping = "free_shipping"
)

// Eligibility scopes.
const (
	AppliesAll        = "all"
	AppliesProducts   = "specific_products"
	AppliesCategories = "specific_categories"
)

var (
	// ErrInvalidOrExpired is returned when the code does not exist, is
	// inactive, or the current time is outside its validity window.
	ErrInvalidOrExpired = errors.New("discount code invalid or expired")
	// ErrUsageLimitReached indicates the global usage quota is exhausted.
	ErrUsageLimitReached = errors.New("discount usage limit reached")
	// ErrUserLimitReached indicates the caller has used up the per-user allowance.
	ErrUserLimitReached = errors.New("discount per-user limit reached")
	// ErrNoEligibleProducts is returned when a scoped code matches nothing in the cart.
	ErrNoEligibleProducts = errors.New("no eligible products in cart")
	// ErrBelowMinimum indicates the discounted subtotal does not meet the minimum purchase.
	ErrBelowMinimum = errors.New("minimum purchase amount not met")
)

// Rule carries the runtime constraints of a campaign discount code.
type Rule struct {
	ID           uuid.UUID
	Code         string
	Kind         string
	ValueCents   pricing.Money
	PercentBps   int32
	MinPurchase  *pricing.Money
	MaxDiscount  *pricing.Money
	UsageLimit   *int32
	UsageCount   int32
	PerUserLimit *int32
	AppliesTo    string
	ProductIDs   []uuid.UUID
	CategoryIDs  []uuid.UUID
	StartsAt     time.Time
	EndsAt       *time.Time
	Active       bool
}

// CartLine is the snapshot of one cart position the engine checks
// eligibility against.
type CartLine struct {
	ProductID  uuid.UUID
	CategoryID *uuid.UUID
	Subtotal   pricing.Money
}

// Validate runs the state checks in the order their failure reasons are
// surfaced to the customer. userUsed is the per-user redemption count from
// the usage log; subtotal is the post-reseller-discount cart subtotal.
func (r Rule) Validate(now time.Time, userUsed int32, subtotal pricing.Money, lines []CartLine) error {
	if !r.Active || now.Before(r.StartsAt) {
		return ErrInvalidOrExpired
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return ErrInvalidOrExpired
	}
	if r.UsageLimit != nil && r.UsageCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	if r.PerUserLimit != nil && userUsed >= *r.PerUserLimit {
		return ErrUserLimitReached
	}
	if !r.anyLineEligible(lines) {
		return ErrNoEligibleProducts
	}
	if r.MinPurchase != nil && subtotal < *r.MinPurchase {
		return ErrBelowMinimum
	}
	return nil
}

func (r Rule) anyLineEligible(lines []CartLine) bool {
	switch r.AppliesTo {
	case AppliesProducts:
		for _, l := range lines {
			for _, id := range r.ProductIDs {
				if id == l.ProductID {
					return true
				}
			}
		}
		return false
	case AppliesCategories:
		for _, l := range lines {
			if l.CategoryID == nil {
				continue
			}
			for _, id := range r.CategoryIDs {
				if id == *l.CategoryID {
					return true
				}
			}
		}
		return false
	default:
		return true
	}
}

// Amount computes the discount value against the post-reseller subtotal.
// Percentage amounts are capped at MaxDiscount, fixed amounts at the
// remaining subtotal. A free_shipping code never contributes an amount; its
// effect is applied to the shipping cost instead.
func (r Rule) Amount(subtotal pricing.Money) pricing.Money {
	if subtotal <= 0 {
		return 0
	}
	switch r.Kind {
	case KindPercentage:
		amount := pricing.ApplyBps(subtotal, r.PercentBps)
		if r.MaxDiscount != nil && amount > *r.MaxDiscount {
			amount = *r.MaxDiscount
		}
		return amount
	case KindFixedAmount:
		amount := r.ValueCents
		if amount > subtotal {
			amount = subtotal
		}
		if amount < 0 {
			amount = 0
		}
		return amount
	default:
		return 0
	}
}

// FreeShipping reports whether the rule waives shipping.
func (r Rule) FreeShipping() bool {
	return r.Kind == KindFreeShipping
}
