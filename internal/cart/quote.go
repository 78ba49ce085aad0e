package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/discount"
	"github.com/folienwerk/backend-shop/internal/pricing"
	"github.com/folienwerk/backend-shop/internal/store"
)

// ShippingTerms are the shipping parameters used for a quote when the user
// has no shipping profile.
type ShippingTerms struct {
	Cost      pricing.Money
	FreeAbove *pricing.Money
}

// QuoteItem is one priced cart position.
type QuoteItem struct {
	ItemID        uuid.UUID           `json:"itemId"`
	ProductID     uuid.UUID           `json:"productId"`
	Name          string              `json:"name"`
	Slug          string              `json:"slug"`
	WidthMM       *int                `json:"widthMm,omitempty"`
	HeightMM      *int                `json:"heightMm,omitempty"`
	UploadID      *uuid.UUID          `json:"uploadId,omitempty"`
	Calc          pricing.Calculation `json:"pricing"`
	ServicesTotal pricing.Money       `json:"servicesTotal"`
	LineTotal     pricing.Money       `json:"lineTotal"`
}

// Quote is the full price preview for a cart.
type Quote struct {
	CartID        uuid.UUID         `json:"cartId"`
	Items         []QuoteItem       `json:"items"`
	DiscountCode  *string           `json:"discountCode,omitempty"`
	DiscountError string            `json:"discountError,omitempty"`
	Breakdown     pricing.Breakdown `json:"breakdown"`
}

// Quote prices the cart: every line is recalculated from the current tier
// tables, the user's reseller rate is applied, and the stored discount code
// is revalidated. Amounts shown here are previews; checkout recomputes
// everything from scratch.
func (s *Service) Quote(ctx context.Context, cartID uuid.UUID, userID *uuid.UUID, terms ShippingTerms, taxBps int32) (Quote, error) {
	if s == nil || s.Carts == nil {
		return Quote{}, errors.New("cart service not configured")
	}
	cart, err := s.Carts.GetByID(ctx, cartID)
	if err != nil {
		return Quote{}, err
	}

	var resellerBps int32
	if userID != nil && s.Users != nil {
		if user, err := s.Users.GetByID(ctx, *userID); err == nil {
			resellerBps = user.ResellerBps
		}
		if profile, err := s.Users.GetShippingProfileForUser(ctx, *userID); err == nil {
			terms = ShippingTerms{Cost: profile.Cost, FreeAbove: profile.FreeThreshold}
		}
	}

	items, err := s.Carts.ListItems(ctx, cartID)
	if err != nil {
		return Quote{}, err
	}

	quote := Quote{CartID: cartID, DiscountCode: cart.DiscountCode}
	var inputs []quoteLineInput
	for _, it := range items {
		product, err := s.Products.GetByID(ctx, it.ProductID)
		if err != nil {
			return Quote{}, err
		}
		tiers, err := s.Products.TiersForProduct(ctx, it.ProductID)
		if err != nil {
			return Quote{}, err
		}
		services, err := s.Carts.ItemServicesTotal(ctx, it.ID)
		if err != nil {
			return Quote{}, err
		}
		inputs = append(inputs, quoteLineInput{Item: it, Product: product, Tiers: tiers, Services: services})
	}

	priced := priceLines(inputs, resellerBps)
	quote.Items = priced.items
	lines := priced.lines
	dcLines := priced.dcLines
	subtotal := priced.subtotal

	var (
		campaignAmount pricing.Money
		freeShipping   bool
	)
	if cart.DiscountCode != nil {
		rule, err := s.Discounts.GetByCode(ctx, *cart.DiscountCode)
		if err == nil {
			var used int32
			if userID != nil {
				used, _ = s.Discounts.CountUsageForUser(ctx, rule.ID, *userID)
			}
			afterUser := subtotal - pricing.ApplyBps(subtotal, resellerBps)
			if verr := rule.Validate(s.now(), used, afterUser, dcLines); verr != nil {
				quote.DiscountError = verr.Error()
			} else {
				campaignAmount = rule.Amount(afterUser)
				freeShipping = rule.FreeShipping()
			}
		} else if errors.Is(err, store.ErrNotFound) {
			quote.DiscountError = discount.ErrInvalidOrExpired.Error()
		} else {
			return Quote{}, err
		}
	}

	quote.Breakdown = pricing.ComputeBreakdown(pricing.BreakdownInput{
		Lines:             lines,
		UserDiscountBps:   resellerBps,
		CampaignDiscount:  campaignAmount,
		FreeShipping:      freeShipping,
		ShippingCost:      terms.Cost,
		FreeShippingAbove: terms.FreeAbove,
		TaxBps:            taxBps,
	})
	return quote, nil
}

// quoteLineInput is one cart position with everything already loaded that
// pricing needs.
type quoteLineInput struct {
	Item     store.CartItem
	Product  store.Product
	Tiers    []pricing.Tier
	Services pricing.Money
}

// pricedLines is the aggregate over all positions. subtotal is the
// pre-reseller sum of line subtotals plus services; the reseller rate is
// applied to it exactly once further down, the same derivation checkout
// settles on. QuoteItem.LineTotal is post-reseller and only for display.
type pricedLines struct {
	items    []QuoteItem
	lines    []pricing.Line
	dcLines  []discount.CartLine
	subtotal pricing.Money
}

func priceLines(inputs []quoteLineInput, resellerBps int32) pricedLines {
	var out pricedLines
	for _, in := range inputs {
		it := in.Item
		calc := pricing.Calculate(in.Product.BasePrice, it.Qty, in.Tiers, resellerBps)
		if in.Product.CalcMethod != store.CalcPerPiece {
			// dimensional products scale the tier price by the print geometry
			unit := unitPriceFor(in.Product, in.Tiers, it.Qty, it.WidthMM, it.HeightMM)
			calc.UnitPrice = unit
			calc.Subtotal = pricing.Money(int64(it.Qty)) * unit
			calc.ResellerDiscount = pricing.ApplyBps(calc.Subtotal, resellerBps)
			calc.TotalDiscount = calc.TierDiscount + calc.ResellerDiscount
			calc.Total = calc.Subtotal - calc.ResellerDiscount
		}

		lineSubtotal := calc.Subtotal + in.Services
		out.items = append(out.items, QuoteItem{
			ItemID:        it.ID,
			ProductID:     it.ProductID,
			Name:          in.Product.Name,
			Slug:          in.Product.Slug,
			WidthMM:       it.WidthMM,
			HeightMM:      it.HeightMM,
			UploadID:      it.UploadID,
			Calc:          calc,
			ServicesTotal: in.Services,
			LineTotal:     calc.Total + in.Services,
		})
		out.lines = append(out.lines, pricing.Line{Qty: it.Qty, UnitPrice: calc.UnitPrice, ServicesTotal: in.Services})
		out.dcLines = append(out.dcLines, discount.CartLine{ProductID: it.ProductID, CategoryID: in.Product.CategoryID, Subtotal: lineSubtotal})
		out.subtotal += lineSubtotal
	}
	return out
}
