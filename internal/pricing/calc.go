package pricing

// Calculation is the full price breakdown for one product position. The tier
// saving is already baked into UnitPrice and therefore into Subtotal;
// TierDiscount and TotalDiscount only report it. The reseller discount is
// the one component actually subtracted from Subtotal to form Total.
type Calculation struct {
	UnitPrice        Money `json:"unitPrice"`
	Quantity         int   `json:"quantity"`
	DiscountBps      int32 `json:"discountBps"`
	ResellerBps      int32 `json:"resellerBps"`
	Subtotal         Money `json:"subtotal"`
	TierDiscount     Money `json:"tierDiscount"`
	ResellerDiscount Money `json:"resellerDiscount"`
	TotalDiscount    Money `json:"totalDiscount"`
	Total            Money `json:"total"`
	Tier             *Tier `json:"-"`
}

// Calculate derives the price breakdown for a quantity of one product.
// The caller guarantees qty >= 1; resellerBps comes from the user record and
// is clamped to [0, 10000] upstream.
func Calculate(basePrice Money, qty int, tiers []Tier, resellerBps int32) Calculation {
	tier := ResolveTier(tiers, qty)
	unitPrice := basePrice
	var discountBps int32
	if tier != nil {
		unitPrice = tier.PricePerUnit
		discountBps = tier.DiscountBps
	}

	subtotal := unitPrice * Money(qty)

	var tierDiscount Money
	if tier != nil && basePrice > unitPrice {
		tierDiscount = (basePrice - unitPrice) * Money(qty)
	}

	resellerDiscount := ApplyBps(subtotal, resellerBps)

	return Calculation{
		UnitPrice:        unitPrice,
		Quantity:         qty,
		DiscountBps:      discountBps,
		ResellerBps:      resellerBps,
		Subtotal:         subtotal,
		TierDiscount:     tierDiscount,
		ResellerDiscount: resellerDiscount,
		TotalDiscount:    tierDiscount + resellerDiscount,
		Total:            subtotal - resellerDiscount,
		Tier:             tier,
	}
}
