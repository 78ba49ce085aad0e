package pricing

// Line is one cart position as it enters the order total computation:
// the persisted unit price snapshot plus the freshly looked up sum of the
// position's add-on services.
type Line struct {
	Qty           int
	UnitPrice     Money
	ServicesTotal Money
}

// BreakdownInput collects everything the order total derivation needs after
// the data has been loaded. CampaignDiscount is already validated and capped
// by the discount engine; FreeShipping is true when the applied code is of
// the free_shipping kind.
type BreakdownInput struct {
	Lines             []Line
	UserDiscountBps   int32
	CampaignDiscount  Money
	FreeShipping      bool
	ShippingCost      Money
	FreeShippingAbove *Money
	TaxBps            int32
}

// Breakdown is the itemised order total persisted with a checkout session.
type Breakdown struct {
	Subtotal         Money `json:"subtotal"`
	UserDiscount     Money `json:"userDiscountAmount"`
	CampaignDiscount Money `json:"campaignDiscountAmount"`
	ShippingCost     Money `json:"shippingCost"`
	Tax              Money `json:"taxAmount"`
	Total            Money `json:"total"`
}

// ComputeBreakdown derives the order totals. Discounts compose sequentially:
// the reseller discount applies to the subtotal, the campaign discount was
// computed against the post-reseller subtotal by the caller, shipping is
// zeroed by the free-shipping threshold or a free_shipping code, and VAT is
// charged on what remains plus shipping.
func ComputeBreakdown(in BreakdownInput) Breakdown {
	var subtotal Money
	for _, l := range in.Lines {
		if l.Qty <= 0 {
			continue
		}
		subtotal += l.UnitPrice*Money(l.Qty) + l.ServicesTotal
	}

	userDiscount := ApplyBps(subtotal, in.UserDiscountBps)

	campaign := in.CampaignDiscount
	if remaining := subtotal - userDiscount; campaign > remaining {
		campaign = remaining
	}
	if campaign < 0 {
		campaign = 0
	}

	shipping := in.ShippingCost
	if in.FreeShipping {
		shipping = 0
	} else if in.FreeShippingAbove != nil && subtotal-campaign >= *in.FreeShippingAbove {
		shipping = 0
	}

	taxable := subtotal - userDiscount - campaign + shipping
	if taxable < 0 {
		taxable = 0
	}
	tax := ApplyBps(taxable, in.TaxBps)

	return Breakdown{
		Subtotal:         subtotal,
		UserDiscount:     userDiscount,
		CampaignDiscount: campaign,
		ShippingCost:     shipping,
		Tax:              tax,
		Total:            taxable + tax,
	}
}
