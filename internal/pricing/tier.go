package pricing

import (
	"sort"

	"github.com/google/uuid"
)

// Tier maps a quantity range onto a volume unit price for one product.
// MaxQuantity nil means the range is unbounded above.
type Tier struct {
	ID           uuid.UUID
	ProductID    uuid.UUID
	MinQuantity  int
	MaxQuantity  *int
	PricePerUnit Money
	DiscountBps  int32
	DisplayOrder int
}

// Contains reports whether qty falls inside the tier's quantity range.
func (t Tier) Contains(qty int) bool {
	if qty < t.MinQuantity {
		return false
	}
	if t.MaxQuantity != nil && qty > *t.MaxQuantity {
		return false
	}
	return true
}

// ResolveTier selects the tier that applies to the requested quantity.
// Tiers are considered from the highest MinQuantity down, so when ranges
// overlap the more specific tier wins. A nil result is a valid outcome and
// means the product's base price applies.
func ResolveTier(tiers []Tier, qty int) *Tier {
	if qty < 1 || len(tiers) == 0 {
		return nil
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinQuantity > sorted[j].MinQuantity
	})
	for i := range sorted {
		if sorted[i].Contains(qty) {
			t := sorted[i]
			return &t
		}
	}
	return nil
}

// OverlappingTiers returns the pairs of tiers whose quantity ranges
// intersect. Overlaps are resolved at runtime by ResolveTier, but they are a
// data-quality problem and admin tier creation rejects them.
func OverlappingTiers(tiers []Tier) [][2]Tier {
	var out [][2]Tier
	for i := 0; i < len(tiers); i++ {
		for j := i + 1; j < len(tiers); j++ {
			if rangesIntersect(tiers[i], tiers[j]) {
				out = append(out, [2]Tier{tiers[i], tiers[j]})
			}
		}
	}
	return out
}

func rangesIntersect(a, b Tier) bool {
	aMax := a.MaxQuantity
	bMax := b.MaxQuantity
	if aMax != nil && *aMax < b.MinQuantity {
		return false
	}
	if bMax != nil && *bMax < a.MinQuantity {
		return false
	}
	return true
}
