package pricing

// Money represents a monetary value in euro cents.
type Money = int64

// ApplyBps returns amount * bps / 10000, the basis-point share of an amount.
// Discount percentages are carried as basis points so that the arithmetic
// stays in integers end to end.
func ApplyBps(amount Money, bps int32) Money {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount * Money(bps)) / 10000
}
