package options

import "github.com/shopspring/decimal"

// Tier is one institutional-size threshold. A trade is institutional when
// it satisfies every field of at least one tier.
type Tier struct {
	Label           string
	MinPrice        decimal.Decimal
	MinSize         int64
	MinTotalPremium decimal.Decimal // zero means no premium requirement
}

// Matches reports whether the trade satisfies this tier
func (t Tier) Matches(price decimal.Decimal, size int64, totalPremium decimal.Decimal) bool {
	if price.Cmp(t.MinPrice) < 0 {
		return false
	}
	if size < t.MinSize {
		return false
	}
	if !t.MinTotalPremium.IsZero() && totalPremium.Cmp(t.MinTotalPremium) < 0 {
		return false
	}
	return true
}

// DefaultTiers is the ladder of price/size combinations considered
// institutional flow. Ordered largest-price first; evaluation is an OR
// across the whole ladder. The final tier is a premium bypass for cheap
// contracts traded in bulk.
func DefaultTiers() []Tier {
	return []Tier{
		{Label: "8.00/80", MinPrice: decimal.RequireFromString("8.00"), MinSize: 80},
		{Label: "7.00/100", MinPrice: decimal.RequireFromString("7.00"), MinSize: 100},
		{Label: "5.00/150", MinPrice: decimal.RequireFromString("5.00"), MinSize: 150},
		{Label: "3.50/200", MinPrice: decimal.RequireFromString("3.50"), MinSize: 200},
		{Label: "2.50/200", MinPrice: decimal.RequireFromString("2.50"), MinSize: 200},
		{Label: "1.00/800", MinPrice: decimal.RequireFromString("1.00"), MinSize: 800},
		{Label: "0.50/2000", MinPrice: decimal.RequireFromString("0.50"), MinSize: 2000},
		{Label: "0.01/20/50k", MinPrice: decimal.RequireFromString("0.01"), MinSize: 20, MinTotalPremium: decimal.NewFromInt(50000)},
	}
}

// AnyTierMatches reports whether at least one tier accepts the trade
func AnyTierMatches(tiers []Tier, price decimal.Decimal, size int64, totalPremium decimal.Decimal) bool {
	for _, tier := range tiers {
		if tier.Matches(price, size, totalPremium) {
			return true
		}
	}
	return false
}
