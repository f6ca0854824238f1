package options

import (
	"time"

	"github.com/shopspring/decimal"
)

// OptionType identifies the side of a contract
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Classification is the institutional-flow category assigned to a trade.
// It is written exactly once, by the final assignment stage of the
// classification pipeline.
type Classification string

const (
	Unclassified Classification = ""
	Block        Classification = "BLOCK"
	Sweep        Classification = "SWEEP"
	MultiLeg     Classification = "MULTI-LEG"
)

// Moneyness of a contract relative to the spot price at trade time
type Moneyness string

const (
	ITM Moneyness = "ITM"
	ATM Moneyness = "ATM"
	OTM Moneyness = "OTM"
)

// MultiExchangeMarker replaces the exchange name on a trade assembled
// from fills across several exchanges (a sweep).
const MultiExchangeMarker = "MULTIPLE"

// ContractMultiplier is the standard US equity options multiplier.
var ContractMultiplier = decimal.NewFromInt(100)

// Trade is the canonical unit flowing through the classification pipeline.
// One Trade is either a single raw fill or, after sweep merging, an
// aggregate of fills on one contract inside a 5-second window.
type Trade struct {
	ContractSymbol string
	Underlying     string
	Strike         decimal.Decimal
	Expiry         time.Time
	OptionType     OptionType

	Size             int64
	PricePerContract decimal.Decimal
	TotalPremium     decimal.Decimal

	// SpotPrice is the underlying price resolved at the trade's own
	// timestamp, not at scan time.
	SpotPrice decimal.Decimal

	ExchangeCode   int
	ExchangeName   string
	TradeTimestamp int64 // milliseconds since epoch, derived from the SIP nanosecond timestamp
	Conditions     []int

	Moneyness    Moneyness
	DaysToExpiry int

	Classification   Classification
	GroupID          string
	RelatedContracts []string
}

// Premium computes price x size x 100
func Premium(price decimal.Decimal, size int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(size)).Mul(ContractMultiplier)
}

// ComputeMoneyness determines ITM/ATM/OTM for a contract against spot
func ComputeMoneyness(typ OptionType, strike, spot decimal.Decimal) Moneyness {
	if spot.IsZero() {
		return OTM
	}
	cmp := strike.Cmp(spot)
	if cmp == 0 {
		return ATM
	}
	if typ == Call {
		if cmp < 0 {
			return ITM
		}
		return OTM
	}
	if cmp > 0 {
		return ITM
	}
	return OTM
}

// DaysUntil returns whole calendar days from ts (ms) to the expiry date.
// Negative for trades on already-expired contracts (stale data).
func DaysUntil(expiry time.Time, tsMillis int64) int {
	at := time.UnixMilli(tsMillis).UTC()
	atDay := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	expDay := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	return int(expDay.Sub(atDay).Hours() / 24)
}

// MinuteBucket floors a millisecond timestamp to its containing minute
func MinuteBucket(tsMillis int64) int64 {
	return tsMillis - tsMillis%60000
}
