package flow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowscan/internal/domain/options"
)

var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}

// sessionMillis returns a millisecond timestamp inside the regular
// session on a fixed trading day, aligned down to a 5-second bucket
func sessionMillis(hour, minute int) int64 {
	ts := time.Date(2026, 8, 28, hour, minute, 0, 0, eastern).UnixMilli()
	return ts - ts%5000
}

func tradeAt(symbol string, ts int64, price string, size int64, spot string) *options.Trade {
	contract, err := options.ParseSymbol(symbol)
	if err != nil {
		panic(err)
	}
	p := decimal.RequireFromString(price)
	return &options.Trade{
		ContractSymbol:   symbol,
		Underlying:       contract.Underlying,
		Strike:           contract.Strike,
		Expiry:           contract.Expiry,
		OptionType:       contract.OptionType,
		Size:             size,
		PricePerContract: p,
		TotalPremium:     options.Premium(p, size),
		SpotPrice:        decimal.RequireFromString(spot),
		ExchangeName:     "CBOE",
		TradeTimestamp:   ts,
	}
}

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), nil)
}

func TestGroupSweeps_BelowPremiumThreshold(t *testing.T) {
	e := newTestEngine()
	base := sessionMillis(14, 0)

	// 110 contracts inside 4 seconds, but only $13,200 premium
	trades := []*options.Trade{
		tradeAt("AAPL260918C00150000", base, "1.20", 40, "150"),
		tradeAt("AAPL260918C00150000", base+1500, "1.20", 40, "150"),
		tradeAt("AAPL260918C00150000", base+3900, "1.20", 30, "150"),
	}

	merged := make(map[*options.Trade]bool)
	out := e.groupSweeps(trades, merged)

	assert.Len(t, out, 3, "group below premium threshold must pass through unmerged")
	assert.Empty(t, merged)
}

func TestGroupSweeps_MergesQualifyingGroup(t *testing.T) {
	e := newTestEngine()
	base := sessionMillis(14, 0)

	// Same burst at $5.00/contract: $55,000 across 110 contracts
	trades := []*options.Trade{
		tradeAt("AAPL260918C00150000", base, "5.00", 40, "150"),
		tradeAt("AAPL260918C00150000", base+1500, "5.00", 40, "150"),
		tradeAt("AAPL260918C00150000", base+3900, "5.00", 30, "150"),
	}

	merged := make(map[*options.Trade]bool)
	out := e.groupSweeps(trades, merged)

	require.Len(t, out, 1)
	agg := out[0]

	assert.Equal(t, int64(110), agg.Size)
	assert.True(t, agg.TotalPremium.Equal(decimal.NewFromInt(55000)), "premium %s", agg.TotalPremium)
	assert.True(t, agg.PricePerContract.Equal(decimal.NewFromInt(5)), "vwap %s", agg.PricePerContract)
	assert.Equal(t, options.MultiExchangeMarker, agg.ExchangeName)
	assert.Len(t, agg.RelatedContracts, 3)
	assert.True(t, merged[agg])

	// The template is the first fill
	assert.Equal(t, base, agg.TradeTimestamp)
}

func TestGroupSweeps_SeparateBucketsStayApart(t *testing.T) {
	e := newTestEngine()
	base := sessionMillis(14, 0)

	trades := []*options.Trade{
		tradeAt("AAPL260918C00150000", base, "5.00", 80, "150"),
		tradeAt("AAPL260918C00150000", base+6000, "5.00", 80, "150"), // next bucket
	}

	merged := make(map[*options.Trade]bool)
	out := e.groupSweeps(trades, merged)
	assert.Len(t, out, 2)
	assert.Empty(t, merged)
}

func TestTagMultiLeg_QualifyingPair(t *testing.T) {
	e := newTestEngine()
	ts := sessionMillis(13, 30)

	// Two simultaneous calls, strikes 100/105, $60,000 combined
	legA := tradeAt("AAPL260918C00100000", ts, "5.00", 60, "100")
	legB := tradeAt("AAPL260918C00105000", ts, "5.00", 60, "100")
	trades := []*options.Trade{legA, legB}

	multiLeg := make(map[*options.Trade]bool)
	out := e.tagMultiLeg(trades, multiLeg)

	assert.Len(t, out, 2)
	assert.True(t, multiLeg[legA])
	assert.True(t, multiLeg[legB])

	assert.ElementsMatch(t, []string{legA.ContractSymbol, legB.ContractSymbol}, legA.RelatedContracts)
	assert.ElementsMatch(t, []string{legA.ContractSymbol, legB.ContractSymbol}, legB.RelatedContracts)
	assert.NotEmpty(t, legA.GroupID)
	assert.Equal(t, legA.GroupID, legB.GroupID)
}

func TestTagMultiLeg_BelowPremiumStaysUntagged(t *testing.T) {
	e := newTestEngine()
	ts := sessionMillis(13, 30)

	// Same shape, $30,000 combined: not enough premium
	legA := tradeAt("AAPL260918C00100000", ts, "2.50", 60, "100")
	legB := tradeAt("AAPL260918C00105000", ts, "2.50", 60, "100")

	multiLeg := make(map[*options.Trade]bool)
	e.tagMultiLeg([]*options.Trade{legA, legB}, multiLeg)

	assert.Empty(t, multiLeg)
	assert.Empty(t, legA.GroupID)
}

func TestTagMultiLeg_NeedsVariationAcrossLegs(t *testing.T) {
	e := newTestEngine()
	ts := sessionMillis(13, 30)

	// Identical strike, type and expiry: premium alone is not a strategy
	legA := tradeAt("AAPL260918C00100000", ts, "5.00", 60, "100")
	legB := tradeAt("AAPL260918C00100000", ts, "5.00", 80, "100")

	multiLeg := make(map[*options.Trade]bool)
	e.tagMultiLeg([]*options.Trade{legA, legB}, multiLeg)

	assert.Empty(t, multiLeg)
}

func TestFilterMarketHours(t *testing.T) {
	e := newTestEngine()

	at := func(hour, minute int) int64 {
		return time.Date(2026, 8, 28, hour, minute, 0, 0, eastern).UnixMilli()
	}

	tests := []struct {
		name string
		ts   int64
		keep bool
	}{
		{"pre-market", at(8, 0), false},
		{"one minute early", at(9, 29), false},
		{"the open", at(9, 30), true},
		{"midday", at(12, 0), true},
		{"the close", at(16, 0), true},
		{"after hours", at(16, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := tradeAt("SPY260918C00480000", tt.ts, "8.50", 85, "480")
			out := e.filterMarketHours([]*options.Trade{trade})
			if tt.keep {
				assert.Len(t, out, 1)
			} else {
				assert.Empty(t, out)
			}
		})
	}
}

func TestFilterITMBand(t *testing.T) {
	e := newTestEngine()
	ts := sessionMillis(11, 0)

	tests := []struct {
		name   string
		symbol string
		keep   bool
	}{
		{"call 4.5% ITM", "XYZ260918C00095500", true},
		{"call 5.1% ITM", "XYZ260918C00094900", false},
		{"put 4.9% ITM", "XYZ260918P00104900", true},
		{"put 5.1% ITM", "XYZ260918P00105100", false},
		{"deep OTM call", "XYZ260918C00140000", true},
		{"deep OTM put", "XYZ260918P00060000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := tradeAt(tt.symbol, ts, "8.50", 85, "100")
			out := e.filterITMBand([]*options.Trade{trade})
			if tt.keep {
				assert.Len(t, out, 1)
			} else {
				assert.Empty(t, out)
			}
		})
	}
}

func TestFilterITMBand_UnresolvedSpotKept(t *testing.T) {
	e := newTestEngine()
	trade := tradeAt("XYZ260918C00095000", sessionMillis(11, 0), "8.50", 85, "0")

	out := e.filterITMBand([]*options.Trade{trade})
	assert.Len(t, out, 1)
}

func TestRank_PremiumDescWithRecencyTieBreak(t *testing.T) {
	e := newTestEngine()
	base := sessionMillis(14, 0)

	big := tradeAt("AAA260918C00100000", base, "10.00", 100, "100")      // $100,000
	nearTie := tradeAt("BBB260918C00100000", base+9000, "9.95", 100, "100") // $99,500, more recent
	small := tradeAt("CCC260918C00100000", base+3000, "3.00", 100, "100")   // $30,000

	trades := []*options.Trade{small, big, nearTie}
	e.rank(trades)

	// $99,500 is within the $1000 tie band of $100,000, so recency wins
	assert.Equal(t, "BBB260918C00100000", trades[0].ContractSymbol)
	assert.Equal(t, "AAA260918C00100000", trades[1].ContractSymbol)
	assert.Equal(t, "CCC260918C00100000", trades[2].ContractSymbol)
}

func TestClassify_EndToEnd(t *testing.T) {
	e := newTestEngine()
	sweepTS := sessionMillis(14, 0)
	legTS := sessionMillis(13, 0)
	blockTS := sessionMillis(12, 0)

	trades := []*options.Trade{
		// Sweep burst: 110 contracts, $55,000 inside one bucket
		tradeAt("AAPL260918C00150000", sweepTS, "5.00", 40, "150"),
		tradeAt("AAPL260918C00150000", sweepTS+1500, "5.00", 40, "150"),
		tradeAt("AAPL260918C00150000", sweepTS+3900, "5.00", 30, "150"),
		// Single large print: $72,250 on one exchange
		tradeAt("MSFT260918C00300000", blockTS, "8.50", 85, "300"),
		// Two simultaneous legs: $150,000 combined
		tradeAt("NVDA260918C00180000", legTS, "5.00", 150, "180"),
		tradeAt("NVDA260918C00185000", legTS, "5.00", 150, "180"),
		// Noise: institutional by no tier
		tradeAt("TSLA260918C00250000", blockTS+5000, "1.50", 10, "250"),
	}

	out := e.Classify(trades)
	require.Len(t, out, 4)

	byClass := map[options.Classification]int{}
	for _, trade := range out {
		byClass[trade.Classification]++
	}
	assert.Equal(t, 1, byClass[options.Sweep])
	assert.Equal(t, 1, byClass[options.Block])
	assert.Equal(t, 2, byClass[options.MultiLeg])

	// Ranked: the two $75,000 legs, then the $72,250 block, then the sweep
	assert.Equal(t, options.MultiLeg, out[0].Classification)
	assert.Equal(t, options.MultiLeg, out[1].Classification)
	assert.Equal(t, options.Block, out[2].Classification)
	assert.Equal(t, options.Sweep, out[3].Classification)
}

func TestClassify_SupersetPromotesBlockIntoSweep(t *testing.T) {
	e := newTestEngine()
	base := sessionMillis(14, 0)

	// First pass sees only the first fill: a $52,500 single-exchange print
	first := tradeAt("AAPL260918C00150000", base, "5.00", 105, "150")
	out := e.Classify([]*options.Trade{first})
	require.Len(t, out, 1)
	require.Equal(t, options.Block, out[0].Classification)

	// The next pass sees the cumulative set: a second fill lands in the
	// same 5-second bucket and the pair now qualifies as a sweep
	second := tradeAt("AAPL260918C00150000", base+2000, "5.00", 105, "150")
	out = e.Classify([]*options.Trade{first, second})

	require.Len(t, out, 1)
	agg := out[0]
	assert.Equal(t, options.Sweep, agg.Classification)
	assert.Equal(t, options.MultiExchangeMarker, agg.ExchangeName)
	assert.Equal(t, int64(210), agg.Size)
	assert.True(t, agg.TotalPremium.Equal(decimal.NewFromInt(105000)), "premium %s", agg.TotalPremium)
}

func TestClassify_Idempotent(t *testing.T) {
	e := newTestEngine()
	sweepTS := sessionMillis(14, 0)
	legTS := sessionMillis(13, 0)

	trades := []*options.Trade{
		tradeAt("AAPL260918C00150000", sweepTS, "5.00", 40, "150"),
		tradeAt("AAPL260918C00150000", sweepTS+1500, "5.00", 40, "150"),
		tradeAt("AAPL260918C00150000", sweepTS+3900, "5.00", 30, "150"),
		tradeAt("MSFT260918C00300000", sweepTS+10_000, "8.50", 85, "300"),
		tradeAt("NVDA260918C00180000", legTS, "5.00", 150, "180"),
		tradeAt("NVDA260918C00185000", legTS, "5.00", 150, "180"),
	}

	first := e.Classify(trades)

	type snapshot struct {
		symbol   string
		class    options.Classification
		size     int64
		premium  string
		groupID  string
		exchange string
	}
	want := make([]snapshot, 0, len(first))
	for _, trade := range first {
		want = append(want, snapshot{
			symbol:   trade.ContractSymbol,
			class:    trade.Classification,
			size:     trade.Size,
			premium:  trade.TotalPremium.String(),
			groupID:  trade.GroupID,
			exchange: trade.ExchangeName,
		})
	}

	second := e.Classify(first)
	require.Len(t, second, len(first))

	for i, trade := range second {
		assert.Equal(t, want[i].symbol, trade.ContractSymbol)
		assert.Equal(t, want[i].class, trade.Classification)
		assert.Equal(t, want[i].size, trade.Size)
		assert.Equal(t, want[i].premium, trade.TotalPremium.String())
		assert.Equal(t, want[i].groupID, trade.GroupID)
		assert.Equal(t, want[i].exchange, trade.ExchangeName)
	}
}
