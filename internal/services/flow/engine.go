package flow

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flowscan/internal/domain/options"
	"flowscan/internal/metrics"
	"flowscan/pkg/logger"
)

const (
	// sweepWindowMillis is the bucket width for grouping fills of one
	// contract into a sweep
	sweepWindowMillis = 5000

	marketOpenMinute  = 9*60 + 30 // 09:30 ET
	marketCloseMinute = 16 * 60   // 16:00 ET
)

// Config holds the classification thresholds
type Config struct {
	MinBlockPremium    decimal.Decimal
	MinSweepPremium    decimal.Decimal
	MinSweepContracts  int64
	MinMultiLegPremium decimal.Decimal

	// ITMBandPct bounds how deep in-the-money a surviving trade may be,
	// as a fraction of spot
	ITMBandPct decimal.Decimal

	// RankTieBand treats premiums within this distance as equal when
	// ranking, breaking the tie by recency
	RankTieBand decimal.Decimal
}

// DefaultConfig returns the standard institutional-flow thresholds
func DefaultConfig() Config {
	return Config{
		MinBlockPremium:    decimal.NewFromInt(25000),
		MinSweepPremium:    decimal.NewFromInt(50000),
		MinSweepContracts:  100,
		MinMultiLegPremium: decimal.NewFromInt(50000),
		ITMBandPct:         decimal.RequireFromString("0.05"),
		RankTieBand:        decimal.NewFromInt(1000),
	}
}

// Engine classifies one scan's worth of normalized trades into
// BLOCK / SWEEP / MULTI-LEG flow. Each stage is a total function over
// the trade list; only the final ranking stage reorders, and a second
// pass over the engine's own output is a no-op.
type Engine struct {
	cfg     Config
	tiers   []options.Tier
	eastern *time.Location
	log     *logger.Logger
}

// NewEngine creates a classification engine
func NewEngine(cfg Config, tiers []options.Tier) *Engine {
	if len(tiers) == 0 {
		tiers = options.DefaultTiers()
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Engine{
		cfg:     cfg,
		tiers:   tiers,
		eastern: loc,
		log:     logger.Get().With("component", "flow_engine"),
	}
}

// Classify runs the full pipeline and returns the ranked, filtered flow
func (e *Engine) Classify(trades []*options.Trade) []*options.Trade {
	sweepMerged := make(map[*options.Trade]bool)
	multiLeg := make(map[*options.Trade]bool)

	out := e.groupSweeps(trades, sweepMerged)
	out = e.tagMultiLeg(out, multiLeg)
	out = e.filterTiers(out)
	out = e.assignTypes(out, sweepMerged, multiLeg)
	out = e.filterMarketHours(out)
	out = e.filterITMBand(out)
	e.rank(out)

	for _, t := range out {
		metrics.TradesClassified.WithLabelValues(string(t.Classification)).Inc()
	}

	return out
}

// sweepKey groups fills of one contract inside a 5-second window
type sweepKey struct {
	Contract string
	Bucket   int64
}

// groupSweeps merges qualifying same-contract fill bursts into single
// aggregate records. Groups below the volume/premium thresholds pass
// through as their original members.
func (e *Engine) groupSweeps(trades []*options.Trade, merged map[*options.Trade]bool) []*options.Trade {
	groups := make(map[sweepKey][]*options.Trade)
	order := make([]sweepKey, 0, len(trades))

	for _, t := range trades {
		key := sweepKey{
			Contract: t.ContractSymbol,
			Bucket:   t.TradeTimestamp - t.TradeTimestamp%sweepWindowMillis,
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}

	out := make([]*options.Trade, 0, len(trades))
	for _, key := range order {
		members := groups[key]
		if len(members) < 2 {
			out = append(out, members...)
			continue
		}

		var totalSize int64
		totalPremium := decimal.Zero
		for _, m := range members {
			totalSize += m.Size
			totalPremium = totalPremium.Add(m.TotalPremium)
		}

		if totalSize < e.cfg.MinSweepContracts || totalPremium.Cmp(e.cfg.MinSweepPremium) < 0 {
			out = append(out, members...)
			continue
		}

		out = append(out, e.mergeSweep(members, totalSize, totalPremium, merged))
	}

	return out
}

// mergeSweep collapses a qualifying fill group into one aggregate trade
func (e *Engine) mergeSweep(members []*options.Trade, totalSize int64, totalPremium decimal.Decimal, merged map[*options.Trade]bool) *options.Trade {
	agg := *members[0]

	agg.Size = totalSize
	agg.TotalPremium = totalPremium
	// Volume-weighted average price per contract
	agg.PricePerContract = totalPremium.Div(decimal.NewFromInt(totalSize)).Div(options.ContractMultiplier)
	agg.ExchangeName = options.MultiExchangeMarker
	agg.GroupID = groupID(members)

	// The template member may carry a classification from an earlier
	// pass over a partial set. The aggregate is a new record spanning
	// several exchanges; assignment must come from its own group flags.
	agg.Classification = options.Unclassified

	related := make([]string, 0, len(members))
	for _, m := range members {
		related = append(related, m.ContractSymbol)
	}
	agg.RelatedContracts = related

	merged[&agg] = true
	return &agg
}

// legKey groups simultaneous trades on one underlying: the legs of a
// combined strategy print at an identical millisecond
type legKey struct {
	Underlying string
	Timestamp  int64
}

// tagMultiLeg marks groups of simultaneous trades that look like a
// combined strategy (enough premium, and variation across strikes,
// types or expiries)
func (e *Engine) tagMultiLeg(trades []*options.Trade, multiLeg map[*options.Trade]bool) []*options.Trade {
	groups := make(map[legKey][]*options.Trade)
	for _, t := range trades {
		key := legKey{Underlying: t.Underlying, Timestamp: t.TradeTimestamp}
		groups[key] = append(groups[key], t)
	}

	for _, members := range groups {
		if len(members) < 2 {
			continue
		}

		strikes := make(map[string]struct{})
		types := make(map[options.OptionType]struct{})
		expiries := make(map[string]struct{})
		totalPremium := decimal.Zero

		for _, m := range members {
			strikes[m.Strike.String()] = struct{}{}
			types[m.OptionType] = struct{}{}
			expiries[m.Expiry.Format("060102")] = struct{}{}
			totalPremium = totalPremium.Add(m.TotalPremium)
		}

		if totalPremium.Cmp(e.cfg.MinMultiLegPremium) < 0 {
			continue
		}
		if len(strikes) < 2 && len(types) < 2 && len(expiries) < 2 {
			continue
		}

		id := groupID(members)
		related := make([]string, 0, len(members))
		for _, m := range members {
			related = append(related, m.ContractSymbol)
		}

		for _, m := range members {
			multiLeg[m] = true
			m.GroupID = id
			m.RelatedContracts = related
		}
	}

	return trades
}

// filterTiers keeps trades matching at least one institutional tier
func (e *Engine) filterTiers(trades []*options.Trade) []*options.Trade {
	out := trades[:0]
	for _, t := range trades {
		if options.AnyTierMatches(e.tiers, t.PricePerContract, t.Size, t.TotalPremium) {
			out = append(out, t)
		}
	}
	return out
}

// assignTypes writes the final classification exactly once and drops
// everything that earned no type. A classification carried in from a
// previous pass is preserved untouched.
func (e *Engine) assignTypes(trades []*options.Trade, sweepMerged, multiLeg map[*options.Trade]bool) []*options.Trade {
	out := trades[:0]
	for _, t := range trades {
		switch {
		case t.Classification != options.Unclassified:
			// Already classified by an earlier pass; idempotent re-runs
			// must not rewrite or drop it.
		case sweepMerged[t]:
			t.Classification = options.Sweep
		case multiLeg[t]:
			t.Classification = options.MultiLeg
		case t.TotalPremium.Cmp(e.cfg.MinBlockPremium) >= 0 && t.ExchangeName != options.MultiExchangeMarker:
			t.Classification = options.Block
		default:
			continue
		}
		out = append(out, t)
	}
	return out
}

// filterMarketHours keeps trades printed during the regular session,
// [09:30, 16:00] exchange-floor time
func (e *Engine) filterMarketHours(trades []*options.Trade) []*options.Trade {
	out := trades[:0]
	for _, t := range trades {
		local := time.UnixMilli(t.TradeTimestamp).In(e.eastern)
		minute := local.Hour()*60 + local.Minute()
		if minute >= marketOpenMinute && minute <= marketCloseMinute {
			out = append(out, t)
		}
	}
	return out
}

// filterITMBand keeps trades at most 5% in-the-money; out-of-the-money
// depth is unrestricted
func (e *Engine) filterITMBand(trades []*options.Trade) []*options.Trade {
	out := trades[:0]
	for _, t := range trades {
		if t.SpotPrice.IsZero() {
			// No resolved spot, moneyness unknowable; keep the trade
			out = append(out, t)
			continue
		}

		pct := t.Strike.Sub(t.SpotPrice).Div(t.SpotPrice)
		if t.OptionType == options.Call {
			if pct.Cmp(e.cfg.ITMBandPct.Neg()) >= 0 {
				out = append(out, t)
			}
			continue
		}
		if pct.Cmp(e.cfg.ITMBandPct) <= 0 {
			out = append(out, t)
		}
	}
	return out
}

// rank sorts by premium descending, breaking near-ties (within the tie
// band) by recency
func (e *Engine) rank(trades []*options.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if a.TotalPremium.Sub(b.TotalPremium).Abs().Cmp(e.cfg.RankTieBand) <= 0 {
			return a.TradeTimestamp > b.TradeTimestamp
		}
		return a.TotalPremium.Cmp(b.TotalPremium) > 0
	})
}

// groupID reuses an ID the group already carries, otherwise mints one
func groupID(members []*options.Trade) string {
	for _, m := range members {
		if m.GroupID != "" {
			return m.GroupID
		}
	}
	return uuid.NewString()
}
