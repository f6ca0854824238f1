package spot

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"flowscan/internal/adapters/polygon"
	"flowscan/internal/domain/options"
	"flowscan/pkg/logger"
)

// BarSource supplies the aggregates used to resolve historical prices
type BarSource interface {
	MinuteBars(ctx context.Context, symbol, date string) ([]polygon.Bar, error)
	PrevClose(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Resolver answers "what did the underlying trade at, at this instant".
// Lookups are memoized per (symbol, minute) in a bounded cache; on a
// miss one day of minute bars is fetched and the closest bar's close is
// taken. The resolver never fails hard, it only degrades precision down
// to the most recent daily close.
type Resolver struct {
	source BarSource
	cache  *Cache
	log    *logger.Logger

	// eastern pins bar-date selection to the trading calendar
	eastern *time.Location
}

// NewResolver creates a historical spot price resolver
func NewResolver(source BarSource) *Resolver {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Resolver{
		source:  source,
		cache:   NewCache(DefaultSoftCap, DefaultEvictBatch),
		log:     logger.Get().With("component", "spot_resolver"),
		eastern: loc,
	}
}

// Resolve returns the best-known price of symbol at tsMillis
func (r *Resolver) Resolve(ctx context.Context, symbol string, tsMillis int64) decimal.Decimal {
	bucket := options.MinuteBucket(tsMillis)

	if price, ok := r.cache.Get(symbol, bucket); ok {
		return price
	}

	tradeDate := time.UnixMilli(tsMillis).In(r.eastern).Format("2006-01-02")

	bars, err := r.source.MinuteBars(ctx, symbol, tradeDate)
	if err != nil || len(bars) == 0 {
		if err != nil {
			r.log.Debug("Minute bars unavailable, degrading to prev close",
				"symbol", symbol, "date", tradeDate, "error", err)
		}
		return r.fallback(ctx, symbol, bucket)
	}

	price := closestBarClose(bars, tsMillis)
	if price.IsZero() {
		return r.fallback(ctx, symbol, bucket)
	}

	r.cache.Put(symbol, bucket, price)
	return price
}

// Cache exposes the underlying cache, mainly for tests and stats
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// fallback resolves via the most recent daily close
func (r *Resolver) fallback(ctx context.Context, symbol string, bucket int64) decimal.Decimal {
	price, err := r.source.PrevClose(ctx, symbol)
	if err != nil {
		r.log.Warn("Spot resolution degraded to zero", "symbol", symbol, "error", err)
		return decimal.Zero
	}
	r.cache.Put(symbol, bucket, price)
	return price
}

// closestBarClose picks the close of the bar whose open timestamp is
// nearest to tsMillis
func closestBarClose(bars []polygon.Bar, tsMillis int64) decimal.Decimal {
	best := bars[0]
	bestDiff := absInt64(bars[0].Timestamp - tsMillis)

	for _, bar := range bars[1:] {
		diff := absInt64(bar.Timestamp - tsMillis)
		if diff < bestDiff {
			best = bar
			bestDiff = diff
		}
	}

	return decimal.NewFromFloat(best.Close)
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
