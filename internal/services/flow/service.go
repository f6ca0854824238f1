package flow

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"flowscan/internal/adapters/polygon"
	"flowscan/internal/domain/options"
	"flowscan/internal/metrics"
	"flowscan/internal/services/scanner"
	"flowscan/pkg/errors"
	"flowscan/pkg/logger"
)

// MarketData is the slice of the upstream API the flow service consumes
type MarketData interface {
	OptionsSnapshot(ctx context.Context, underlying string) ([]polygon.SnapshotContract, error)
	Trades(ctx context.Context, contractSymbol string, sinceNanos int64, limit int) ([]polygon.TradeTick, error)
	PrevClose(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// SpotResolver resolves the underlying price at a trade's own timestamp
type SpotResolver interface {
	Resolve(ctx context.Context, symbol string, tsMillis int64) decimal.Decimal
}

// ScanConfig tunes scan pacing and shape
type ScanConfig struct {
	BatchSize       int
	InterBatchDelay time.Duration
	ChainBatchSize  int
	ChainBatchDelay time.Duration

	// ScanDeadline caps a whole scan; on expiry the partial result is
	// returned, never an error. Zero disables the cap.
	ScanDeadline time.Duration

	// LookbackWindow bounds how far back per-contract trade fetches reach
	LookbackWindow time.Duration

	// MaxExpirations bounds synthetic chain construction
	MaxExpirations int
}

// DefaultScanConfig returns the standard pacing
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		BatchSize:       5,
		InterBatchDelay: 150 * time.Millisecond,
		ChainBatchSize:  50,
		ChainBatchDelay: 10 * time.Millisecond,
		ScanDeadline:    5 * time.Minute,
		LookbackWindow:  15 * time.Minute,
		MaxExpirations:  12,
	}
}

// ProgressFunc receives the cumulative re-ranked result after each batch
type ProgressFunc func(trades []*options.Trade, batchIndex, batchCount int, tickersInBatch []string)

// Service ties the batch scanner, trade normalization and the
// classification engine into the public scan operations
type Service struct {
	market   MarketData
	spot     SpotResolver
	engine   *Engine
	batcher  *scanner.Scanner
	cfg      ScanConfig
	log      *logger.Logger
	maxPerC  int
	nowFunc  func() time.Time
}

// NewService creates the flow scan service
func NewService(market MarketData, spot SpotResolver, engine *Engine, cfg ScanConfig) *Service {
	return &Service{
		market:  market,
		spot:    spot,
		engine:  engine,
		batcher: scanner.New(),
		cfg:     cfg,
		log:     logger.Get().With("component", "flow_service"),
		maxPerC: 5000,
		nowFunc: time.Now,
	}
}

// ScanTickers fetches, normalizes and classifies recent options flow
// for a ticker universe, returning the ranked result
func (s *Service) ScanTickers(ctx context.Context, tickers []string) ([]*options.Trade, error) {
	return s.scanTickers(ctx, tickers, nil)
}

// ScanTickersWithProgress is ScanTickers plus a per-batch callback with
// the cumulative, re-ranked result set and batch metadata
func (s *Service) ScanTickersWithProgress(ctx context.Context, tickers []string, progress ProgressFunc) ([]*options.Trade, error) {
	return s.scanTickers(ctx, tickers, progress)
}

func (s *Service) scanTickers(ctx context.Context, tickers []string, progress ProgressFunc) ([]*options.Trade, error) {
	if len(tickers) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no tickers to scan")
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	start := time.Now()

	var onProgress scanner.OnProgress
	if progress != nil {
		onProgress = func(p scanner.Progress) {
			progress(s.engine.Classify(p.Trades), p.BatchIndex, p.BatchCount, p.TickersInBatch)
		}
	}

	raw, results := s.batcher.Scan(ctx, tickers, s.fetchTickerTrades, scanner.Options{
		BatchSize:       s.cfg.BatchSize,
		InterBatchDelay: s.cfg.InterBatchDelay,
		OnProgress:      onProgress,
	})

	classified := s.engine.Classify(raw)
	s.logSummary("tickers", results, raw, classified, time.Since(start))
	metrics.ScanDuration.WithLabelValues("tickers").Observe(time.Since(start).Seconds())

	return classified, nil
}

// ScanChain classifies flow across a synthetic full chain for one
// underlying: a strike grid around spot crossed with the expiration
// calendar, fetched at contract grain in large batches
func (s *Service) ScanChain(ctx context.Context, underlying string) ([]*options.Trade, error) {
	if underlying == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no underlying to scan")
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	start := time.Now()

	spotPrice, err := s.market.PrevClose(ctx, underlying)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve chain center for %s", underlying)
	}

	symbols := s.syntheticChain(underlying, spotPrice)
	s.log.Info("Scanning synthetic chain",
		"underlying", underlying,
		"contracts", len(symbols),
	)

	raw, results := s.batcher.Scan(ctx, symbols, s.fetchContractTrades, scanner.Options{
		BatchSize:       s.cfg.ChainBatchSize,
		InterBatchDelay: s.cfg.ChainBatchDelay,
	})

	classified := s.engine.Classify(raw)
	s.logSummary("chain", results, raw, classified, time.Since(start))
	metrics.ScanDuration.WithLabelValues("chain").Observe(time.Since(start).Seconds())

	return classified, nil
}

// fetchTickerTrades is the per-ticker fetch for universe scans: take the
// provider's snapshot chain, then pull recent prints for every contract
// that traded today
func (s *Service) fetchTickerTrades(ctx context.Context, ticker string) ([]*options.Trade, error) {
	chain, err := s.market.OptionsSnapshot(ctx, ticker)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot %s", ticker)
	}

	sinceNanos := s.nowFunc().Add(-s.cfg.LookbackWindow).UnixNano()

	var trades []*options.Trade
	for _, contract := range chain {
		if contract.Day.Volume == 0 {
			continue
		}

		ticks, err := s.market.Trades(ctx, contract.Details.Ticker, sinceNanos, s.maxPerC)
		if err != nil {
			// One contract's failure never sinks its siblings
			s.log.Debug("Contract trades fetch failed",
				"contract", contract.Details.Ticker, "error", err)
			continue
		}

		trades = append(trades, s.normalizeTicks(ctx, contract.Details.Ticker, ticks)...)
	}

	return trades, nil
}

// fetchContractTrades is the per-symbol fetch for chain scans
func (s *Service) fetchContractTrades(ctx context.Context, contractSymbol string) ([]*options.Trade, error) {
	sinceNanos := s.nowFunc().Add(-s.cfg.LookbackWindow).UnixNano()

	ticks, err := s.market.Trades(ctx, "O:"+contractSymbol, sinceNanos, s.maxPerC)
	if err != nil {
		return nil, err
	}

	return s.normalizeTicks(ctx, contractSymbol, ticks), nil
}

// normalizeTicks enriches raw prints into canonical trades. Ticks with
// undecodable symbols are dropped one by one; the scan continues.
func (s *Service) normalizeTicks(ctx context.Context, contractSymbol string, ticks []polygon.TradeTick) []*options.Trade {
	out := make([]*options.Trade, 0, len(ticks))
	for _, tick := range ticks {
		trade, err := s.normalizeTick(ctx, contractSymbol, tick)
		if err != nil {
			s.log.Debug("Dropping undecodable tick", "contract", contractSymbol, "error", err)
			continue
		}
		out = append(out, trade)
	}
	return out
}

func (s *Service) normalizeTick(ctx context.Context, contractSymbol string, tick polygon.TradeTick) (*options.Trade, error) {
	contract, err := options.ParseSymbol(contractSymbol)
	if err != nil {
		return nil, err
	}

	tsMillis := tick.SipTimestamp / int64(time.Millisecond)
	price := decimal.NewFromFloat(tick.Price)
	spotPrice := s.spot.Resolve(ctx, contract.Underlying, tsMillis)

	return &options.Trade{
		ContractSymbol:   options.FormatSymbol(contract.Underlying, contract.Expiry, contract.OptionType, contract.Strike),
		Underlying:       contract.Underlying,
		Strike:           contract.Strike,
		Expiry:           contract.Expiry,
		OptionType:       contract.OptionType,
		Size:             tick.Size,
		PricePerContract: price,
		TotalPremium:     options.Premium(price, tick.Size),
		SpotPrice:        spotPrice,
		ExchangeCode:     tick.Exchange,
		ExchangeName:     polygon.ExchangeName(tick.Exchange),
		TradeTimestamp:   tsMillis,
		Conditions:       tick.Conditions,
		Moneyness:        options.ComputeMoneyness(contract.OptionType, contract.Strike, spotPrice),
		DaysToExpiry:     options.DaysUntil(contract.Expiry, tsMillis),
	}, nil
}

// syntheticChain builds contract symbols for a strike grid around spot
// crossed with upcoming expirations, both calls and puts
func (s *Service) syntheticChain(underlying string, spotPrice decimal.Decimal) []string {
	expiries := options.Expirations(s.nowFunc(), s.cfg.MaxExpirations, options.DefaultExpirationHorizonDays)
	strikes := strikeGrid(spotPrice)

	symbols := make([]string, 0, len(expiries)*len(strikes)*2)
	for _, exp := range expiries {
		expiry, err := time.Parse("060102", exp)
		if err != nil {
			continue
		}
		for _, strike := range strikes {
			symbols = append(symbols, options.FormatSymbol(underlying, expiry, options.Call, strike))
			symbols = append(symbols, options.FormatSymbol(underlying, expiry, options.Put, strike))
		}
	}
	return symbols
}

// strikeGrid spans roughly +/-20% around spot at a step scaled to the
// price magnitude
func strikeGrid(spotPrice decimal.Decimal) []decimal.Decimal {
	if spotPrice.IsZero() {
		return nil
	}

	var step decimal.Decimal
	switch {
	case spotPrice.LessThan(decimal.NewFromInt(25)):
		step = decimal.RequireFromString("0.5")
	case spotPrice.LessThan(decimal.NewFromInt(100)):
		step = decimal.NewFromInt(1)
	case spotPrice.LessThan(decimal.NewFromInt(250)):
		step = decimal.NewFromInt(5)
	default:
		step = decimal.NewFromInt(10)
	}

	low := spotPrice.Mul(decimal.RequireFromString("0.8")).Div(step).Floor().Mul(step)
	high := spotPrice.Mul(decimal.RequireFromString("1.2"))

	var strikes []decimal.Decimal
	for strike := low; strike.Cmp(high) <= 0; strike = strike.Add(step) {
		if strike.Sign() > 0 {
			strikes = append(strikes, strike)
		}
	}
	return strikes
}

func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ScanDeadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ScanDeadline)
}

// logSummary reports the scan outcome in one line
func (s *Service) logSummary(kind string, results []scanner.TickerResult, raw, classified []*options.Trade, took time.Duration) {
	var ok, empty, failed int
	for _, r := range results {
		switch r.Outcome {
		case scanner.OutcomeOK:
			ok++
		case scanner.OutcomeEmpty:
			empty++
		case scanner.OutcomeFailed:
			failed++
		}
	}

	totalPremium := decimal.Zero
	for _, t := range classified {
		totalPremium = totalPremium.Add(t.TotalPremium)
	}
	premiumFloat, _ := totalPremium.Float64()

	s.log.Info("Scan complete",
		"kind", kind,
		"ok", ok,
		"empty", empty,
		"failed", failed,
		"raw_trades", len(raw),
		"flow_trades", len(classified),
		"total_premium", "$"+humanize.CommafWithDigits(premiumFloat, 0),
		"duration", took,
	)
}
