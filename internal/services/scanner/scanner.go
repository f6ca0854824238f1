package scanner

import (
	"context"
	"sync"
	"time"

	"flowscan/internal/domain/options"
	"flowscan/internal/metrics"
	"flowscan/pkg/logger"
)

// Outcome describes how one ticker's fetch ended. Empty and failed are
// distinct so the aggregate logs can tell "no activity" from "upstream
// broke" without either aborting the scan.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeEmpty  Outcome = "empty"
	OutcomeFailed Outcome = "failed"
)

// TickerResult carries one ticker's contribution to a scan
type TickerResult struct {
	Ticker  string
	Trades  []*options.Trade
	Outcome Outcome
	Err     error
}

// PerTickerFetch retrieves and normalizes all trades for one ticker
type PerTickerFetch func(ctx context.Context, ticker string) ([]*options.Trade, error)

// Progress is delivered to the caller after every settled batch
type Progress struct {
	BatchIndex     int // 1-based
	BatchCount     int
	TickersInBatch []string
	// Trades is the cumulative, ticker-ordered accumulation so far
	Trades []*options.Trade
}

// OnProgress receives incremental scan results
type OnProgress func(Progress)

// Options tune one scan invocation. The defaults fit multi-ticker
// scans; full-chain scans use a larger batch at a near-zero delay.
type Options struct {
	BatchSize       int
	InterBatchDelay time.Duration
	OnProgress      OnProgress
}

func (o *Options) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.InterBatchDelay <= 0 {
		o.InterBatchDelay = 150 * time.Millisecond
	}
}

// Scanner partitions a ticker universe into sequential batches and runs
// each batch's fetches concurrently. Batches are strictly sequential to
// bound the upstream request rate; members of one batch run with no
// ordering guarantee among themselves.
type Scanner struct {
	log *logger.Logger
}

// New creates a batch scanner
func New() *Scanner {
	return &Scanner{log: logger.Get().With("component", "scanner")}
}

// Scan fetches every ticker and returns the accumulated trades in
// ticker order. Per-ticker failures degrade to empty contributions.
// When ctx expires mid-scan, no further batches are issued and the
// partial accumulation is returned, not an error.
func (s *Scanner) Scan(ctx context.Context, tickers []string, fetch PerTickerFetch, opts Options) ([]*options.Trade, []TickerResult) {
	opts.defaults()

	batches := partition(tickers, opts.BatchSize)
	accumulated := make([]*options.Trade, 0)
	results := make([]TickerResult, 0, len(tickers))

	for i, batch := range batches {
		if ctx.Err() != nil {
			s.log.Warn("Scan deadline reached, returning partial results",
				"completed_batches", i, "total_batches", len(batches))
			break
		}

		batchResults := s.runBatch(ctx, batch, fetch)
		for _, res := range batchResults {
			results = append(results, res)
			accumulated = append(accumulated, res.Trades...)
			metrics.TickerOutcomes.WithLabelValues(string(res.Outcome)).Inc()
		}

		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				BatchIndex:     i + 1,
				BatchCount:     len(batches),
				TickersInBatch: batch,
				Trades:         accumulated,
			})
		}

		// Breathe between batches to respect upstream rate limits
		if i < len(batches)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.InterBatchDelay):
			}
		}
	}

	return accumulated, results
}

// runBatch executes one batch's fetches concurrently, fault-isolated
// per member, and settles before returning
func (s *Scanner) runBatch(ctx context.Context, batch []string, fetch PerTickerFetch) []TickerResult {
	results := make([]TickerResult, len(batch))

	var wg sync.WaitGroup
	for i, ticker := range batch {
		wg.Add(1)
		go func(idx int, tkr string) {
			defer wg.Done()

			trades, err := fetch(ctx, tkr)
			switch {
			case err != nil:
				s.log.Warn("Ticker fetch failed, degrading to empty",
					"ticker", tkr, "error", err)
				results[idx] = TickerResult{Ticker: tkr, Outcome: OutcomeFailed, Err: err}
			case len(trades) == 0:
				results[idx] = TickerResult{Ticker: tkr, Outcome: OutcomeEmpty}
			default:
				results[idx] = TickerResult{Ticker: tkr, Trades: trades, Outcome: OutcomeOK}
			}
		}(i, ticker)
	}
	wg.Wait()

	return results
}

// partition splits tickers into ordered batches of size n
func partition(tickers []string, n int) [][]string {
	var batches [][]string
	for start := 0; start < len(tickers); start += n {
		end := start + n
		if end > len(tickers) {
			end = len(tickers)
		}
		batches = append(batches, tickers[start:end])
	}
	return batches
}
