package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Upstream API metrics
	UpstreamAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowscan_upstream_api_calls_total",
			Help: "Total number of market-data API calls",
		},
		[]string{"endpoint", "status"}, // status: success|error|rate_limited
	)

	UpstreamAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowscan_upstream_api_latency_seconds",
			Help:    "Market-data API latency in seconds, including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// Spot price cache metrics
	SpotCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowscan_spot_cache_lookups_total",
			Help: "Spot price cache lookups",
		},
		[]string{"result"}, // result: hit|miss
	)

	SpotCacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowscan_spot_cache_evictions_total",
			Help: "Entries evicted from the spot price cache",
		},
	)

	SpotCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowscan_spot_cache_entries",
			Help: "Current number of resident spot price cache entries",
		},
	)

	// Scan metrics
	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowscan_scan_duration_seconds",
			Help:    "Full scan duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"}, // kind: tickers|chain
	)

	TickerOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowscan_ticker_outcomes_total",
			Help: "Per-ticker scan outcomes",
		},
		[]string{"outcome"}, // outcome: ok|empty|failed
	)

	TradesClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowscan_trades_classified_total",
			Help: "Trades surviving classification, by assigned type",
		},
		[]string{"type"}, // type: BLOCK|SWEEP|MULTI-LEG
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowscan_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowscan_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowscan_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)
)

// Register registers all collectors with the default registry
func Register() {
	prometheus.MustRegister(
		UpstreamAPICalls,
		UpstreamAPILatency,
		SpotCacheLookups,
		SpotCacheEvictions,
		SpotCacheSize,
		ScanDuration,
		TickerOutcomes,
		TradesClassified,
		WorkerExecutions,
		WorkerDuration,
		WorkerLastRun,
	)
}

// Serve exposes /metrics on addr. Blocks until the server exits.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
