package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"flowscan/pkg/errors"
)

type Config struct {
	App           AppConfig
	Polygon       PolygonConfig
	Scanner       ScannerConfig
	Classifier    ClassifierConfig
	Metrics       MetricsConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"flowscan"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type PolygonConfig struct {
	APIKey            string        `envconfig:"POLYGON_API_KEY" required:"true"`
	BaseURL           string        `envconfig:"POLYGON_BASE_URL" default:"https://api.polygon.io"`
	RequestTimeout    time.Duration `envconfig:"POLYGON_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries        int           `envconfig:"POLYGON_MAX_RETRIES" default:"3"`
	RequestsPerMinute int           `envconfig:"POLYGON_REQUESTS_PER_MINUTE" default:"300"`
}

type ScannerConfig struct {
	BatchSize       int           `envconfig:"SCANNER_BATCH_SIZE" default:"5"`
	InterBatchDelay time.Duration `envconfig:"SCANNER_INTER_BATCH_DELAY" default:"150ms"`
	ChainBatchSize  int           `envconfig:"SCANNER_CHAIN_BATCH_SIZE" default:"50"`
	ChainBatchDelay time.Duration `envconfig:"SCANNER_CHAIN_BATCH_DELAY" default:"10ms"`
	ScanDeadline    time.Duration `envconfig:"SCANNER_SCAN_DEADLINE" default:"5m"`
	LookbackWindow  time.Duration `envconfig:"SCANNER_LOOKBACK_WINDOW" default:"15m"`
	MaxExpirations  int           `envconfig:"SCANNER_MAX_EXPIRATIONS" default:"12"`
}

type ClassifierConfig struct {
	MinBlockPremium    float64 `envconfig:"CLASSIFIER_MIN_BLOCK_PREMIUM" default:"25000"`
	MinSweepPremium    float64 `envconfig:"CLASSIFIER_MIN_SWEEP_PREMIUM" default:"50000"`
	MinSweepContracts  int64   `envconfig:"CLASSIFIER_MIN_SWEEP_CONTRACTS" default:"100"`
	MinMultiLegPremium float64 `envconfig:"CLASSIFIER_MIN_MULTILEG_PREMIUM" default:"50000"`
	ITMBandPct         float64 `envconfig:"CLASSIFIER_ITM_BAND_PCT" default:"0.05"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9191"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for the background scan workers.
// Defaults balance freshness against upstream API rate limits.
type WorkerConfig struct {
	FlowScanInterval time.Duration `envconfig:"WORKER_FLOW_SCAN_INTERVAL" default:"5m"`
	FlowScanEnabled  bool          `envconfig:"WORKER_FLOW_SCAN_ENABLED" default:"true"`

	// Universe is the default ticker list scanned by the flow worker
	Universe []string `envconfig:"WORKER_FLOW_SCAN_UNIVERSE" default:"SPY,QQQ,AAPL,MSFT,NVDA,TSLA,AMZN,META,AMD,GOOGL"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
