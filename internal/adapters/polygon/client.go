package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"flowscan/internal/adapters/polygon/ratelimit"
	"flowscan/internal/adapters/polygon/retry"
	"flowscan/internal/metrics"
	"flowscan/pkg/errors"
	"flowscan/pkg/logger"
)

const (
	defaultBaseURL = "https://api.polygon.io"
	defaultTimeout = 30 * time.Second
)

// Config configures the Polygon client
type Config struct {
	APIKey            string
	BaseURL           string
	RequestTimeout    time.Duration
	MaxRetries        int
	RequestsPerMinute int

	HTTPClient *http.Client
}

// Client is a rate-limited, retrying client for the Polygon REST API.
// Every call is capped by a per-attempt deadline; failed attempts back
// off exponentially and the last error is surfaced to the caller.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	retry   *retry.Middleware
	log     *logger.Logger
}

// NewClient constructs a Polygon client
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "polygon api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 300
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &Client{
		cfg:     cfg,
		http:    cfg.HTTPClient,
		limiter: ratelimit.NewLimiter("polygon", cfg.RequestsPerMinute),
		retry: retry.New(retry.Config{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: 1 * time.Second,
			Multiplier:   2.0,
		}),
		log: logger.Get().With("component", "polygon"),
	}, nil
}

// Trades returns raw trade prints for one contract since a nanosecond timestamp
func (c *Client) Trades(ctx context.Context, contractSymbol string, sinceNanos int64, limit int) ([]TradeTick, error) {
	params := url.Values{
		"timestamp.gte": []string{strconv.FormatInt(sinceNanos, 10)},
		"order":         []string{"asc"},
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var res tradesResponse
	if err := c.get(ctx, "/v3/trades/"+contractSymbol, params, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Contracts returns the listed contracts for an underlying ticker
func (c *Client) Contracts(ctx context.Context, underlying string) ([]ContractDetails, error) {
	params := url.Values{
		"underlying_ticker": []string{underlying},
		"limit":             []string{"1000"},
	}

	var res contractsResponse
	if err := c.get(ctx, "/v3/reference/options/contracts", params, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// OptionsSnapshot returns the per-contract snapshot chain for a ticker
func (c *Client) OptionsSnapshot(ctx context.Context, underlying string) ([]SnapshotContract, error) {
	params := url.Values{
		"limit": []string{"250"},
	}

	var res snapshotResponse
	if err := c.get(ctx, "/v3/snapshot/options/"+underlying, params, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// PrevClose returns the most recent daily close for a symbol
func (c *Client) PrevClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var res aggsResponse
	if err := c.get(ctx, fmt.Sprintf("/v2/aggs/ticker/%s/prev", symbol), nil, &res); err != nil {
		return decimal.Zero, err
	}
	if len(res.Results) == 0 {
		return decimal.Zero, errors.Wrapf(errors.ErrParse, "no prev close for %s", symbol)
	}
	return decimal.NewFromFloat(res.Results[0].Close), nil
}

// MinuteBars returns one calendar day of minute-resolution bars for a symbol.
// date is formatted YYYY-MM-DD.
func (c *Client) MinuteBars(ctx context.Context, symbol, date string) ([]Bar, error) {
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/minute/%s/%s", symbol, date, date)
	params := url.Values{
		"limit": []string{"5000"},
		"sort":  []string{"asc"},
	}

	var res aggsResponse
	if err := c.get(ctx, path, params, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// get performs one rate-limited, retried GET and decodes the JSON body into out
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.cfg.APIKey)
	fullURL := c.cfg.BaseURL + path + "?" + params.Encode()

	start := time.Now()
	err := c.retry.Do(ctx, func() error {
		return c.attempt(ctx, fullURL, path, out)
	})

	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, errors.ErrRateLimited) {
			status = "rate_limited"
		}
	}
	metrics.UpstreamAPICalls.WithLabelValues(path, status).Inc()
	metrics.UpstreamAPILatency.WithLabelValues(path).Observe(time.Since(start).Seconds())

	return err
}

// attempt performs a single GET with its own deadline
func (c *Client) attempt(ctx context.Context, fullURL, path string, out interface{}) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A timed-out or cancelled attempt must not be retried; keep the
		// context error distinguishable from a transport failure.
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.Wrapf(errors.ErrTimeout, "%s: %v", path, err)
		}
		if errors.Is(err, context.Canceled) {
			return errors.Wrap(err, path)
		}
		return errors.Wrapf(errors.ErrTransport, "%s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.log.Warn("Upstream rate limit reached", "path", path)
		return errors.Wrapf(errors.ErrRateLimited, "%s", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.NewStatusError(resp.StatusCode, path, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(errors.ErrParse, "%s: %v", path, err)
	}

	return nil
}
