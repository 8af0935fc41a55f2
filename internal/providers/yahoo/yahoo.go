// Package yahoo implements the Yahoo Finance quote provider.
// It wraps the public v8 chart API: the current price is the latest
// daily close and the change is derived from the close before it.
// No API key is required.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/altamarfin/marketd/internal/provider"
	"github.com/altamarfin/marketd/pkg/models"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client fetches quotes from Yahoo Finance.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a Yahoo Finance client with a 30s default timeout.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string { return models.SourceYahoo }

// Fetch retrieves a quote for one symbol from the v8 chart endpoint.
func (c *Client) Fetch(ctx context.Context, symbol string) (models.Quote, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?range=2d&interval=1d", c.baseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Quote{}, &provider.TransientError{Provider: c.Name(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; marketd/1.0)")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Quote{}, &provider.TransientError{Provider: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.Quote{}, &provider.RateLimitError{Provider: c.Name(), Detail: "HTTP 429"}
	}
	if resp.StatusCode >= 400 {
		return models.Quote{}, &provider.TransientError{
			Provider: c.Name(),
			Err:      fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Quote{}, &provider.TransientError{Provider: c.Name(), Err: err}
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return models.Quote{}, &provider.InvalidDataError{Symbol: symbol, Detail: "unparseable JSON"}
	}

	if chart.Chart.Error != nil {
		return models.Quote{}, &provider.InvalidDataError{
			Symbol: symbol,
			Detail: chart.Chart.Error.Description,
		}
	}
	if len(chart.Chart.Result) == 0 {
		return models.Quote{}, &provider.InvalidDataError{Symbol: symbol, Detail: "empty chart result"}
	}

	return c.parseResult(symbol, chart.Chart.Result[0])
}

// parseResult turns a chart result into a quote. The last close is the
// current price; the close before it anchors the change.
func (c *Client) parseResult(symbol string, r chartResult) (models.Quote, error) {
	closes, volumes := r.series()
	if len(closes) == 0 {
		return models.Quote{}, &provider.InvalidDataError{Symbol: symbol, Detail: "no historical data"}
	}

	price := closes[len(closes)-1]
	if price <= 0 {
		return models.Quote{}, &provider.InvalidDataError{
			Symbol: symbol,
			Detail: fmt.Sprintf("non-positive price %.2f", price),
		}
	}

	var change float64
	if len(closes) >= 2 && closes[len(closes)-2] > 0 {
		change = price - closes[len(closes)-2]
	}

	var volume int64
	if len(volumes) > 0 {
		volume = volumes[len(volumes)-1]
	}

	price = provider.RoundPrice(price)
	change = provider.RoundPrice(change)

	q := models.NewQuote(symbol, price, change,
		provider.ChangePercent(price, change),
		provider.FormatVolume(volume),
		c.Name())
	if len(r.Timestamp) > 0 {
		q.LastTradingDay = time.Unix(r.Timestamp[len(r.Timestamp)-1], 0).UTC().Format("2006-01-02")
	}
	return q, nil
}
