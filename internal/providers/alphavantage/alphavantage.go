// Package alphavantage implements the Alpha Vantage quote provider
// (GLOBAL_QUOTE function). The free tier is heavily throttled; Alpha
// Vantage signals the limit with an HTTP 200 carrying a "Note" or
// "Information" field instead of data, which this client classifies as
// rate-limited.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/altamarfin/marketd/internal/provider"
	"github.com/altamarfin/marketd/pkg/models"
)

const defaultBaseURL = "https://www.alphavantage.co"

// Client fetches quotes from Alpha Vantage. A non-empty API key is
// required; construction without one is a caller bug, so the serve path
// feature-detects the key before building the client.
type Client struct {
	apiKey  string
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

// New creates an Alpha Vantage client with a 10s default timeout.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string { return models.SourceAlphaVantage }

// globalQuote mirrors the GLOBAL_QUOTE payload. Alpha Vantage keys every
// field with a positional prefix and encodes numbers as strings.
type globalQuote struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		LatestDay     string `json:"07. latest trading day"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

// Fetch retrieves a quote for one symbol.
func (c *Client) Fetch(ctx context.Context, symbol string) (models.Quote, error) {
	url := fmt.Sprintf("%s/query?function=GLOBAL_QUOTE&symbol=%s&apikey=%s",
		c.baseURL, symbol, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Quote{}, &provider.TransientError{Provider: c.Name(), Err: err}
	}

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

	var payload globalQuote
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Quote{}, &provider.InvalidDataError{Symbol: symbol, Detail: "unparseable JSON"}
	}

	// Throttle markers come back as HTTP 200 with an explanatory field.
	if payload.Note != "" {
		return models.Quote{}, &provider.RateLimitError{Provider: c.Name(), Detail: payload.Note}
	}
	if payload.Information != "" {
		return models.Quote{}, &provider.RateLimitError{Provider: c.Name(), Detail: payload.Information}
	}

	g := payload.GlobalQuote
	if g.Price == "" {
		return models.Quote{}, &provider.InvalidDataError{Symbol: symbol, Detail: "missing Global Quote"}
	}

	price, err := strconv.ParseFloat(g.Price, 64)
	if err != nil || price <= 0 {
		return models.Quote{}, &provider.InvalidDataError{
			Symbol: symbol,
			Detail: fmt.Sprintf("invalid price %q", g.Price),
		}
	}
	change, _ := strconv.ParseFloat(g.Change, 64)

	price = provider.RoundPrice(price)
	change = provider.RoundPrice(change)

	changePct := provider.ChangePercent(price, change)
	if raw := strings.TrimSuffix(g.ChangePercent, "%"); raw != "" {
		if pct, err := strconv.ParseFloat(raw, 64); err == nil {
			changePct = fmt.Sprintf("%.2f", pct)
		}
	}

	var volume int64
	if g.Volume != "" {
		volume, _ = strconv.ParseInt(g.Volume, 10, 64)
	}

	q := models.NewQuote(symbol, price, change, changePct,
		provider.FormatVolume(volume), c.Name())
	q.LastTradingDay = g.LatestDay
	return q, nil
}
