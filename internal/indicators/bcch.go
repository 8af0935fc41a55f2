package indicators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/altamarfin/marketd/internal/provider"
)

// SieteClient talks to the Banco Central de Chile "Siete" series REST API.
type SieteClient struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
}

// NewSieteClient creates a client for the given endpoint. Credentials are
// passed as query parameters per the bank's API contract.
func NewSieteClient(baseURL, user, password string) *SieteClient {
	return &SieteClient{
		baseURL:  baseURL,
		user:     user,
		password: password,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// sieteResponse mirrors the GetSeries payload. Codigo is non-zero on
// API-level errors (bad credentials, unknown series).
type sieteResponse struct {
	Codigo      int    `json:"Codigo"`
	Descripcion string `json:"Descripcion"`
	Series      struct {
		DescripEsp string `json:"descripEsp"`
		Obs        []struct {
			IndexDateString string `json:"indexDateString"`
			Value           string `json:"value"`
			StatusCode      string `json:"statusCode"`
		} `json:"Obs"`
	} `json:"Series"`
}

// observation is one dated series value.
type observation struct {
	Value float64
	Date  string // YYYY-MM-DD
}

// Latest fetches the most recent valid observation of a series within the
// trailing window. The API pads gaps with "NaN" values flagged ND; those
// are skipped.
func (c *SieteClient) Latest(ctx context.Context, seriesID string) (observation, error) {
	now := time.Now()
	q := url.Values{}
	q.Set("user", c.user)
	q.Set("pass", c.password)
	q.Set("function", "GetSeries")
	q.Set("timeseries", seriesID)
	q.Set("firstdate", now.AddDate(0, -3, 0).Format("2006-01-02"))
	q.Set("lastdate", now.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return observation{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return observation{}, &provider.TransientError{Provider: "banco_central", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return observation{}, &provider.RateLimitError{Provider: "banco_central", Detail: resp.Status}
	}
	if resp.StatusCode >= 400 {
		return observation{}, &provider.TransientError{
			Provider: "banco_central",
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var body sieteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return observation{}, &provider.InvalidDataError{Symbol: seriesID, Detail: "malformed response: " + err.Error()}
	}
	if body.Codigo != 0 {
		return observation{}, &provider.InvalidDataError{Symbol: seriesID, Detail: body.Descripcion}
	}

	for i := len(body.Series.Obs) - 1; i >= 0; i-- {
		obs := body.Series.Obs[i]
		if obs.StatusCode != "OK" {
			continue
		}
		var v float64
		if _, err := fmt.Sscanf(obs.Value, "%f", &v); err != nil {
			continue
		}
		return observation{Value: v, Date: normalizeDate(obs.IndexDateString)}, nil
	}
	return observation{}, &provider.InvalidDataError{Symbol: seriesID, Detail: "no valid observations in window"}
}

// normalizeDate converts the API's dd-MM-yyyy dates to yyyy-MM-dd,
// passing through anything it can't parse.
func normalizeDate(s string) string {
	t, err := time.Parse("02-01-2006", s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}
