// Package models defines the wire-level data structures shared between
// the quote services, the provider clients and the HTTP API.
package models

import "time"

// Quote source tags.
const (
	SourceYahoo        = "yahoo_finance"
	SourceAlphaVantage = "alpha_vantage"
	SourceFallback     = "fallback"
)

// VolumeUnavailable is the sentinel used when a provider reports no volume.
const VolumeUnavailable = "N/A"

// Quote is a point-in-time price observation for a ticker symbol.
//
// A Quote is either a success tuple (price, change, change_percent, volume,
// source) or a failure tuple (error); the two never mix. Use NewQuote and
// FailedQuote to keep that invariant.
type Quote struct {
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name,omitempty"` // indices only
	Price          float64 `json:"price,omitempty"`
	Change         float64 `json:"change,omitempty"`
	ChangePercent  string  `json:"change_percent,omitempty"`
	Volume         string  `json:"volume,omitempty"`
	LastTradingDay string  `json:"last_trading_day,omitempty"`
	Source         string  `json:"source,omitempty"`
	ObservedAt     int64   `json:"observed_at"`
	Success        bool    `json:"success"`
	Error          string  `json:"error,omitempty"`
}

// NewQuote builds a success-shaped quote observed now.
func NewQuote(symbol string, price, change float64, changePct, volume, source string) Quote {
	return Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		Volume:        volume,
		Source:        source,
		ObservedAt:    time.Now().Unix(),
		Success:       true,
	}
}

// FailedQuote builds a failure-shaped quote observed now.
func FailedQuote(symbol, errMsg string) Quote {
	return Quote{
		Symbol:     symbol,
		Error:      errMsg,
		ObservedAt: time.Now().Unix(),
		Success:    false,
	}
}

// Age returns how long ago the quote was observed.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(q.ObservedAt, 0))
}

// Fresh reports whether the quote is younger than ttl at the given instant.
func (q Quote) Fresh(now time.Time, ttl time.Duration) bool {
	return q.Age(now) < ttl
}

// BatchResult is the aggregate answer for a multi-symbol lookup.
type BatchResult struct {
	Quotes    []Quote  `json:"quotes"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Requested []string `json:"requested_symbols"`
	Source    string   `json:"source,omitempty"`
}

// ServiceStatus is the health snapshot of one quote service family.
type ServiceStatus struct {
	Service         string    `json:"service"`
	AutoUpdate      bool      `json:"auto_update"`
	IntervalMinutes int       `json:"interval_minutes"`
	LastPoll        time.Time `json:"last_poll,omitzero"`
	Updating        bool      `json:"updating_now"`
	Symbols         []string  `json:"monitored_symbols"`
	RateLimited     bool      `json:"rate_limited"`
	RateLimitUntil  time.Time `json:"rate_limit_until,omitzero"`
	CacheTTLSeconds int       `json:"cache_ttl_seconds"`
}
