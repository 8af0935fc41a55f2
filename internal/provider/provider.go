// Package provider defines the contract for upstream quote data sources
// and the error taxonomy the quote services use to classify failures.
//
// A Client performs a single outbound call for a single symbol. Errors
// never escape as panics; they are returned typed so the caller can tell
// a throttled provider (engage cool-down) from bad data (skip symbol)
// from a transient network fault (retry on the next scheduled pass).
package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/altamarfin/marketd/pkg/models"
)

// Client is a single upstream quote source.
type Client interface {
	// Name identifies the provider, e.g. "yahoo_finance".
	Name() string

	// Fetch retrieves a quote for one symbol. On success the returned
	// quote is success-shaped with price/change rounded to 2 decimals.
	// On failure the error is one of the types below; the quote value
	// is meaningless.
	Fetch(ctx context.Context, symbol string) (models.Quote, error)
}

// ErrAllProvidersExhausted is returned by batch lookups in real-data-only
// mode when every provider failed for every symbol.
var ErrAllProvidersExhausted = errors.New("all providers exhausted, no data available")

// RateLimitError indicates the provider is throttling us. The caller
// should place the provider in cool-down rather than retry.
type RateLimitError struct {
	Provider string
	Detail   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider %q rate limited: %s", e.Provider, e.Detail)
}

// InvalidDataError indicates the provider answered but the payload was
// malformed, missing fields, or carried a non-positive price.
type InvalidDataError struct {
	Symbol string
	Detail string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid data for %q: %s", e.Symbol, e.Detail)
}

// TransientError wraps network and timeout failures. The next scheduled
// poll or on-demand call is the retry; nothing retries inline.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("provider %q transient failure: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// rate-limit phrases seen in upstream error bodies and client exceptions.
var rateLimitMarkers = []string{
	"too many requests",
	"rate limit",
	"429",
}

// IsRateLimited reports whether err should engage a provider cool-down.
// Typed RateLimitErrors match directly; anything else falls back to a
// textual scan, since some upstream libraries only surface throttling as
// message text.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RoundPrice rounds a price or delta to 2 decimal places.
func RoundPrice(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatVolume renders a share volume with thousands separators, or the
// "N/A" sentinel when the provider reported none.
func FormatVolume(v int64) string {
	if v <= 0 {
		return models.VolumeUnavailable
	}
	s := fmt.Sprintf("%d", v)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ChangePercent formats change relative to the previous price, where the
// previous price is reconstructed as price − change. Returns "0.00" when
// the previous price is zero.
func ChangePercent(price, change float64) string {
	prev := price - change
	if prev == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", change/prev*100)
}
