package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed", &RateLimitError{Provider: "yahoo_finance", Detail: "slow down"}, true},
		{"wrapped typed", fmt.Errorf("fetch: %w", &RateLimitError{Provider: "x"}), true},
		{"textual too many requests", errors.New("upstream said: Too Many Requests"), true},
		{"textual rate limit", errors.New("API rate limit exceeded"), true},
		{"textual 429", errors.New("unexpected status 429"), true},
		{"invalid data", &InvalidDataError{Symbol: "AAPL", Detail: "no price"}, false},
		{"transient", &TransientError{Provider: "yahoo_finance", Err: errors.New("timeout")}, false},
		{"plain", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimited(tt.err); got != tt.want {
				t.Errorf("IsRateLimited(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	err := &TransientError{Provider: "yahoo_finance", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
}

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{212.4849, 212.48},
		{212.485, 212.49},
		{0, 0},
		{-1.005, -1.0}, // floating point representation of -1.005 is slightly above
		{5916.978, 5916.98},
	}
	for _, tt := range tests {
		if got := RoundPrice(tt.in); got != tt.want {
			t.Errorf("RoundPrice(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatVolume(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{45123000, "45,123,000"},
		{1000, "1,000"},
		{999, "999"},
		{1, "1"},
		{0, "N/A"},
		{-5, "N/A"},
		{1234567890, "1,234,567,890"},
	}
	for _, tt := range tests {
		if got := FormatVolume(tt.in); got != tt.want {
			t.Errorf("FormatVolume(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChangePercent(t *testing.T) {
	tests := []struct {
		price  float64
		change float64
		want   string
	}{
		{212.48, 1.30, "0.62"},
		{100, -2, "-1.96"},
		{100, 0, "0.00"},
		{5, 5, "0.00"}, // previous close of zero
	}
	for _, tt := range tests {
		if got := ChangePercent(tt.price, tt.change); got != tt.want {
			t.Errorf("ChangePercent(%v, %v) = %q, want %q", tt.price, tt.change, got, tt.want)
		}
	}
}
