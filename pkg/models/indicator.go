package models

// Indicator is the latest observation of one central-bank series.
type Indicator struct {
	Code  string  `json:"code"` // e.g. "dolar", "uf", "tpm"
	Name  string  `json:"name"` // display name, uppercased code
	Value float64 `json:"value"`
	Unit  string  `json:"unit"` // "$" for currency series, "%" for rates
	Date  string  `json:"date"` // YYYY-MM-DD of the observation
}

// IndicatorSet groups the indicators returned by one snapshot, keyed by code.
type IndicatorSet struct {
	Date       string               `json:"date"`
	Indicators map[string]Indicator `json:"indicators"`
	Source     string               `json:"source"`          // "banco_central" or "fallback"
	Error      string               `json:"error,omitempty"` // set when fallback data is served
}
