package yahoo

// chartResponse mirrors the v8 chart API envelope. Only the fields the
// quote path needs are declared.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// series flattens the close and volume arrays, dropping null entries
// (Yahoo pads partially-traded days with nulls).
func (r chartResult) series() ([]float64, []int64) {
	if len(r.Indicators.Quote) == 0 {
		return nil, nil
	}
	q := r.Indicators.Quote[0]

	closes := make([]float64, 0, len(q.Close))
	for _, c := range q.Close {
		if c != nil {
			closes = append(closes, *c)
		}
	}
	volumes := make([]int64, 0, len(q.Volume))
	for _, v := range q.Volume {
		if v != nil {
			volumes = append(volumes, *v)
		}
	}
	return closes, volumes
}
