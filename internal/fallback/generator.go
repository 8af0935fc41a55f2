// Package fallback produces synthetic-but-plausible quotes when every
// real provider is unavailable. Prices are seeded from fixed baselines
// and jittered within a small band, so an outage degrades to believable
// numbers instead of errors.
package fallback

import (
	"math/rand/v2"
	"sync"

	"github.com/altamarfin/marketd/internal/provider"
	"github.com/altamarfin/marketd/pkg/models"
)

// StockBaselines are reference prices for the monitored stock symbols.
var StockBaselines = map[string]float64{
	"AAPL":  212.48,
	"GOOGL": 190.10,
	"MSFT":  510.06,
	"TSLA":  328.49,
	"AMZN":  229.30,
}

// IndexBaselines are reference values for the monitored global indices.
var IndexBaselines = map[string]float64{
	"^GSPC":  5916.98,
	"^DJI":   40415.44,
	"^IXIC":  18742.02,
	"^FTSE":  8155.72,
	"^GDAXI": 18407.69,
	"^BVSP":  129875.47,
	"^IBEX":  11789.70,
	"^N225":  40063.79,
}

// Bounds for the baseline drawn when a symbol has no table entry.
const (
	unknownBaselineMin = 50.0
	unknownBaselineMax = 500.0
)

// Generator produces fallback quotes for one symbol family.
//
// Contract: price = baseline × (1 + jitter), jitter uniform in ±JitterPct;
// change = price − baseline; change_percent = change/(price−change) × 100.
type Generator struct {
	baselines    map[string]float64
	jitterPct    float64 // e.g. 3.0 for ±3%
	randomVolume bool    // stocks get a plausible volume, indices get "N/A"

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandomVolume makes generated quotes carry a plausible share volume.
func WithRandomVolume() Option {
	return func(g *Generator) { g.randomVolume = true }
}

// WithRand replaces the random source. Used by tests.
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) { g.rng = rng }
}

// New creates a generator over the given baseline table with the given
// jitter band (in percent).
func New(baselines map[string]float64, jitterPct float64, opts ...Option) *Generator {
	g := &Generator{
		baselines: baselines,
		jitterPct: jitterPct,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces a success-shaped quote for the symbol. It never fails.
func (g *Generator) Generate(symbol string) models.Quote {
	g.mu.Lock()
	baseline, ok := g.baselines[symbol]
	if !ok {
		baseline = unknownBaselineMin + g.rng.Float64()*(unknownBaselineMax-unknownBaselineMin)
	}

	jitter := (g.rng.Float64()*2 - 1) * g.jitterPct / 100
	price := provider.RoundPrice(baseline * (1 + jitter))
	change := provider.RoundPrice(price - baseline)

	volume := models.VolumeUnavailable
	if g.randomVolume {
		volume = provider.FormatVolume(1_000_000 + g.rng.Int64N(49_000_000))
	}
	g.mu.Unlock()

	return models.NewQuote(symbol, price, change,
		provider.ChangePercent(price, change),
		volume, models.SourceFallback)
}
