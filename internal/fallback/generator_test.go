package fallback

import (
	"math"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/altamarfin/marketd/pkg/models"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestGenerateKnownSymbol(t *testing.T) {
	g := New(StockBaselines, 3, WithRand(testRand()))

	for i := 0; i < 100; i++ {
		q := g.Generate("AAPL")

		if !q.Success {
			t.Fatal("fallback quotes are always success-shaped")
		}
		if q.Source != models.SourceFallback {
			t.Fatalf("source = %q, want %q", q.Source, models.SourceFallback)
		}

		baseline := StockBaselines["AAPL"]
		lo, hi := baseline*0.97, baseline*1.03
		if q.Price < lo-0.01 || q.Price > hi+0.01 {
			t.Errorf("price %v outside ±3%% of baseline %v", q.Price, baseline)
		}

		// change is price relative to the baseline, within rounding.
		if math.Abs(q.Change-(q.Price-baseline)) > 0.011 {
			t.Errorf("change %v inconsistent with price %v − baseline %v", q.Change, q.Price, baseline)
		}
	}
}

func TestGenerateUnknownSymbol(t *testing.T) {
	g := New(StockBaselines, 3, WithRand(testRand()))

	for i := 0; i < 100; i++ {
		q := g.Generate("ZZZZ")
		if q.Price < unknownBaselineMin*0.97 || q.Price > unknownBaselineMax*1.03 {
			t.Errorf("price %v outside the unknown-symbol band", q.Price)
		}
	}
}

func TestGenerateVolume(t *testing.T) {
	plain := New(StockBaselines, 3, WithRand(testRand()))
	if got := plain.Generate("AAPL").Volume; got != models.VolumeUnavailable {
		t.Errorf("volume = %q, want %q without WithRandomVolume", got, models.VolumeUnavailable)
	}

	withVol := New(StockBaselines, 3, WithRand(testRand()), WithRandomVolume())
	for i := 0; i < 50; i++ {
		v := withVol.Generate("AAPL").Volume
		n := parseVolume(t, v)
		if n < 1_000_000 || n >= 50_000_000 {
			t.Errorf("volume %d outside [1M, 50M)", n)
		}
	}
}

func TestGenerateChangePercentConsistency(t *testing.T) {
	g := New(IndexBaselines, 0.5, WithRand(testRand()))

	q := g.Generate("^GSPC")
	pct, err := strconv.ParseFloat(q.ChangePercent, 64)
	if err != nil {
		t.Fatalf("change_percent %q is not numeric: %v", q.ChangePercent, err)
	}

	prev := q.Price - q.Change
	want := q.Change / prev * 100
	if math.Abs(pct-want) > 0.005 {
		t.Errorf("change_percent %v inconsistent, want ~%.2f", pct, want)
	}
}

func parseVolume(t *testing.T, s string) int64 {
	t.Helper()
	var n int64
	for _, r := range s {
		if r == ',' {
			continue
		}
		if r < '0' || r > '9' {
			t.Fatalf("unexpected volume %q", s)
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
