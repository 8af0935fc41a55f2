// Package indicators serves Chilean economic indicators (exchange rates,
// UF, UTM, inflation, policy rate) from the Banco Central series API,
// with a cached snapshot and a hardcoded fallback table for outages.
package indicators

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/altamarfin/marketd/internal/store"
	"github.com/altamarfin/marketd/pkg/models"
)

const cacheKey = "indicators:latest"

// series maps an exposed indicator code to its Banco Central series ID.
// Order matters: snapshots are assembled in this order.
type series struct {
	Code string
	ID   string
	Unit string
}

var seriesTable = []series{
	{"dolar", "F073.TCO.PRE.Z.D", "$"},
	{"uf", "F073.UFF.PRE.Z.D", "$"},
	{"utm", "F073.UTR.PRE.Z.M", "$"},
	{"euro", "F072.CLP.EUR.N.O.D", "$"},
	{"yen", "F072.CLP.JPY.N.O.D", "$"},
	{"ipc", "F074.IPC.VAR.Z.Z.C.M", "%"},
	{"ivp", "F034.IPV.FLU.BCCH.2002.0.T", "%"},
	{"imacec", "F032.IMC.IND.Z.Z.EP18.Z.Z.0.M", "%"},
	{"tpm", "F022.TPM.TIN.D001.NO.Z.M", "%"},
	{"libra_cobre", "F019.PPB.PRE.40.M", "%"},
	{"tasa_desempleo", "F049.DES.TAS.INE9.10.M", "%"},
	{"indice_remuneraciones", "F049.RMU.IND.HIST.81.M", "%"},
}

// fallbackValues is served whenever the upstream is unreachable or
// credentials are missing. Only the headline series carry a baseline.
var fallbackValues = map[string]float64{
	"dolar": 980.50,
	"uf":    37500.00,
	"utm":   65967.00,
	"euro":  1020.30,
}

// Fetcher retrieves the latest observation of a series.
type Fetcher interface {
	Latest(ctx context.Context, seriesID string) (observation, error)
}

// Service aggregates the indicator table with caching and fallback.
type Service struct {
	fetcher  Fetcher
	store    store.Store
	log      *zap.Logger
	cacheTTL time.Duration

	mu sync.Mutex // serializes upstream refreshes
}

// NewService builds an indicator service. A nil fetcher (no credentials
// configured) degrades to fallback data on every call.
func NewService(fetcher Fetcher, st store.Store, cacheTTL time.Duration, log *zap.Logger) *Service {
	return &Service{
		fetcher:  fetcher,
		store:    st,
		log:      log.With(zap.String("component", "indicators")),
		cacheTTL: cacheTTL,
	}
}

// GetAll returns the latest snapshot of every configured series: cached
// copy when fresh, otherwise one upstream pass per series. With no
// fetcher or zero successful series the hardcoded fallback is returned,
// flagged with an error note, and never cached.
func (s *Service) GetAll(ctx context.Context) models.IndicatorSet {
	if data, ok := s.store.Get(ctx, cacheKey); ok {
		var set models.IndicatorSet
		if err := json.Unmarshal(data, &set); err == nil {
			return set
		}
	}

	if s.fetcher == nil {
		return s.fallback("no credentials configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have refreshed while we waited.
	if data, ok := s.store.Get(ctx, cacheKey); ok {
		var set models.IndicatorSet
		if err := json.Unmarshal(data, &set); err == nil {
			return set
		}
	}

	set := models.IndicatorSet{
		Date:       time.Now().Format("2006-01-02"),
		Indicators: make(map[string]models.Indicator, len(seriesTable)),
		Source:     "banco_central",
	}
	var lastErr error
	for _, sr := range seriesTable {
		obs, err := s.fetcher.Latest(ctx, sr.ID)
		if err != nil {
			lastErr = err
			s.log.Warn("series fetch failed", zap.String("series", sr.Code), zap.Error(err))
			continue
		}
		set.Indicators[sr.Code] = models.Indicator{
			Code:  sr.Code,
			Name:  strings.ToUpper(sr.Code),
			Value: obs.Value,
			Unit:  sr.Unit,
			Date:  obs.Date,
		}
	}

	if len(set.Indicators) == 0 {
		msg := "upstream unavailable"
		if lastErr != nil {
			msg = lastErr.Error()
		}
		return s.fallback(msg)
	}

	if data, err := json.Marshal(set); err == nil {
		if err := s.store.Set(ctx, cacheKey, data, s.cacheTTL); err != nil {
			s.log.Warn("cache write failed", zap.Error(err))
		}
	}
	return set
}

// fallback assembles the hardcoded table, tagged so clients can tell
// backup data from live data.
func (s *Service) fallback(reason string) models.IndicatorSet {
	set := models.IndicatorSet{
		Date:       time.Now().Format("2006-01-02"),
		Indicators: make(map[string]models.Indicator, len(fallbackValues)),
		Source:     "fallback",
		Error:      "using backup data: " + reason,
	}
	for _, sr := range seriesTable {
		v, ok := fallbackValues[sr.Code]
		if !ok {
			continue
		}
		set.Indicators[sr.Code] = models.Indicator{
			Code:  sr.Code,
			Name:  strings.ToUpper(sr.Code),
			Value: v,
			Unit:  sr.Unit,
			Date:  set.Date,
		}
	}
	return set
}
