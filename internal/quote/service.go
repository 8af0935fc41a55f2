// Package quote implements the quote-acquisition core: cache lookup,
// synchronous provider fetch with write-through, provider-scoped
// rate-limit cool-downs, batch lookups and the background poller.
//
// One Service instance covers one provider family (stocks, indices);
// the original system ran several drifting copies of this logic and
// they are unified here behind a single parameterized Config.
package quote

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/altamarfin/marketd/internal/fallback"
	"github.com/altamarfin/marketd/internal/provider"
	"github.com/altamarfin/marketd/internal/store"
	"github.com/altamarfin/marketd/pkg/models"
)

// DefaultBatchLimit caps multi-symbol lookups; excess symbols are
// silently truncated.
const DefaultBatchLimit = 5

// Config parameterizes one quote service family.
type Config struct {
	// Family names the service in cache keys, logs and status output.
	Family string

	// Symbols is the list polled in the background, in order.
	Symbols []string

	// Names maps symbols to display names (indices only).
	Names map[string]string

	// CacheTTL bounds quote freshness; normally ≥ PollInterval.
	CacheTTL time.Duration

	// PollInterval separates background poll passes.
	PollInterval time.Duration

	// InitialDelay postpones the first poll pass after startup.
	InitialDelay time.Duration

	// MinRequestGap/MaxRequestGap bound the randomized delay between
	// consecutive upstream calls within one poll pass.
	MinRequestGap time.Duration
	MaxRequestGap time.Duration

	// Cooldown is how long a provider is skipped after it throttles us.
	Cooldown time.Duration

	// BatchLimit caps GetQuotes; zero means DefaultBatchLimit.
	BatchLimit int

	// FallbackOnMiss answers on-demand cache misses straight from the
	// generator instead of fetching synchronously (used for indices,
	// where callers must never wait on Yahoo).
	FallbackOnMiss bool

	// CacheFallback write-throughs generated quotes so repeated calls
	// during an outage stay stable for the TTL window.
	CacheFallback bool

	// RealDataOnly makes exhausted batch lookups surface an error
	// instead of synthesizing data.
	RealDataOnly bool
}

// Service orchestrates cache, providers and fallback for one family.
type Service struct {
	cfg       Config
	providers []provider.Client
	gen       *fallback.Generator
	store     store.Store
	log       *zap.Logger
	onUpdate  func(models.Quote)

	sf singleflight.Group

	mu           sync.Mutex
	updating     bool
	lastPoll     time.Time
	blockedUntil map[string]time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithUpdateHook registers a callback invoked with every quote refreshed
// by the background poller (used to feed the websocket hub).
func WithUpdateHook(fn func(models.Quote)) Option {
	return func(s *Service) { s.onUpdate = fn }
}

// SetUpdateHook replaces the poll update callback. Must be called before
// Run.
func (s *Service) SetUpdateHook(fn func(models.Quote)) {
	s.onUpdate = fn
}

// New creates a quote service. Providers are tried in the given priority
// order; the slice may be empty, in which case every lookup degrades to
// the fallback generator.
func New(cfg Config, providers []provider.Client, gen *fallback.Generator, st store.Store, log *zap.Logger, opts ...Option) *Service {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	s := &Service{
		cfg:          cfg,
		providers:    providers,
		gen:          gen,
		store:        st,
		log:          log.With(zap.String("family", cfg.Family)),
		blockedUntil: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetQuote returns the quote for one symbol. The fast path is a fresh
// cache hit; otherwise a synchronous fetch through the first available
// provider, or fallback data when every provider is cooling down.
// A fetch failure is returned as a failure-shaped quote and is not
// retried inline; the next poll pass or on-demand call is the retry.
func (s *Service) GetQuote(ctx context.Context, symbol string) models.Quote {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return models.FailedQuote(symbol, "empty symbol")
	}

	if q, ok := s.cached(ctx, sym); ok {
		return q
	}

	p := s.activeProvider()
	if p == nil || s.cfg.FallbackOnMiss {
		return s.generate(ctx, sym)
	}

	// Collapse concurrent on-demand fetches for the same symbol.
	v, _, _ := s.sf.Do(sym, func() (any, error) {
		if q, ok := s.cached(ctx, sym); ok {
			return q, nil
		}
		return s.fetchOne(ctx, p, sym), nil
	})
	return v.(models.Quote)
}

// GetQuotes resolves a batch of symbols sequentially — never in parallel,
// to respect shared per-minute provider quotas. At most BatchLimit
// symbols are processed; the rest are silently dropped. If the whole
// batch fails against one provider, the next provider in the chain is
// tried for the whole batch. With every provider exhausted the result is
// either per-symbol fallback data or, in real-data-only mode,
// ErrAllProvidersExhausted.
func (s *Service) GetQuotes(ctx context.Context, symbols []string) (models.BatchResult, error) {
	syms := s.normalizeBatch(symbols)

	out := make(map[string]models.Quote, len(syms))
	var missing []string
	for _, sym := range syms {
		if _, seen := out[sym]; seen {
			continue
		}
		if q, ok := s.cached(ctx, sym); ok {
			out[sym] = q
		} else {
			missing = append(missing, sym)
		}
	}

	if len(missing) > 0 {
		resolved := false
		for _, p := range s.providers {
			if s.blocked(p.Name()) {
				continue
			}
			if s.fetchBatch(ctx, p, missing, out) > 0 {
				resolved = true
				break
			}
			// Zero successes: retry the entire batch against the next
			// provider in the chain.
		}

		if !resolved {
			if s.cfg.RealDataOnly {
				if countSuccesses(out) == 0 {
					return s.assemble(syms, out), provider.ErrAllProvidersExhausted
				}
			} else {
				for _, sym := range missing {
					if q, ok := out[sym]; !ok || !q.Success {
						out[sym] = s.generate(ctx, sym)
					}
				}
			}
		}
	}

	return s.assemble(syms, out), nil
}

// fetchOne performs one synchronous provider call with write-through.
func (s *Service) fetchOne(ctx context.Context, p provider.Client, sym string) models.Quote {
	q, err := p.Fetch(ctx, sym)
	if err == nil {
		q = s.decorate(q)
		s.writeCache(ctx, q)
		return q
	}

	if provider.IsRateLimited(err) {
		s.setCooldown(p.Name())
		return s.generate(ctx, sym)
	}

	s.log.Warn("provider fetch failed",
		zap.String("provider", p.Name()),
		zap.String("symbol", sym),
		zap.Error(err))
	return s.decorate(models.FailedQuote(sym, err.Error()))
}

// fetchBatch resolves the given symbols against one provider and merges
// results into out. Returns the number of successes. One symbol's
// failure never aborts the rest; a rate-limit signal does, since every
// further call would be throttled too.
func (s *Service) fetchBatch(ctx context.Context, p provider.Client, syms []string, out map[string]models.Quote) int {
	succeeded := 0
	for _, sym := range syms {
		if ctx.Err() != nil {
			break
		}
		if s.blocked(p.Name()) {
			break
		}

		q, err := p.Fetch(ctx, sym)
		if err == nil {
			q = s.decorate(q)
			s.writeCache(ctx, q)
			out[sym] = q
			succeeded++
			continue
		}

		if provider.IsRateLimited(err) {
			s.setCooldown(p.Name())
			break
		}

		s.log.Warn("provider fetch failed",
			zap.String("provider", p.Name()),
			zap.String("symbol", sym),
			zap.Error(err))
		out[sym] = s.decorate(models.FailedQuote(sym, err.Error()))
	}
	return succeeded
}

// generate produces fallback data, optionally write-through cached so
// repeated calls during an outage don't re-roll within the TTL window.
func (s *Service) generate(ctx context.Context, sym string) models.Quote {
	q := s.decorate(s.gen.Generate(sym))
	if s.cfg.CacheFallback {
		s.writeCache(ctx, q)
	}
	return q
}

// cached returns the cached quote when present, successful and fresh.
// Stale entries are skipped, not deleted.
func (s *Service) cached(ctx context.Context, sym string) (models.Quote, bool) {
	data, ok := s.store.Get(ctx, s.cacheKey(sym))
	if !ok {
		return models.Quote{}, false
	}
	var q models.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return models.Quote{}, false
	}
	if !q.Success || !q.Fresh(time.Now(), s.cfg.CacheTTL) {
		return models.Quote{}, false
	}
	return q, true
}

// writeCache stores a successful quote wholesale. Failures are never
// cached; cache errors are never fatal.
func (s *Service) writeCache(ctx context.Context, q models.Quote) {
	if !q.Success {
		return
	}
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, s.cacheKey(q.Symbol), data, s.cfg.CacheTTL); err != nil {
		s.log.Warn("cache write failed", zap.String("symbol", q.Symbol), zap.Error(err))
	}
}

func (s *Service) cacheKey(sym string) string {
	return "quote:" + s.cfg.Family + ":" + sym
}

// decorate attaches the display name for families that carry one.
func (s *Service) decorate(q models.Quote) models.Quote {
	if name, ok := s.cfg.Names[q.Symbol]; ok {
		q.Name = name
	}
	return q
}

// --- cool-down state ---

// blocked reports whether the provider is cooling down, clearing the
// flag lazily once blocked_until has passed.
func (s *Service) blocked(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.blockedUntil[name]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(s.blockedUntil, name)
		s.log.Info("provider cool-down expired", zap.String("provider", name))
		return false
	}
	return true
}

// setCooldown marks the provider throttled for the configured duration.
// The cool-down is provider-scoped: other providers keep serving.
func (s *Service) setCooldown(name string) {
	until := time.Now().Add(s.cfg.Cooldown)
	s.mu.Lock()
	s.blockedUntil[name] = until
	s.mu.Unlock()
	s.log.Warn("provider rate limited, entering cool-down",
		zap.String("provider", name),
		zap.Time("until", until))
}

// activeProvider returns the first provider not cooling down, or nil.
func (s *Service) activeProvider() provider.Client {
	for _, p := range s.providers {
		if !s.blocked(p.Name()) {
			return p
		}
	}
	return nil
}

// --- helpers ---

// NormalizeSymbol uppercases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// normalizeBatch trims, uppercases and truncates a symbol list to the
// batch limit, preserving request order.
func (s *Service) normalizeBatch(symbols []string) []string {
	out := make([]string, 0, s.cfg.BatchLimit)
	for _, raw := range symbols {
		if len(out) == s.cfg.BatchLimit {
			break
		}
		sym := NormalizeSymbol(raw)
		if sym == "" {
			continue
		}
		out = append(out, sym)
	}
	return out
}

// assemble orders batch results by the requested symbol order.
func (s *Service) assemble(syms []string, out map[string]models.Quote) models.BatchResult {
	res := models.BatchResult{
		Quotes:    make([]models.Quote, 0, len(syms)),
		Requested: syms,
	}
	seen := make(map[string]bool, len(syms))
	for _, sym := range syms {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		q, ok := out[sym]
		if !ok {
			q = s.decorate(models.FailedQuote(sym, "no data available"))
		}
		res.Quotes = append(res.Quotes, q)
		if q.Success {
			res.Succeeded++
		}
	}
	res.Total = len(res.Quotes)
	if len(s.providers) > 0 {
		res.Source = s.providers[0].Name()
	} else {
		res.Source = models.SourceFallback
	}
	return res
}

func countSuccesses(out map[string]models.Quote) int {
	n := 0
	for _, q := range out {
		if q.Success {
			n++
		}
	}
	return n
}

// requestGap draws the inter-request delay for a poll pass, randomized
// within the configured band.
func (s *Service) requestGap() time.Duration {
	min, max := s.cfg.MinRequestGap, s.cfg.MaxRequestGap
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}
