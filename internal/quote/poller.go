package quote

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/altamarfin/marketd/internal/provider"
	"github.com/altamarfin/marketd/pkg/models"
)

// Run drives the background refresh loop until ctx is cancelled. The
// first pass is postponed by the initial delay so several families
// starting together don't hammer the upstream at boot.
func (s *Service) Run(ctx context.Context) {
	if len(s.providers) == 0 {
		s.log.Info("no providers configured, background polling disabled")
		return
	}

	s.log.Info("background polling started",
		zap.Duration("initial_delay", s.cfg.InitialDelay),
		zap.Duration("interval", s.cfg.PollInterval),
		zap.Int("symbols", len(s.cfg.Symbols)))

	if !s.sleepCtx(ctx, s.cfg.InitialDelay) {
		return
	}
	for {
		s.poll(ctx)
		if !s.sleepCtx(ctx, s.cfg.PollInterval) {
			s.log.Info("background polling stopped")
			return
		}
	}
}

// poll runs one refresh pass over the configured symbol list. Passes
// never overlap: if the previous one is still running this one is a
// no-op. A rate-limit signal aborts the pass early.
func (s *Service) poll(ctx context.Context) {
	s.mu.Lock()
	if s.updating {
		s.mu.Unlock()
		s.log.Info("poll pass already in progress, skipping")
		return
	}
	s.updating = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.updating = false
		s.lastPoll = time.Now()
		s.mu.Unlock()
	}()

	p := s.activeProvider()
	if p == nil {
		s.log.Info("all providers cooling down, skipping poll pass")
		return
	}

	refreshed := 0
	for i, sym := range s.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && !s.sleepCtx(ctx, s.requestGap()) {
			return
		}
		if s.blocked(p.Name()) {
			break
		}

		q, err := p.Fetch(ctx, sym)
		if err != nil {
			if provider.IsRateLimited(err) {
				s.setCooldown(p.Name())
				break
			}
			s.log.Warn("poll fetch failed",
				zap.String("provider", p.Name()),
				zap.String("symbol", sym),
				zap.Error(err))
			continue
		}

		q = s.decorate(q)
		s.writeCache(ctx, q)
		refreshed++
		if s.onUpdate != nil {
			s.onUpdate(q)
		}
	}

	s.log.Info("poll pass complete",
		zap.String("provider", p.Name()),
		zap.Int("refreshed", refreshed),
		zap.Int("symbols", len(s.cfg.Symbols)))
}

// sleepCtx sleeps for d, returning false when ctx is cancelled first.
func (s *Service) sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Status reports the service's operational snapshot.
func (s *Service) Status() models.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var limited bool
	var until time.Time
	for name, t := range s.blockedUntil {
		if now.After(t) {
			delete(s.blockedUntil, name)
			continue
		}
		limited = true
		if t.After(until) {
			until = t
		}
	}

	st := models.ServiceStatus{
		Service:         s.cfg.Family,
		AutoUpdate:      len(s.providers) > 0,
		IntervalMinutes: int(s.cfg.PollInterval.Minutes()),
		LastPoll:        s.lastPoll,
		Updating:        s.updating,
		Symbols:         s.cfg.Symbols,
		RateLimited:     limited,
		CacheTTLSeconds: int(s.cfg.CacheTTL.Seconds()),
	}
	if limited {
		st.RateLimitUntil = until.UTC()
	}
	return st
}
