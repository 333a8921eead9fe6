package store

import (
	"time"

	"github.com/lonalabs/lona/internal/model"
)

type marketEntry struct {
	ctx      model.MarketContext
	cachedAt time.Time
}

// GetMarketContext returns a cached market context if still fresh.
func (s *Store) GetMarketContext(symbol string) (model.MarketContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.marketTTL <= 0 {
		return model.MarketContext{}, false
	}
	entry, ok := s.marketCtx[symbol]
	if !ok || time.Since(entry.cachedAt) > s.marketTTL {
		return model.MarketContext{}, false
	}
	return entry.ctx, true
}

// PutMarketContext caches a market context snapshot for its symbol.
func (s *Store) PutMarketContext(mc model.MarketContext) {
	if s.marketTTL <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marketCtx[mc.Symbol] = marketEntry{ctx: mc, cachedAt: time.Now().UTC()}
}
