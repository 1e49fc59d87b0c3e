package quote

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

// Cached puts a QuoteCache in front of a provider. Only successful lookups are
// cached; cache failures degrade to a direct lookup.
type Cached struct {
	next  port.QuoteProvider
	cache port.QuoteCache
}

func NewCached(next port.QuoteProvider, cache port.QuoteCache) *Cached {
	return &Cached{next: next, cache: cache}
}

func (c *Cached) Name() string { return c.next.Name() + "+cache" }

func (c *Cached) Lookup(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = model.NormalizeSymbol(symbol)
	q, ok, err := c.cache.GetQuote(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache read failed")
	} else if ok {
		return q, nil
	}

	q, err = c.next.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := c.cache.PutQuote(ctx, q); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache write failed")
	}
	return q, nil
}

// MemoryCache is an in-process QuoteCache with a fixed time to live.
type MemoryCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]cachedQuote
}

type cachedQuote struct {
	quote   model.Quote
	fetched time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]cachedQuote)}
}

func (m *MemoryCache) GetQuote(ctx context.Context, symbol string) (*model.Quote, bool, error) {
	m.mu.RLock()
	c, ok := m.entries[symbol]
	m.mu.RUnlock()
	if !ok || m.now().Sub(c.fetched) >= m.ttl {
		return nil, false, nil
	}
	q := c.quote
	return &q, true, nil
}

func (m *MemoryCache) PutQuote(ctx context.Context, q *model.Quote) error {
	m.mu.Lock()
	m.entries[q.Symbol] = cachedQuote{quote: *q, fetched: m.now()}
	m.mu.Unlock()
	return nil
}

var (
	_ port.QuoteProvider = (*Cached)(nil)
	_ port.QuoteCache    = (*MemoryCache)(nil)
)
