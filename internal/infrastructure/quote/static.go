package quote

import (
	"context"
	"sync"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

// Static serves quotes from a fixed table. Prices can be moved with Set.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
}

func NewStatic(quotes ...model.Quote) *Static {
	s := &Static{quotes: make(map[string]model.Quote, len(quotes))}
	for _, q := range quotes {
		s.Set(q)
	}
	return s
}

func (s *Static) Name() string { return "static" }

func (s *Static) Lookup(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = model.NormalizeSymbol(symbol)
	s.mu.RLock()
	q, ok := s.quotes[symbol]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrUnknownSymbol
	}
	return &q, nil
}

// Set adds or replaces the quote for q.Symbol.
func (s *Static) Set(q model.Quote) {
	q.Symbol = model.NormalizeSymbol(q.Symbol)
	s.mu.Lock()
	s.quotes[q.Symbol] = q
	s.mu.Unlock()
}

var _ port.QuoteProvider = (*Static)(nil)
