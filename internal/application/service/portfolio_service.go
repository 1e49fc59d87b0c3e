package service

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
	domainservice "tradesim/internal/domain/service"
)

// PortfolioService is the read side: it derives holdings from the ledger on
// every call and prices them with live quotes. It never writes.
type PortfolioService struct {
	ledger      port.LedgerStore
	quotes      port.QuoteProvider
	concurrency int
}

func NewPortfolioService(ledger port.LedgerStore, quotes port.QuoteProvider, concurrency int) *PortfolioService {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &PortfolioService{ledger: ledger, quotes: quotes, concurrency: concurrency}
}

// GetPortfolio values every active position at the current quote. If any
// held symbol cannot be quoted the whole view fails with QuoteUnavailable.
func (s *PortfolioService) GetPortfolio(ctx context.Context, userID int64) (*model.Portfolio, error) {
	acct, err := s.ledger.Account(ctx, userID)
	if err != nil {
		return nil, storageErr("portfolio", err)
	}
	quotes, err := s.quoteAll(ctx, acct.Positions)
	if err != nil {
		return nil, err
	}
	return domainservice.Valuate(acct, quotes)
}

func (s *PortfolioService) quoteAll(ctx context.Context, positions []model.Position) (map[string]model.Quote, error) {
	var mu sync.Mutex
	out := make(map[string]model.Quote, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, pos := range positions {
		symbol := pos.Symbol
		g.Go(func() error {
			q, err := resolveQuote(gctx, s.quotes, symbol)
			if err != nil {
				if errors.Is(err, model.ErrUnknownSymbol) {
					// a held symbol the provider no longer knows cannot be valued
					return model.QuoteUnavailable(symbol, err)
				}
				return err
			}
			mu.Lock()
			out[symbol] = *q
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHistory returns the user's ledger, newest first.
func (s *PortfolioService) GetHistory(ctx context.Context, userID int64) ([]model.Transaction, error) {
	txs, err := s.ledger.History(ctx, userID)
	if err != nil {
		return nil, storageErr("history", err)
	}
	return txs, nil
}

// GetSellableSymbols lists symbols with a positive net position.
func (s *PortfolioService) GetSellableSymbols(ctx context.Context, userID int64) ([]string, error) {
	symbols, err := s.ledger.ActiveSymbols(ctx, userID)
	if err != nil {
		return nil, storageErr("sellable symbols", err)
	}
	return symbols, nil
}
