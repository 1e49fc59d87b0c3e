package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"tradesim/internal/domain/model"
	"tradesim/internal/infrastructure/storage"
)

func TestPortfolioServiceValuesAtLiveQuotes(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	ctx := context.Background()
	id := f.register(t, "alice")

	if _, err := f.trades.Buy(ctx, id, "AAPL", "10"); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if _, err := f.trades.Buy(ctx, id, "MSFT", "1"); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if _, err := f.trades.Sell(ctx, id, "MSFT", "1"); err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	f.prices.Set(model.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: dec("120.00")})

	pf, err := f.portfolio.GetPortfolio(ctx, id)
	if err != nil {
		t.Fatalf("GetPortfolio failed: %v", err)
	}
	if len(pf.Holdings) != 1 {
		t.Fatalf("expected only the active AAPL holding, got %+v", pf.Holdings)
	}
	h := pf.Holdings[0]
	if h.Symbol != "AAPL" || h.Shares != 10 || !h.Price.Equal(dec("120")) || !h.Value.Equal(dec("1200")) {
		t.Errorf("unexpected holding %+v", h)
	}
	if !pf.Cash.Equal(dec("9000")) || !pf.GrandTotal.Equal(dec("10200")) {
		t.Errorf("unexpected totals cash=%s total=%s", pf.Cash, pf.GrandTotal)
	}
}

func TestPortfolioServiceIsRepeatable(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	ctx := context.Background()
	id := f.register(t, "alice")
	if _, err := f.trades.Buy(ctx, id, "AAPL", "3"); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	first, err := f.portfolio.GetPortfolio(ctx, id)
	if err != nil {
		t.Fatalf("GetPortfolio failed: %v", err)
	}
	second, _ := f.portfolio.GetPortfolio(ctx, id)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("portfolio changed between reads: %+v vs %+v", first, second)
	}

	h1, _ := f.portfolio.GetHistory(ctx, id)
	h2, _ := f.portfolio.GetHistory(ctx, id)
	if !reflect.DeepEqual(h1, h2) {
		t.Errorf("history changed between reads")
	}
	if c := f.cash(t, id); !c.Equal(dec("9700")) {
		t.Errorf("reads changed cash to %s", c)
	}
}

func TestPortfolioServiceFailsWholeViewWithoutQuote(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	ctx := context.Background()
	id := f.register(t, "alice")
	if _, err := f.trades.Buy(ctx, id, "AAPL", "1"); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	f.quotes.fail.Store(true)
	pf, err := f.portfolio.GetPortfolio(ctx, id)
	if !errors.Is(err, model.ErrQuoteUnavailable) || pf != nil {
		t.Errorf("expected ErrQuoteUnavailable and no view, got %v, %+v", err, pf)
	}
}

func TestPortfolioServiceDelistedSymbol(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	ctx := context.Background()
	id := f.register(t, "alice")
	if _, err := f.trades.Buy(ctx, id, "AAPL", "1"); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	f.quotes.inner = emptyQuotes{}
	_, err := f.portfolio.GetPortfolio(ctx, id)
	if model.KindOf(err) != model.KindQuoteUnavailable {
		t.Errorf("expected quote_unavailable kind, got %v", err)
	}
}

func TestPortfolioServiceEmptyAccount(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	id := f.register(t, "alice")

	pf, err := f.portfolio.GetPortfolio(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPortfolio failed: %v", err)
	}
	if len(pf.Holdings) != 0 || !pf.GrandTotal.Equal(dec("10000")) {
		t.Errorf("unexpected empty portfolio %+v", pf)
	}
	symbols, err := f.portfolio.GetSellableSymbols(context.Background(), id)
	if err != nil || len(symbols) != 0 {
		t.Errorf("expected no sellable symbols, got %v, %v", symbols, err)
	}
}

type emptyQuotes struct{}

func (emptyQuotes) Name() string { return "empty" }

func (emptyQuotes) Lookup(ctx context.Context, symbol string) (*model.Quote, error) {
	return nil, model.ErrUnknownSymbol
}
