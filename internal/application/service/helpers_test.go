package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
	domainservice "tradesim/internal/domain/service"
	"tradesim/internal/infrastructure/quote"
	"tradesim/internal/infrastructure/storage"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// countingQuotes wraps a provider and can be switched into a failing state.
type countingQuotes struct {
	inner port.QuoteProvider
	calls atomic.Int64
	fail  atomic.Bool
}

func (c *countingQuotes) Name() string { return "counting" }

func (c *countingQuotes) Lookup(ctx context.Context, symbol string) (*model.Quote, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("upstream timeout")
	}
	return c.inner.Lookup(ctx, symbol)
}

// slowLedger widens the window between reading and writing cash so that a
// missing per-user lock would show up as an overdraft.
type slowLedger struct {
	*storage.Memory
}

func (s slowLedger) WithUser(ctx context.Context, userID int64, fn func(tx port.LedgerTx) error) error {
	return s.Memory.WithUser(ctx, userID, func(tx port.LedgerTx) error { return fn(slowTx{tx}) })
}

type slowTx struct {
	port.LedgerTx
}

func (t slowTx) Cash(ctx context.Context) (decimal.Decimal, error) {
	time.Sleep(2 * time.Millisecond)
	return t.LedgerTx.Cash(ctx)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []*model.TradeEvent
	err    error
}

func (r *recordingEvents) PublishTrade(ctx context.Context, ev *model.TradeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type fixture struct {
	ledger    port.LedgerStore
	prices    *quote.Static
	quotes    *countingQuotes
	events    *recordingEvents
	locks     *domainservice.UserLocks
	trades    *TradeService
	portfolio *PortfolioService
	accounts  *AccountService
}

func newFixture(t *testing.T, ledger port.LedgerStore) *fixture {
	t.Helper()
	prices := quote.NewStatic(
		model.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: dec("100.00")},
		model.Quote{Symbol: "MSFT", Name: "Microsoft Corporation", Price: dec("300.00")},
	)
	f := &fixture{
		ledger: ledger,
		prices: prices,
		quotes: &countingQuotes{inner: prices},
		events: &recordingEvents{},
		locks:  domainservice.NewUserLocks(),
	}
	f.trades = NewTradeService(TradeServiceDeps{
		Ledger: ledger,
		Quotes: f.quotes,
		Events: f.events,
		Locks:  f.locks,
	})
	f.portfolio = NewPortfolioService(ledger, f.quotes, 2)
	f.accounts = NewAccountService(ledger, f.quotes, dec("10000.00"), 4) // bcrypt.MinCost
	return f
}

func (f *fixture) register(t *testing.T, name string) int64 {
	t.Helper()
	id, err := f.accounts.Register(context.Background(), name, "pw", "pw")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return id
}

func (f *fixture) cash(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	acct, err := f.ledger.Account(context.Background(), userID)
	if err != nil {
		t.Fatalf("Account failed: %v", err)
	}
	return acct.Cash
}
