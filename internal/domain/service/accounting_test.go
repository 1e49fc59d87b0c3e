package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSettleBuy(t *testing.T) {
	cash, err := SettleBuy(d("10000.00"), d("100.00"), 10)
	if err != nil {
		t.Fatalf("SettleBuy failed: %v", err)
	}
	if !cash.Equal(d("9000")) {
		t.Errorf("expected 9000, got %s", cash)
	}

	// spending the exact balance is allowed
	cash, err = SettleBuy(d("100"), d("25"), 4)
	if err != nil || !cash.IsZero() {
		t.Errorf("expected zero cash and no error, got %s, %v", cash, err)
	}

	cash, err = SettleBuy(d("99.99"), d("25"), 4)
	if !errors.Is(err, model.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if !cash.Equal(d("99.99")) {
		t.Errorf("cash must be unchanged on rejection, got %s", cash)
	}

	if _, err := SettleBuy(d("100"), d("1"), 0); !errors.Is(err, model.ErrInvalidShareCount) {
		t.Errorf("expected ErrInvalidShareCount, got %v", err)
	}
}

func TestSettleSell(t *testing.T) {
	cash, err := SettleSell(d("9000"), d("120.00"), 10, 4)
	if err != nil {
		t.Fatalf("SettleSell failed: %v", err)
	}
	if !cash.Equal(d("9480")) {
		t.Errorf("expected 9480, got %s", cash)
	}

	if _, err := SettleSell(d("9480"), d("120"), 6, 10); !errors.Is(err, model.ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares, got %v", err)
	}
	if _, err := SettleSell(d("9480"), d("120"), 6, -1); !errors.Is(err, model.ErrInvalidShareCount) {
		t.Errorf("expected ErrInvalidShareCount, got %v", err)
	}
}

func TestValuate(t *testing.T) {
	acct := &model.Account{
		UserID: 1,
		Cash:   d("9480"),
		Positions: []model.Position{
			{Symbol: "MSFT", Shares: 2},
			{Symbol: "AAPL", Shares: 6},
		},
	}
	quotes := map[string]model.Quote{
		"AAPL": {Symbol: "AAPL", Name: "Apple Inc.", Price: d("120")},
		"MSFT": {Symbol: "MSFT", Name: "Microsoft", Price: d("300.50")},
	}
	pf, err := Valuate(acct, quotes)
	if err != nil {
		t.Fatalf("Valuate failed: %v", err)
	}
	if len(pf.Holdings) != 2 || pf.Holdings[0].Symbol != "AAPL" {
		t.Fatalf("expected holdings sorted by symbol, got %+v", pf.Holdings)
	}
	if !pf.Holdings[0].Value.Equal(d("720")) {
		t.Errorf("expected AAPL value 720, got %s", pf.Holdings[0].Value)
	}
	if !pf.GrandTotal.Equal(d("10801")) {
		t.Errorf("expected grand total 10801, got %s", pf.GrandTotal)
	}
}

func TestValuateMissingQuote(t *testing.T) {
	acct := &model.Account{Cash: d("1"), Positions: []model.Position{{Symbol: "AAPL", Shares: 1}}}
	if _, err := Valuate(acct, map[string]model.Quote{}); !errors.Is(err, model.ErrQuoteUnavailable) {
		t.Errorf("expected ErrQuoteUnavailable, got %v", err)
	}
}
