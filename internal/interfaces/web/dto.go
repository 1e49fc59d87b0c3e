package web

import (
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain/model"
)

// amount is a decimal together with its currency rendering.
type amount struct {
	Value   decimal.Decimal `json:"value"`
	Display string          `json:"display"`
}

type holdingDTO struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Shares int64  `json:"shares"`
	Price  amount `json:"price"`
	Total  amount `json:"total"`
}

type portfolioDTO struct {
	UserID        int64        `json:"user_id"`
	Currency      string       `json:"currency"`
	Cash          amount       `json:"cash"`
	Holdings      []holdingDTO `json:"holdings"`
	HoldingsValue amount       `json:"holdings_value"`
	GrandTotal    amount       `json:"grand_total"`
}

type transactionDTO struct {
	ID        string    `json:"id"`
	Side      string    `json:"side"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Shares    int64     `json:"shares"`
	Price     amount    `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

type tradeDTO struct {
	Message     string         `json:"message"`
	Transaction transactionDTO `json:"transaction"`
	Cash        amount         `json:"cash"`
}

type quoteDTO struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Price  amount `json:"price"`
}

type userDTO struct {
	UserID int64 `json:"user_id"`
}

type presenter struct {
	currency string
}

func (p presenter) amount(v decimal.Decimal) amount {
	return amount{Value: v, Display: model.FormatMoney(v, p.currency)}
}

func (p presenter) portfolio(pf *model.Portfolio) portfolioDTO {
	out := portfolioDTO{
		UserID:        pf.UserID,
		Currency:      p.currency,
		Cash:          p.amount(pf.Cash),
		Holdings:      make([]holdingDTO, 0, len(pf.Holdings)),
		HoldingsValue: p.amount(pf.HoldingsValue),
		GrandTotal:    p.amount(pf.GrandTotal),
	}
	for _, h := range pf.Holdings {
		out.Holdings = append(out.Holdings, holdingDTO{
			Symbol: h.Symbol,
			Name:   h.Name,
			Shares: h.Shares,
			Price:  p.amount(h.Price),
			Total:  p.amount(h.Value),
		})
	}
	return out
}

func (p presenter) transaction(t model.Transaction) transactionDTO {
	return transactionDTO{
		ID:        t.ID,
		Side:      t.Side(),
		Symbol:    t.Symbol,
		Name:      t.Name,
		Shares:    t.Shares,
		Price:     p.amount(t.Price),
		Timestamp: t.Timestamp,
	}
}

func (p presenter) trade(ev *model.TradeEvent) tradeDTO {
	msg := "Stock purchased!"
	if ev.Side == model.SideSell {
		msg = "Sold successfully!"
	}
	return tradeDTO{Message: msg, Transaction: p.transaction(ev.Transaction), Cash: p.amount(ev.Cash)}
}

func (p presenter) quote(q *model.Quote) quoteDTO {
	return quoteDTO{Symbol: q.Symbol, Name: q.Name, Price: p.amount(q.Price)}
}
