package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain/model"
)

// SettleBuy returns the cash left after buying shares at price.
func SettleBuy(cash, price decimal.Decimal, shares int64) (decimal.Decimal, error) {
	if shares < 1 {
		return cash, model.ErrInvalidShareCount
	}
	total := price.Mul(decimal.NewFromInt(shares))
	if total.GreaterThan(cash) {
		return cash, model.ErrInsufficientFunds
	}
	return cash.Sub(total), nil
}

// SettleSell returns the cash after selling shares out of a net position.
func SettleSell(cash, price decimal.Decimal, position, shares int64) (decimal.Decimal, error) {
	if shares < 1 {
		return cash, model.ErrInvalidShareCount
	}
	if shares > position {
		return cash, model.ErrInsufficientShares
	}
	return cash.Add(price.Mul(decimal.NewFromInt(shares))), nil
}

// Valuate prices every active position with its quote. A position without a
// quote is an error: the view is never assembled from partial prices.
func Valuate(acct *model.Account, quotes map[string]model.Quote) (*model.Portfolio, error) {
	pf := &model.Portfolio{
		UserID:        acct.UserID,
		Cash:          acct.Cash,
		Holdings:      make([]model.Holding, 0, len(acct.Positions)),
		HoldingsValue: decimal.Zero,
	}
	for _, pos := range acct.Positions {
		if pos.Shares <= 0 {
			continue
		}
		q, ok := quotes[pos.Symbol]
		if !ok {
			return nil, model.QuoteUnavailable(pos.Symbol, nil)
		}
		value := q.Price.Mul(decimal.NewFromInt(pos.Shares))
		pf.Holdings = append(pf.Holdings, model.Holding{
			Symbol: pos.Symbol,
			Name:   q.Name,
			Shares: pos.Shares,
			Price:  q.Price,
			Value:  value,
		})
		pf.HoldingsValue = pf.HoldingsValue.Add(value)
	}
	sort.Slice(pf.Holdings, func(i, j int) bool { return pf.Holdings[i].Symbol < pf.Holdings[j].Symbol })
	pf.GrandTotal = pf.Cash.Add(pf.HoldingsValue)
	return pf, nil
}
