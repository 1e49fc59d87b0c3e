package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User 账户：现金余额只由成交流程修改
type User struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Cash         decimal.Decimal `json:"cash"`
}

// Transaction 账本记录，只追加不修改。Shares > 0 为买入，< 0 为卖出
type Transaction struct {
	ID        string          `json:"id"`
	UserID    int64           `json:"user_id"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Side returns "buy" or "sell" from the sign of Shares.
func (t Transaction) Side() string {
	if t.Shares < 0 {
		return SideSell
	}
	return SideBuy
}

// Amount is the absolute cash moved by the transaction.
func (t Transaction) Amount() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Shares)).Abs()
}

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Position 净持仓（由账本汇总得出，不落库）
type Position struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// Account is a consistent read of a user's cash and active positions.
type Account struct {
	UserID    int64
	Cash      decimal.Decimal
	Positions []Position
}

// Quote 外部报价
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// Holding 按实时报价估值后的持仓
type Holding struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Value  decimal.Decimal `json:"value"`
}

// Portfolio 账户净值视图
type Portfolio struct {
	UserID        int64           `json:"user_id"`
	Cash          decimal.Decimal `json:"cash"`
	Holdings      []Holding       `json:"holdings"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

// TradeEvent is published after a trade commits.
type TradeEvent struct {
	Side        string          `json:"side"`
	UserID      int64           `json:"user_id"`
	Transaction Transaction     `json:"transaction"`
	Cash        decimal.Decimal `json:"cash"`
}
