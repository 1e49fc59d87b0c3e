package model

import (
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ParseShares parses a raw share count. It is the only place share input is
// interpreted; callers must not re-parse the raw string.
func ParseShares(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrMissingShares
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrInvalidShareCount.with("", err)
	}
	if n < 1 {
		return 0, ErrInvalidShareCount
	}
	return n, nil
}

// ParseOrder validates the symbol and share inputs of a trade.
func ParseOrder(rawSymbol, rawShares string) (string, int64, error) {
	symbol := NormalizeSymbol(rawSymbol)
	if symbol == "" {
		return "", 0, ErrEmptySymbol
	}
	shares, err := ParseShares(rawShares)
	if err != nil {
		return "", 0, err
	}
	return symbol, shares, nil
}

// FormatMoney renders value in currency code, e.g. "$1,234.50" for USD.
// Unknown codes fall back to two fraction digits and the code as suffix.
func FormatMoney(value decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return value.StringFixed(2) + " " + code
	}
	minor := value.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}
