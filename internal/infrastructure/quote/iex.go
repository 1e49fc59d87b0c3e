package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

// IEX queries an IEX Cloud compatible quote endpoint:
// GET {base}/stock/{symbol}/quote?token={token}
type IEX struct {
	baseURL string
	token   string
	cli     *http.Client
}

func NewIEX(baseURL, token string, timeout time.Duration) *IEX {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &IEX{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		cli:     &http.Client{Timeout: timeout},
	}
}

func (p *IEX) Name() string { return "iex" }

func (p *IEX) Lookup(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, model.ErrUnknownSymbol
	}

	u := fmt.Sprintf("%s/stock/%s/quote?token=%s", p.baseURL, url.PathEscape(symbol), url.QueryEscape(p.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "tradesim/1.0")

	resp, err := p.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, model.ErrUnknownSymbol
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("iex http %d", resp.StatusCode)
	}

	var raw struct {
		Symbol      string          `json:"symbol"`
		CompanyName string          `json:"companyName"`
		LatestPrice decimal.Decimal `json:"latestPrice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("iex decode: %w", err)
	}
	if !raw.LatestPrice.IsPositive() {
		return nil, fmt.Errorf("iex: no price for %s", symbol)
	}
	if raw.Symbol == "" {
		raw.Symbol = symbol
	}
	return &model.Quote{
		Symbol: model.NormalizeSymbol(raw.Symbol),
		Name:   raw.CompanyName,
		Price:  raw.LatestPrice,
	}, nil
}

var _ port.QuoteProvider = (*IEX)(nil)
