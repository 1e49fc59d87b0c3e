package port

import (
	"context"

	"tradesim/internal/domain/model"
)

// QuoteProvider resolves a ticker. Unknown tickers yield model.ErrUnknownSymbol;
// any other error means the upstream could not answer.
type QuoteProvider interface {
	Name() string
	Lookup(ctx context.Context, symbol string) (*model.Quote, error)
}

// QuoteCache stores recently seen quotes.
type QuoteCache interface {
	GetQuote(ctx context.Context, symbol string) (*model.Quote, bool, error)
	PutQuote(ctx context.Context, q *model.Quote) error
}
