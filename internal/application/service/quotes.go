package service

import (
	"context"
	"errors"
	"fmt"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

// resolveQuote looks symbol up once and classifies the failure.
func resolveQuote(ctx context.Context, quotes port.QuoteProvider, symbol string) (*model.Quote, error) {
	q, err := quotes.Lookup(ctx, symbol)
	if err != nil {
		if errors.Is(err, model.ErrUnknownSymbol) {
			return nil, err
		}
		return nil, model.QuoteUnavailable(symbol, err)
	}
	if q == nil || !q.Price.IsPositive() {
		return nil, model.QuoteUnavailable(symbol, fmt.Errorf("%s returned no usable price", quotes.Name()))
	}
	out := *q
	out.Symbol = model.NormalizeSymbol(out.Symbol)
	if out.Symbol == "" {
		out.Symbol = symbol
	}
	return &out, nil
}

// storageErr keeps classified errors and wraps driver errors as storage failures.
func storageErr(op string, err error) error {
	if _, ok := model.AsError(err); ok {
		return err
	}
	return model.StorageFailure(op, err)
}
