package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
	domainservice "tradesim/internal/domain/service"
)

// TradeServiceDeps wires a TradeService. Quotes must not be cached.
type TradeServiceDeps struct {
	Ledger      port.LedgerStore
	Quotes      port.QuoteProvider
	Events      port.EventPublisher // optional
	Locks       *domainservice.UserLocks
	LockTimeout time.Duration
	Now         func() time.Time
}

// TradeService validates and applies buy and sell orders. The balance or
// position check and the write that follows run under the user's lock and in
// a single ledger transaction.
type TradeService struct {
	ledger      port.LedgerStore
	quotes      port.QuoteProvider
	events      port.EventPublisher
	locks       *domainservice.UserLocks
	lockTimeout time.Duration
	now         func() time.Time
}

func NewTradeService(deps TradeServiceDeps) *TradeService {
	if deps.Locks == nil {
		deps.Locks = domainservice.NewUserLocks()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &TradeService{
		ledger:      deps.Ledger,
		quotes:      deps.Quotes,
		events:      deps.Events,
		locks:       deps.Locks,
		lockTimeout: deps.LockTimeout,
		now:         deps.Now,
	}
}

// Buy purchases shares of symbol at the current quote.
func (s *TradeService) Buy(ctx context.Context, userID int64, symbol, shares string) (*model.TradeEvent, error) {
	return s.execute(ctx, model.SideBuy, userID, symbol, shares)
}

// Sell sells shares of symbol at the current quote.
func (s *TradeService) Sell(ctx context.Context, userID int64, symbol, shares string) (*model.TradeEvent, error) {
	return s.execute(ctx, model.SideSell, userID, symbol, shares)
}

func (s *TradeService) execute(ctx context.Context, side string, userID int64, rawSymbol, rawShares string) (*model.TradeEvent, error) {
	symbol, shares, err := model.ParseOrder(rawSymbol, rawShares)
	if err != nil {
		s.logRejected(side, userID, rawSymbol, err)
		return nil, err
	}

	// one lookup: this price is both checked and recorded
	q, err := resolveQuote(ctx, s.quotes, symbol)
	if err != nil {
		s.logRejected(side, userID, symbol, err)
		return nil, err
	}

	ev, err := s.settle(ctx, side, userID, q, shares)
	if err != nil {
		s.logRejected(side, userID, symbol, err)
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Str("side", side).
		Str("symbol", ev.Transaction.Symbol).
		Int64("shares", ev.Transaction.Shares).
		Str("price", ev.Transaction.Price.String()).
		Str("cash", ev.Cash.String()).
		Msg("trade executed")

	if s.events != nil {
		if err := s.events.PublishTrade(ctx, ev); err != nil {
			// the trade is committed; observers just miss this one
			log.Warn().Err(err).Str("tx_id", ev.Transaction.ID).Msg("publish trade event failed")
		}
	}
	return ev, nil
}

func (s *TradeService) settle(ctx context.Context, side string, userID int64, q *model.Quote, shares int64) (*model.TradeEvent, error) {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	unlock, err := s.locks.Acquire(lockCtx, userID)
	if err != nil {
		return nil, model.StorageFailure(side+": acquire user lock", err)
	}
	defer unlock()

	txn := model.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Symbol:    q.Symbol,
		Name:      q.Name,
		Price:     q.Price,
		Timestamp: s.now(),
	}
	var cashAfter decimal.Decimal

	err = s.ledger.WithUser(ctx, userID, func(tx port.LedgerTx) error {
		cash, err := tx.Cash(ctx)
		if err != nil {
			return err
		}
		switch side {
		case model.SideBuy:
			cashAfter, err = domainservice.SettleBuy(cash, q.Price, shares)
			txn.Shares = shares
		default:
			var position int64
			position, err = tx.NetPosition(ctx, q.Symbol)
			if err != nil {
				return err
			}
			cashAfter, err = domainservice.SettleSell(cash, q.Price, position, shares)
			txn.Shares = -shares
		}
		if err != nil {
			return err
		}
		if err := tx.SetCash(ctx, cashAfter); err != nil {
			return err
		}
		return tx.Append(ctx, &txn)
	})
	if err != nil {
		return nil, storageErr(side, err)
	}

	return &model.TradeEvent{Side: side, UserID: userID, Transaction: txn, Cash: cashAfter}, nil
}

func (s *TradeService) logRejected(side string, userID int64, symbol string, err error) {
	ev := log.Warn()
	if model.KindOf(err) == model.KindStorage {
		ev = log.Error()
	}
	ev.Err(err).
		Int64("user_id", userID).
		Str("side", side).
		Str("symbol", symbol).
		Str("kind", string(model.KindOf(err))).
		Msg("trade rejected")
}
