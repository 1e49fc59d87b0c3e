package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

// Repo keeps shared quote cache entries and publishes trade events.
type Repo struct {
	rdb         *redis.Client
	prefix      string
	quoteTTL    time.Duration
	eventStream string
	eventChan   string
}

type cachedQuote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Ts     int64           `json:"ts"`
}

func New(rdb *redis.Client, prefix string, quoteTTL time.Duration, eventStream, eventChan string) *Repo {
	if strings.TrimSpace(prefix) == "" {
		prefix = "tradesim"
	}
	if strings.TrimSpace(eventStream) == "" {
		eventStream = prefix + ":trades"
	}
	if strings.TrimSpace(eventChan) == "" {
		eventChan = prefix + ":trades:pub"
	}
	return &Repo{
		rdb:         rdb,
		prefix:      prefix,
		quoteTTL:    quoteTTL,
		eventStream: eventStream,
		eventChan:   eventChan,
	}
}

func (r *Repo) quoteKey(symbol string) string {
	return r.prefix + ":quote:" + symbol
}

func (r *Repo) GetQuote(ctx context.Context, symbol string) (*model.Quote, bool, error) {
	b, err := r.rdb.Get(ctx, r.quoteKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var cq cachedQuote
	if err := json.Unmarshal(b, &cq); err != nil {
		return nil, false, err
	}
	return &model.Quote{Symbol: cq.Symbol, Name: cq.Name, Price: cq.Price}, true, nil
}

func (r *Repo) PutQuote(ctx context.Context, q *model.Quote) error {
	if !q.Price.IsPositive() || r.quoteTTL <= 0 {
		return nil
	}
	b, err := json.Marshal(cachedQuote{Symbol: q.Symbol, Name: q.Name, Price: q.Price, Ts: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.quoteKey(q.Symbol), b, r.quoteTTL).Err()
}

// PublishTrade appends the event to a stream for durable consumers and
// publishes it for live subscribers.
func (r *Repo) PublishTrade(ctx context.Context, ev *model.TradeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: r.eventStream,
		Values: eventValues(ev, payload),
	})
	pipe.Publish(ctx, r.eventChan, payload)
	_, err = pipe.Exec(ctx)
	return err
}

func eventValues(ev *model.TradeEvent, payload []byte) map[string]any {
	return map[string]any{
		"ts_ms":   ev.Transaction.Timestamp.UnixMilli(),
		"user_id": ev.UserID,
		"side":    ev.Side,
		"symbol":  ev.Transaction.Symbol,
		"shares":  ev.Transaction.Shares,
		"price":   ev.Transaction.Price.String(),
		"payload": string(payload),
	}
}

var (
	_ port.QuoteCache     = (*Repo)(nil)
	_ port.EventPublisher = (*Repo)(nil)
)
