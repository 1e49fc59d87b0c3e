package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

// Sink 把成交事件逐行打印到终端
type Sink struct {
	mu       sync.Mutex
	out      io.Writer
	currency string
}

func NewSink(currency string) *Sink { return NewSinkTo(os.Stdout, currency) }

func NewSinkTo(out io.Writer, currency string) *Sink {
	return &Sink{out: out, currency: currency}
}

func (s *Sink) PublishTrade(ctx context.Context, ev *model.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, Line(ev, s.currency))
	return err
}

// Line renders ev as "2006-01-02 15:04:05 user=7 BUY 10 AAPL @ $100.00 cash=$9,000.00".
func Line(ev *model.TradeEvent, currency string) string {
	t := ev.Transaction
	shares := t.Shares
	if shares < 0 {
		shares = -shares
	}
	side := "BUY"
	if ev.Side == model.SideSell {
		side = "SELL"
	}
	return fmt.Sprintf("%s user=%d %s %d %s @ %s cash=%s",
		t.Timestamp.Format("2006-01-02 15:04:05"),
		ev.UserID, side, shares, t.Symbol,
		model.FormatMoney(t.Price, currency),
		model.FormatMoney(ev.Cash, currency),
	)
}

var _ port.EventPublisher = (*Sink)(nil)
