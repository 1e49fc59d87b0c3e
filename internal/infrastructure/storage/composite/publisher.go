package composite

import (
	"context"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

type Publisher struct {
	pubs []port.EventPublisher
}

func New(pubs ...port.EventPublisher) *Publisher {
	// nil publishers are allowed; filter in constructor for safety
	out := make([]port.EventPublisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return &Publisher{pubs: out}
}

// PublishTrade delivers to every publisher and returns the first error.
func (p *Publisher) PublishTrade(ctx context.Context, ev *model.TradeEvent) error {
	var firstErr error
	for _, pub := range p.pubs {
		if err := pub.PublishTrade(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Publisher) Len() int { return len(p.pubs) }

var _ port.EventPublisher = (*Publisher)(nil)
