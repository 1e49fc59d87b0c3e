package port

import (
	"context"

	"tradesim/internal/domain/model"
)

// EventPublisher fans committed trades out to observers.
type EventPublisher interface {
	PublishTrade(ctx context.Context, ev *model.TradeEvent) error
}
