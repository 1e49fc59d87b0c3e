package port

import (
	"context"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain/model"
)

// LedgerStore is the durable home of users and the transaction ledger.
// Implementations return model.ErrUserNotFound / model.ErrUsernameTaken for
// those conditions and raw driver errors otherwise.
type LedgerStore interface {
	// User operations
	CreateUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (int64, error)
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)

	// Read path
	Account(ctx context.Context, userID int64) (*model.Account, error)
	History(ctx context.Context, userID int64) ([]model.Transaction, error)
	ActiveSymbols(ctx context.Context, userID int64) ([]string, error)

	// Write path: fn runs inside one database transaction scoped to the user.
	// Returning an error from fn rolls everything back.
	WithUser(ctx context.Context, userID int64, fn func(tx LedgerTx) error) error

	// Connection management
	Close() error
}

// LedgerTx is the view of one user's ledger inside a write transaction.
type LedgerTx interface {
	Cash(ctx context.Context) (decimal.Decimal, error)
	NetPosition(ctx context.Context, symbol string) (int64, error)
	SetCash(ctx context.Context, cash decimal.Decimal) error
	Append(ctx context.Context, t *model.Transaction) error
}
