package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

// AccountService covers registration, credential checks and plain quotes.
type AccountService struct {
	ledger       port.LedgerStore
	quotes       port.QuoteProvider
	startingCash decimal.Decimal
	hashCost     int
}

func NewAccountService(ledger port.LedgerStore, quotes port.QuoteProvider, startingCash decimal.Decimal, hashCost int) *AccountService {
	if hashCost <= 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &AccountService{ledger: ledger, quotes: quotes, startingCash: startingCash, hashCost: hashCost}
}

// Register creates a user funded with the starting cash.
func (s *AccountService) Register(ctx context.Context, username, password, confirmation string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || confirmation == "" {
		return 0, model.ErrMissingField
	}
	if password != confirmation {
		return 0, model.ErrPasswordMismatch
	}

	if _, err := s.ledger.FindUserByUsername(ctx, username); err == nil {
		return 0, model.ErrUsernameTaken
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return 0, storageErr("register", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return 0, err
	}
	id, err := s.ledger.CreateUser(ctx, username, string(hash), s.startingCash)
	if err != nil {
		return 0, storageErr("register", err)
	}
	log.Info().Int64("user_id", id).Str("username", username).Msg("user registered")
	return id, nil
}

// Authenticate returns the user id for valid credentials.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, model.ErrMissingField
	}
	u, err := s.ledger.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return 0, model.ErrInvalidCredentials
		}
		return 0, storageErr("login", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return 0, model.ErrInvalidCredentials
	}
	return u.ID, nil
}

// Quote looks up the current price of symbol.
func (s *AccountService) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, model.ErrEmptySymbol
	}
	return resolveQuote(ctx, s.quotes, symbol)
}
