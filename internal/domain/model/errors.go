package model

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindUnknownSymbol      Kind = "unknown_symbol"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindInsufficientShares Kind = "insufficient_shares"
	KindQuoteUnavailable   Kind = "quote_unavailable"
	KindStorage            Kind = "storage"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindUnauthorized       Kind = "unauthorized"
)

// Error carries a stable kind and code plus a message fit for the end user.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// with returns a copy of e wrapping cause.
func (e *Error) with(msg string, cause error) *Error {
	out := *e
	if msg != "" {
		out.Msg = msg
	}
	out.Err = cause
	return &out
}

var (
	ErrEmptySymbol       = &Error{Kind: KindValidation, Code: "empty_symbol", Msg: "symbol must not be empty"}
	ErrMissingShares     = &Error{Kind: KindValidation, Code: "missing_shares", Msg: "missing shares"}
	ErrInvalidShareCount = &Error{Kind: KindValidation, Code: "invalid_shares", Msg: "shares must be a whole number not less than 1"}
	ErrMissingField      = &Error{Kind: KindValidation, Code: "missing_field", Msg: "field must not be empty"}
	ErrPasswordMismatch  = &Error{Kind: KindValidation, Code: "password_mismatch", Msg: "passwords do not match"}

	ErrUnknownSymbol      = &Error{Kind: KindUnknownSymbol, Code: "unknown_symbol", Msg: "symbol does not exist"}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds, Code: "insufficient_funds", Msg: "not enough cash"}
	ErrInsufficientShares = &Error{Kind: KindInsufficientShares, Code: "insufficient_shares", Msg: "not enough shares to sell"}
	ErrQuoteUnavailable   = &Error{Kind: KindQuoteUnavailable, Code: "quote_unavailable", Msg: "quote service unavailable"}
	ErrStorage            = &Error{Kind: KindStorage, Code: "storage", Msg: "storage failure"}

	ErrUserNotFound       = &Error{Kind: KindNotFound, Code: "user_not_found", Msg: "user not found"}
	ErrUsernameTaken      = &Error{Kind: KindConflict, Code: "username_taken", Msg: "username is already taken"}
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Code: "invalid_credentials", Msg: "invalid username and/or password"}
)

// QuoteUnavailable wraps an upstream quote failure for symbol.
func QuoteUnavailable(symbol string, cause error) error {
	return ErrQuoteUnavailable.with(fmt.Sprintf("quote unavailable for %s", symbol), cause)
}

// StorageFailure wraps a ledger store failure raised during op.
func StorageFailure(op string, cause error) error {
	return ErrStorage.with(fmt.Sprintf("storage failure during %s", op), cause)
}

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err; unclassified errors count as storage.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindStorage
}
