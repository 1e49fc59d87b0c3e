package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; the per-user locks above decide who gets it first
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  username TEXT NOT NULL UNIQUE,
  hash TEXT NOT NULL,
  cash TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  user_id INTEGER NOT NULL REFERENCES users(id),
  symbol TEXT NOT NULL,
  name TEXT NOT NULL,
  shares INTEGER NOT NULL,
  price TEXT NOT NULL,
  ts_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_symbol ON transactions(user_id, symbol);
CREATE INDEX IF NOT EXISTS idx_transactions_user_ts ON transactions(user_id, ts_ms);
`)
	return err
}

func (r *Repo) CreateUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users(username, hash, cash, created_at)
		VALUES(?, ?, ?, ?)
	`, username, passwordHash, cash.String(), time.Now().UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, model.ErrUsernameTaken
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx, `SELECT id, username, hash, cash FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Cash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Account reads cash and active positions in one transaction so both belong
// to the same ledger state.
func (r *Repo) Account(ctx context.Context, userID int64) (*model.Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	acct := &model.Account{UserID: userID}
	err = tx.QueryRowContext(ctx, `SELECT cash FROM users WHERE id = ?`, userID).Scan(&acct.Cash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT symbol, SUM(shares) AS total_shares
		FROM transactions
		WHERE user_id = ?
		GROUP BY symbol
		HAVING SUM(shares) > 0
		ORDER BY symbol
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p.Symbol, &p.Shares); err != nil {
			return nil, err
		}
		acct.Positions = append(acct.Positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return acct, nil
}

func (r *Repo) History(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, symbol, name, shares, price, ts_ms
		FROM transactions
		WHERE user_id = ?
		ORDER BY ts_ms DESC, seq DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]model.Transaction, 0)
	for rows.Next() {
		var t model.Transaction
		var ts int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Name, &t.Shares, &t.Price, &ts); err != nil {
			return nil, err
		}
		t.Timestamp = time.UnixMilli(ts)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *Repo) ActiveSymbols(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol
		FROM transactions
		WHERE user_id = ?
		GROUP BY symbol
		HAVING SUM(shares) > 0
		ORDER BY symbol
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	symbols := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// WithUser runs fn in one transaction. The no-op update on the user row takes
// the write lock before anything is read.
func (r *Repo) WithUser(ctx context.Context, userID int64, fn func(tx port.LedgerTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET id = id WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return model.ErrUserNotFound
	}

	if err := fn(&ledgerTx{tx: tx, userID: userID}); err != nil {
		return err
	}
	return tx.Commit()
}

type ledgerTx struct {
	tx     *sql.Tx
	userID int64
}

func (l *ledgerTx) Cash(ctx context.Context) (decimal.Decimal, error) {
	var cash decimal.Decimal
	err := l.tx.QueryRowContext(ctx, `SELECT cash FROM users WHERE id = ?`, l.userID).Scan(&cash)
	return cash, err
}

func (l *ledgerTx) NetPosition(ctx context.Context, symbol string) (int64, error) {
	var shares int64
	err := l.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(shares), 0) FROM transactions WHERE user_id = ? AND symbol = ?
	`, l.userID, symbol).Scan(&shares)
	return shares, err
}

func (l *ledgerTx) SetCash(ctx context.Context, cash decimal.Decimal) error {
	_, err := l.tx.ExecContext(ctx, `UPDATE users SET cash = ? WHERE id = ?`, cash.String(), l.userID)
	return err
}

func (l *ledgerTx) Append(ctx context.Context, t *model.Transaction) error {
	_, err := l.tx.ExecContext(ctx, `
		INSERT INTO transactions(id, user_id, symbol, name, shares, price, ts_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, t.ID, l.userID, t.Symbol, t.Name, t.Shares, t.Price.String(), t.Timestamp.UnixMilli())
	return err
}

var (
	_ port.LedgerStore = (*Repo)(nil)
	_ port.LedgerTx    = (*ledgerTx)(nil)
)
