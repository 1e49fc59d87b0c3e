package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type Options struct {
	DSN      string
	MaxConns int
	MinConns int
}

type Repo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, opts Options) (*Repo, error) {
	poolCfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolCfg.MinConns = int32(opts.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &Repo{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  hash TEXT NOT NULL,
  cash NUMERIC NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
  seq BIGSERIAL PRIMARY KEY,
  id TEXT NOT NULL UNIQUE,
  user_id BIGINT NOT NULL REFERENCES users(id),
  symbol TEXT NOT NULL,
  name TEXT NOT NULL,
  shares BIGINT NOT NULL,
  price NUMERIC NOT NULL,
  ts_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_symbol ON transactions(user_id, symbol);
CREATE INDEX IF NOT EXISTS idx_transactions_user_ts ON transactions(user_id, ts_ms);
`)
	return err
}

func (r *Repo) CreateUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users(username, hash, cash, created_at)
		VALUES($1, $2, $3::text::numeric, $4)
		RETURNING id
	`, username, passwordHash, cash.String(), time.Now().UnixMilli()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, model.ErrUsernameTaken
		}
		return 0, err
	}
	return id, nil
}

func (r *Repo) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	var cash string
	err := r.pool.QueryRow(ctx, `SELECT id, username, hash, cash::text FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &cash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, err
	}
	return &u, nil
}

// Account reads cash and positions from one repeatable-read snapshot.
func (r *Repo) Account(ctx context.Context, userID int64) (*model.Account, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	acct := &model.Account{UserID: userID}
	if acct.Cash, err = scanCash(ctx, tx, `SELECT cash::text FROM users WHERE id = $1`, userID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT symbol, SUM(shares)::bigint AS total_shares
		FROM transactions
		WHERE user_id = $1
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
	return acct, tx.Commit(ctx)
}

func (r *Repo) History(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, symbol, name, shares, price::text, ts_ms
		FROM transactions
		WHERE user_id = $1
		ORDER BY ts_ms DESC, seq DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]model.Transaction, 0)
	for rows.Next() {
		var t model.Transaction
		var price string
		var ts int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Name, &t.Shares, &price, &ts); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		t.Timestamp = time.UnixMilli(ts)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *Repo) ActiveSymbols(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT symbol
		FROM transactions
		WHERE user_id = $1
		GROUP BY symbol
		HAVING SUM(shares) > 0
		ORDER BY symbol
	`, userID)
	if err != nil {
		return nil, err
	}
	symbols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if symbols == nil {
		symbols = []string{}
	}
	return symbols, nil
}

// WithUser locks the user row FOR UPDATE before fn runs, so concurrent
// trades for the same user serialise across processes too.
func (r *Repo) WithUser(ctx context.Context, userID int64, fn func(tx port.LedgerTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var one int
	err = tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrUserNotFound
	}
	if err != nil {
		return err
	}

	if err := fn(&ledgerTx{tx: tx, userID: userID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type ledgerTx struct {
	tx     pgx.Tx
	userID int64
}

func (l *ledgerTx) Cash(ctx context.Context) (decimal.Decimal, error) {
	return scanCash(ctx, l.tx, `SELECT cash::text FROM users WHERE id = $1`, l.userID)
}

func (l *ledgerTx) NetPosition(ctx context.Context, symbol string) (int64, error) {
	var shares int64
	err := l.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(shares), 0)::bigint FROM transactions WHERE user_id = $1 AND symbol = $2
	`, l.userID, symbol).Scan(&shares)
	return shares, err
}

func (l *ledgerTx) SetCash(ctx context.Context, cash decimal.Decimal) error {
	_, err := l.tx.Exec(ctx, `UPDATE users SET cash = $1::text::numeric WHERE id = $2`, cash.String(), l.userID)
	return err
}

func (l *ledgerTx) Append(ctx context.Context, t *model.Transaction) error {
	_, err := l.tx.Exec(ctx, `
		INSERT INTO transactions(id, user_id, symbol, name, shares, price, ts_ms)
		VALUES($1, $2, $3, $4, $5, $6::text::numeric, $7)
	`, t.ID, l.userID, t.Symbol, t.Name, t.Shares, t.Price.String(), t.Timestamp.UnixMilli())
	return err
}

func scanCash(ctx context.Context, q pgx.Tx, sql string, userID int64) (decimal.Decimal, error) {
	var cash string
	err := q.QueryRow(ctx, sql, userID).Scan(&cash)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, model.ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(cash)
}

var (
	_ port.LedgerStore = (*Repo)(nil)
	_ port.LedgerTx    = (*ledgerTx)(nil)
)
