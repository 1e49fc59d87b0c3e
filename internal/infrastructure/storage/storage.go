package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/application/port"
	"tradesim/internal/domain/model"
)

// Memory is an in-process LedgerStore. WithUser commits atomically but does
// not isolate concurrent calls for the same user; callers serialise per user.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*model.User
	byName map[string]int64
	txs    []model.Transaction
}

// NewMemory creates an empty in-memory ledger
func NewMemory() *Memory {
	return &Memory{
		users:  make(map[int64]*model.User),
		byName: make(map[string]int64),
		txs:    make([]model.Transaction, 0),
	}
}

func (m *Memory) CreateUser(ctx context.Context, username, passwordHash string, cash decimal.Decimal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[username]; ok {
		return 0, model.ErrUsernameTaken
	}
	m.nextID++
	m.users[m.nextID] = &model.User{ID: m.nextID, Username: username, PasswordHash: passwordHash, Cash: cash}
	m.byName[username] = m.nextID
	return m.nextID, nil
}

func (m *Memory) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[username]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	u := *m.users[id]
	return &u, nil
}

func (m *Memory) Account(ctx context.Context, userID int64) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	acct := &model.Account{UserID: userID, Cash: u.Cash}
	for _, symbol := range m.activeSymbolsLocked(userID) {
		acct.Positions = append(acct.Positions, model.Position{Symbol: symbol, Shares: m.positionLocked(userID, symbol)})
	}
	return acct, nil
}

func (m *Memory) History(ctx context.Context, userID int64) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Transaction, 0)
	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].UserID == userID {
			out = append(out, m.txs[i])
		}
	}
	// newest first; equal timestamps keep reverse insertion order
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) ActiveSymbols(ctx context.Context, userID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeSymbolsLocked(userID), nil
}

func (m *Memory) activeSymbolsLocked(userID int64) []string {
	sums := make(map[string]int64)
	for _, t := range m.txs {
		if t.UserID == userID {
			sums[t.Symbol] += t.Shares
		}
	}
	out := make([]string, 0, len(sums))
	for symbol, n := range sums {
		if n > 0 {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Memory) positionLocked(userID int64, symbol string) int64 {
	var n int64
	for _, t := range m.txs {
		if t.UserID == userID && t.Symbol == symbol {
			n += t.Shares
		}
	}
	return n
}

func (m *Memory) WithUser(ctx context.Context, userID int64, fn func(tx port.LedgerTx) error) error {
	m.mu.RLock()
	_, ok := m.users[userID]
	m.mu.RUnlock()
	if !ok {
		return model.ErrUserNotFound
	}

	mt := &memoryTx{m: m, userID: userID}
	if err := fn(mt); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if mt.cashSet {
		m.users[userID].Cash = mt.cash
	}
	m.txs = append(m.txs, mt.pending...)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// memoryTx stages writes until WithUser commits them.
type memoryTx struct {
	m       *Memory
	userID  int64
	cash    decimal.Decimal
	cashSet bool
	pending []model.Transaction
}

func (t *memoryTx) Cash(ctx context.Context) (decimal.Decimal, error) {
	if t.cashSet {
		return t.cash, nil
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	return t.m.users[t.userID].Cash, nil
}

func (t *memoryTx) NetPosition(ctx context.Context, symbol string) (int64, error) {
	t.m.mu.RLock()
	n := t.m.positionLocked(t.userID, symbol)
	t.m.mu.RUnlock()
	for _, p := range t.pending {
		if p.Symbol == symbol {
			n += p.Shares
		}
	}
	return n, nil
}

func (t *memoryTx) SetCash(ctx context.Context, cash decimal.Decimal) error {
	t.cash, t.cashSet = cash, true
	return nil
}

func (t *memoryTx) Append(ctx context.Context, tx *model.Transaction) error {
	row := *tx
	row.UserID = t.userID
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}
	t.pending = append(t.pending, row)
	return nil
}

var (
	_ port.LedgerStore = (*Memory)(nil)
	_ port.LedgerTx    = (*memoryTx)(nil)
)
