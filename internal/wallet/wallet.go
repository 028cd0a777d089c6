package wallet

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Wallet is an in-memory native balance book with one custody account held
// by the marketplace. Payments received for purchases sit in custody until
// they are paid out.
type Wallet interface {
	Deposit(ctx context.Context, addr entity.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, addr entity.Address) *big.Int
	Custody() entity.Address

	Receive(ctx context.Context, from entity.Address, amount *big.Int) error
	Send(ctx context.Context, to entity.Address, amount *big.Int) error

	Snapshot(ctx context.Context) Snapshot
	Restore(snap Snapshot) error
}

type wallet struct {
	mu       sync.Mutex
	custody  entity.Address
	balances map[entity.Address]*big.Int
}

func NewWallet(custody entity.Address) Wallet {
	return &wallet{
		custody:  custody,
		balances: make(map[entity.Address]*big.Int),
	}
}

func (w *wallet) Custody() entity.Address {
	return w.custody
}

func (w *wallet) Deposit(_ context.Context, addr entity.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.balances[addr] = new(big.Int).Add(w.balance(addr), amount)

	zap.L().With(zap.String("address", addr.String()), zap.String("amount", amount.String())).Info("Wallet: Deposit")

	return nil
}

func (w *wallet) BalanceOf(_ context.Context, addr entity.Address) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return new(big.Int).Set(w.balance(addr))
}

func (w *wallet) Receive(_ context.Context, from entity.Address, amount *big.Int) error {
	return w.move(from, w.custody, amount)
}

func (w *wallet) Send(_ context.Context, to entity.Address, amount *big.Int) error {
	return w.move(w.custody, to, amount)
}

func (w *wallet) move(from, to entity.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	balance := w.balance(from)
	if balance.Cmp(amount) < 0 {
		zap.L().With(
			zap.String("from", from.String()),
			zap.String("balance", balance.String()),
			zap.String("amount", amount.String()),
		).Warn("Wallet: Insufficient funds")
		return ErrInsufficientFunds
	}

	w.balances[from] = new(big.Int).Sub(balance, amount)
	w.balances[to] = new(big.Int).Add(w.balance(to), amount)

	zap.L().With(
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("amount", amount.String()),
	).Debug("Wallet: Moved funds")

	return nil
}

func (w *wallet) balance(addr entity.Address) *big.Int {
	if b, ok := w.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}

// Snapshot is a copy of every non-zero balance, custody included.
type Snapshot struct {
	Balances []BalanceRecord `json:"balances"`
}

type BalanceRecord struct {
	Address entity.Address `json:"address"`
	Amount  *big.Int       `json:"amount"`
}

func (w *wallet) Snapshot(_ context.Context) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{Balances: make([]BalanceRecord, 0, len(w.balances))}
	for addr, amount := range w.balances {
		if amount.Sign() == 0 {
			continue
		}
		snap.Balances = append(snap.Balances, BalanceRecord{Address: addr, Amount: new(big.Int).Set(amount)})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return snap.Balances[i].Address < snap.Balances[j].Address
	})

	return snap
}

// Restore replaces every balance with the snapshot's.
func (w *wallet) Restore(snap Snapshot) error {
	balances := make(map[entity.Address]*big.Int, len(snap.Balances))
	for _, rec := range snap.Balances {
		if rec.Amount == nil || rec.Amount.Sign() < 0 {
			return xerrors.Errorf("restore %s: %w", rec.Address, ErrInvalidAmount)
		}
		if _, exists := balances[rec.Address]; exists {
			return xerrors.Errorf("restore %s: duplicate balance", rec.Address)
		}
		if rec.Amount.Sign() > 0 {
			balances[rec.Address] = new(big.Int).Set(rec.Amount)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances = balances

	return nil
}
