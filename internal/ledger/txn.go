package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"
)

type journalEntry struct {
	desc   string
	revert func(ctx context.Context) error
}

// journal records how to undo every mutation and external effect of an
// invocation, including the work of reentrant invocations nested inside it.
type journal struct {
	entries []journalEntry
	events  []entity.Event
}

type checkpoint struct {
	entries int
	events  int
}

func (j *journal) checkpoint() checkpoint {
	return checkpoint{len(j.entries), len(j.events)}
}

func (j *journal) record(desc string, revert func(ctx context.Context) error) {
	j.entries = append(j.entries, journalEntry{desc, revert})
}

// revertTo undoes entries newer than cp in reverse order. Ledger state reverts
// never fail; compensating external calls may, and every failure is returned.
func (j *journal) revertTo(ctx context.Context, cp checkpoint) error {
	var err error
	for i := len(j.entries) - 1; i >= cp.entries; i-- {
		if rerr := j.entries[i].revert(ctx); rerr != nil {
			err = multierr.Append(err, xerrors.Errorf("%s: %w", j.entries[i].desc, rerr))
		}
	}
	j.entries = j.entries[:cp.entries]
	j.events = j.events[:cp.events]

	return err
}

type phase int

const (
	statePhase phase = iota
	effectPhase
)

// txn is the only handle through which an operation touches ledger state.
// Mutations are accepted until the first external call; after that the
// transaction is in its effect phase and any further mutation panics.
type txn struct {
	ledger  *Ledger
	journal *journal
	op      string
	phase   phase
}

func (tx *txn) mustMutate() {
	if tx.phase != statePhase {
		panic(fmt.Sprintf("ledger: %s mutated state after an external call", tx.op))
	}
}

func (tx *txn) putListing(key entity.AssetKey, listing entity.Listing) {
	tx.mustMutate()

	prev, existed := tx.ledger.listings[key]
	tx.ledger.listings[key] = listing
	tx.journal.record("put listing "+key.String(), func(context.Context) error {
		if existed {
			tx.ledger.listings[key] = prev
		} else {
			delete(tx.ledger.listings, key)
		}
		return nil
	})
}

func (tx *txn) deleteListing(key entity.AssetKey) {
	tx.mustMutate()

	prev, existed := tx.ledger.listings[key]
	if !existed {
		return
	}
	delete(tx.ledger.listings, key)
	tx.journal.record("delete listing "+key.String(), func(context.Context) error {
		tx.ledger.listings[key] = prev
		return nil
	})
}

func (tx *txn) credit(addr entity.Address, amount *big.Int) {
	tx.mustMutate()

	prev, existed := tx.ledger.proceeds[addr]
	next := new(big.Int).Set(amount)
	if existed {
		next.Add(next, prev)
	}
	tx.ledger.proceeds[addr] = next
	tx.journal.record("credit "+addr.String(), tx.restoreProceeds(addr, prev, existed))
}

// zeroProceeds clears the balance of addr and returns what it held.
func (tx *txn) zeroProceeds(addr entity.Address) *big.Int {
	tx.mustMutate()

	prev, existed := tx.ledger.proceeds[addr]
	if !existed {
		return new(big.Int)
	}
	delete(tx.ledger.proceeds, addr)
	tx.journal.record("zero proceeds "+addr.String(), tx.restoreProceeds(addr, prev, existed))

	return new(big.Int).Set(prev)
}

func (tx *txn) restoreProceeds(addr entity.Address, prev *big.Int, existed bool) func(context.Context) error {
	return func(context.Context) error {
		if existed {
			tx.ledger.proceeds[addr] = prev
		} else {
			delete(tx.ledger.proceeds, addr)
		}
		return nil
	}
}

func (tx *txn) emit(ev entity.Event) {
	tx.journal.events = append(tx.journal.events, ev)
}

// call performs an external call and moves the transaction into its effect
// phase. When the call succeeds, compensate (if any) is journaled so an
// enclosing invocation that later fails can undo the effect.
func (tx *txn) call(ctx context.Context, step string, fn func(ctx context.Context) error, compensate func(ctx context.Context) error) error {
	tx.phase = effectPhase

	if err := fn(ctx); err != nil {
		return &TransferError{Step: step, Err: err}
	}

	if compensate != nil {
		tx.journal.record("compensate "+step, compensate)
	}

	return nil
}
