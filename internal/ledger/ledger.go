package ledger

import (
	"context"
	"math/big"
	"sync"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// Ledger owns every listing and every seller's proceeds. Top-level invocations
// are serialised; an invocation made by a collaborator during one of the
// ledger's external calls is reentrant and runs inside the caller's invocation.
type Ledger struct {
	mu       sync.Mutex
	registry AssetRegistry
	payments Payments
	emitter  Emitter

	listings map[entity.AssetKey]entity.Listing
	proceeds map[entity.Address]*big.Int
	seq      uint64

	// committed event batches waiting for the emitter, oldest first
	outbox   [][]entity.Event
	flushing bool
}

type invocationKey struct{}

type invocation struct {
	ledger  *Ledger
	journal *journal
}

func NewLedger(registry AssetRegistry, payments Payments, emitter Emitter) *Ledger {
	if emitter == nil {
		emitter = nopEmitter{}
	}

	return &Ledger{
		registry: registry,
		payments: payments,
		emitter:  emitter,
		listings: make(map[entity.AssetKey]entity.Listing),
		proceeds: make(map[entity.Address]*big.Int),
	}
}

func (l *Ledger) ListItem(ctx context.Context, key entity.AssetKey, price *big.Int, caller entity.Address) error {
	return l.execute(ctx, "ListItem", func(ctx context.Context, tx *txn) error {
		if _, listed := l.listings[key]; listed {
			return xerrors.Errorf("list %s: %w", key, ErrAlreadyListed)
		}
		if price == nil || price.Sign() <= 0 {
			return xerrors.Errorf("list %s: %w", key, ErrInvalidPrice)
		}

		owner, err := l.registry.OwnerOf(ctx, key)
		if err != nil {
			return xerrors.Errorf("list %s: owner lookup: %w", key, err)
		}
		if owner != caller {
			return xerrors.Errorf("list %s: %w", key, ErrNotOwner)
		}

		approved, err := l.registry.IsApprovedForMarketplace(ctx, key, owner)
		if err != nil {
			return xerrors.Errorf("list %s: approval lookup: %w", key, err)
		}
		if !approved {
			return xerrors.Errorf("list %s: %w", key, ErrNotApproved)
		}

		// the registry lookups are calls out of the ledger, check again
		if _, listed := l.listings[key]; listed {
			return xerrors.Errorf("list %s: %w", key, ErrAlreadyListed)
		}

		listing := entity.Listing{Seller: caller, Price: new(big.Int).Set(price)}
		tx.putListing(key, listing)
		tx.emit(entity.ItemListed{Seller: caller, Asset: key, Price: new(big.Int).Set(price)})

		zap.L().With(
			zap.String("asset", key.String()),
			zap.String("seller", caller.String()),
			zap.String("price", price.String()),
		).Info("Ledger: Item listed")

		return nil
	})
}

func (l *Ledger) CancelListing(ctx context.Context, key entity.AssetKey, caller entity.Address) error {
	return l.execute(ctx, "CancelListing", func(ctx context.Context, tx *txn) error {
		listing, listed := l.listings[key]
		if !listed {
			return xerrors.Errorf("cancel %s: %w", key, ErrNotListed)
		}
		if listing.Seller != caller {
			return xerrors.Errorf("cancel %s: %w", key, ErrNotOwner)
		}

		tx.deleteListing(key)
		tx.emit(entity.ItemCanceled{Seller: listing.Seller, Asset: key})

		zap.L().With(
			zap.String("asset", key.String()),
			zap.String("seller", caller.String()),
		).Info("Ledger: Listing canceled")

		return nil
	})
}

func (l *Ledger) UpdateListing(ctx context.Context, key entity.AssetKey, newPrice *big.Int, caller entity.Address) error {
	return l.execute(ctx, "UpdateListing", func(ctx context.Context, tx *txn) error {
		listing, listed := l.listings[key]
		if !listed {
			return xerrors.Errorf("update %s: %w", key, ErrNotListed)
		}
		if listing.Seller != caller {
			return xerrors.Errorf("update %s: %w", key, ErrNotOwner)
		}
		if newPrice == nil || newPrice.Sign() <= 0 {
			return xerrors.Errorf("update %s: %w", key, ErrInvalidPrice)
		}

		tx.putListing(key, entity.Listing{Seller: listing.Seller, Price: new(big.Int).Set(newPrice)})
		tx.emit(entity.ListingUpdated{Seller: listing.Seller, Asset: key, NewPrice: new(big.Int).Set(newPrice)})

		zap.L().With(
			zap.String("asset", key.String()),
			zap.String("seller", caller.String()),
			zap.String("price", newPrice.String()),
		).Info("Ledger: Listing updated")

		return nil
	})
}

// BuyItem sells a listed asset to caller. The whole payment is credited to the
// seller; anything paid above the listing price is kept as proceeds.
func (l *Ledger) BuyItem(ctx context.Context, key entity.AssetKey, caller entity.Address, payment *big.Int) error {
	return l.execute(ctx, "BuyItem", func(ctx context.Context, tx *txn) error {
		listing, listed := l.listings[key]
		if !listed {
			return xerrors.Errorf("buy %s: %w", key, ErrNotListed)
		}
		if payment == nil || payment.Cmp(listing.Price) < 0 {
			return xerrors.Errorf("buy %s: %w", key, ErrInsufficientPayment)
		}
		paid := new(big.Int).Set(payment)

		tx.deleteListing(key)
		tx.credit(listing.Seller, paid)
		tx.emit(entity.ItemBought{
			Buyer:  caller,
			Seller: listing.Seller,
			Asset:  key,
			Price:  new(big.Int).Set(listing.Price),
			Paid:   paid,
		})

		err := tx.call(ctx, "receive payment",
			func(ctx context.Context) error { return l.payments.Receive(ctx, caller, paid) },
			func(ctx context.Context) error { return l.payments.Send(ctx, caller, paid) },
		)
		if err != nil {
			return xerrors.Errorf("buy %s: %w", key, err)
		}

		err = tx.call(ctx, "transfer asset",
			func(ctx context.Context) error { return l.registry.Transfer(ctx, key, listing.Seller, caller) },
			func(ctx context.Context) error { return l.registry.Reclaim(ctx, key, caller, listing.Seller) },
		)
		if err != nil {
			return xerrors.Errorf("buy %s: %w", key, err)
		}

		zap.L().With(
			zap.String("asset", key.String()),
			zap.String("seller", listing.Seller.String()),
			zap.String("buyer", caller.String()),
			zap.String("price", listing.Price.String()),
			zap.String("paid", paid.String()),
		).Info("Ledger: Item bought")

		return nil
	})
}

func (l *Ledger) WithdrawProceeds(ctx context.Context, caller entity.Address) error {
	return l.execute(ctx, "WithdrawProceeds", func(ctx context.Context, tx *txn) error {
		if balance, ok := l.proceeds[caller]; !ok || balance.Sign() <= 0 {
			return xerrors.Errorf("withdraw %s: %w", caller, ErrNoProceeds)
		}

		amount := tx.zeroProceeds(caller)
		tx.emit(entity.ProceedsWithdrawn{Seller: caller, Amount: new(big.Int).Set(amount)})

		err := tx.call(ctx, "send proceeds",
			func(ctx context.Context) error { return l.payments.Send(ctx, caller, amount) },
			func(ctx context.Context) error { return l.payments.Receive(ctx, caller, amount) },
		)
		if err != nil {
			return xerrors.Errorf("withdraw %s: %w", caller, err)
		}

		zap.L().With(
			zap.String("seller", caller.String()),
			zap.String("amount", amount.String()),
		).Info("Ledger: Proceeds withdrawn")

		return nil
	})
}

// Lookup reports the listing for key and whether the asset is listed at all.
func (l *Ledger) Lookup(ctx context.Context, key entity.AssetKey) (entity.Listing, bool) {
	var (
		listing entity.Listing
		listed  bool
	)
	l.view(ctx, func() {
		listing, listed = l.listings[key]
		listing = listing.Copy()
	})

	return listing, listed
}

// GetListing returns the listing for key, or the empty Listing when unlisted.
func (l *Ledger) GetListing(ctx context.Context, key entity.AssetKey) entity.Listing {
	listing, listed := l.Lookup(ctx, key)
	if !listed {
		return entity.Listing{Price: new(big.Int)}
	}

	return listing
}

func (l *Ledger) GetProceeds(ctx context.Context, addr entity.Address) *big.Int {
	balance := new(big.Int)
	l.view(ctx, func() {
		if b, ok := l.proceeds[addr]; ok {
			balance.Set(b)
		}
	})

	return balance
}

func (l *Ledger) execute(ctx context.Context, op string, fn func(ctx context.Context, tx *txn) error) error {
	if inv, nested := l.invocationFrom(ctx); nested {
		return l.apply(ctx, inv, op, fn)
	}

	if err := l.executeTopLevel(ctx, op, fn); err != nil {
		return err
	}

	l.flush()

	return nil
}

func (l *Ledger) executeTopLevel(ctx context.Context, op string, fn func(ctx context.Context, tx *txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv := &invocation{ledger: l, journal: &journal{}}
	if err := l.apply(context.WithValue(ctx, invocationKey{}, inv), inv, op, fn); err != nil {
		return err
	}
	l.seq++
	l.outbox = append(l.outbox, inv.journal.events)

	return nil
}

// flush hands queued batches to the emitter in commit order. Only one
// goroutine drains at a time; a commit that lands while another goroutine is
// draining, including one made by a listener, is emitted by that goroutine.
func (l *Ledger) flush() {
	l.mu.Lock()
	if l.flushing {
		l.mu.Unlock()
		return
	}
	l.flushing = true
	l.mu.Unlock()

	for {
		l.mu.Lock()
		if len(l.outbox) == 0 {
			l.flushing = false
			l.mu.Unlock()
			return
		}
		batch := l.outbox[0]
		l.outbox[0] = nil
		l.outbox = l.outbox[1:]
		l.mu.Unlock()

		l.emitBatch(batch)
	}
}

func (l *Ledger) emitBatch(batch []entity.Event) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().With(zap.Any("panic", r)).Error("Ledger: Emitter panicked")
		}
	}()

	l.emitter.Emit(batch...)
}

func (l *Ledger) apply(ctx context.Context, inv *invocation, op string, fn func(ctx context.Context, tx *txn) error) error {
	cp := inv.journal.checkpoint()
	tx := &txn{ledger: l, journal: inv.journal, op: op}

	defer func() {
		if r := recover(); r != nil {
			_ = inv.journal.revertTo(ctx, cp)
			panic(r)
		}
	}()

	err := fn(ctx, tx)
	if err == nil {
		return nil
	}

	zap.L().With(zap.String("op", op), zap.Error(err)).Debug("Ledger: Invocation reverted")

	if rerr := inv.journal.revertTo(ctx, cp); rerr != nil {
		zap.L().With(zap.String("op", op), zap.Error(rerr)).Error("Ledger: Failed to compensate external calls")
		return xerrors.Errorf("revert incomplete (%v): %w", rerr, err)
	}

	return err
}

func (l *Ledger) view(ctx context.Context, fn func()) {
	if _, nested := l.invocationFrom(ctx); nested {
		fn()
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

func (l *Ledger) invocationFrom(ctx context.Context) (*invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(*invocation)
	if !ok || inv.ledger != l {
		return nil, false
	}
	return inv, true
}
