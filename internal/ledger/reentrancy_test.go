package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/registry"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReentrantBuyDuringAssetTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.ledger.ListItem(ctx, nftX, eth(1), seller))

	var (
		calls            int
		innerErr         error
		observedListed   bool
		observedProceeds *big.Int
	)
	f.registry.onTransfer = func(ctx context.Context) {
		calls++
		if calls > 1 {
			return
		}
		innerErr = f.ledger.BuyItem(ctx, nftX, other, eth(1))
		_, observedListed = f.ledger.Lookup(ctx, nftX)
		observedProceeds = f.ledger.GetProceeds(ctx, seller)
	}

	require.NoError(t, f.ledger.BuyItem(ctx, nftX, buyer, eth(1)))

	assert.ErrorIs(t, innerErr, ErrNotListed)
	assert.False(t, observedListed)
	assert.Equal(t, eth(1), observedProceeds)

	assert.Equal(t, buyer, f.registry.owners[nftX])
	assert.Equal(t, 1, f.registry.transfers)
	assert.Equal(t, eth(1), f.ledger.GetProceeds(ctx, seller))
	assert.Len(t, f.payments.received, 1)
}

func TestReentrantCancelDuringAssetTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.ledger.ListItem(ctx, nftX, eth(1), seller))

	var innerErr error
	f.registry.onTransfer = func(ctx context.Context) {
		innerErr = f.ledger.CancelListing(ctx, nftX, seller)
	}

	require.NoError(t, f.ledger.BuyItem(ctx, nftX, buyer, eth(1)))
	assert.ErrorIs(t, innerErr, ErrNotListed)
}

func TestReentrantWithdrawDuringPayout(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.ledger.ListItem(ctx, nftX, eth(2), seller))
	require.NoError(t, f.ledger.BuyItem(ctx, nftX, buyer, eth(2)))

	var (
		innerErr error
		observed *big.Int
	)
	f.payments.onSend = func(ctx context.Context) {
		innerErr = f.ledger.WithdrawProceeds(ctx, seller)
		observed = f.ledger.GetProceeds(ctx, seller)
	}

	require.NoError(t, f.ledger.WithdrawProceeds(ctx, seller))

	assert.ErrorIs(t, innerErr, ErrNoProceeds)
	assert.Equal(t, eth(0), observed)
	assert.Equal(t, []payment{{seller, eth(2)}}, f.payments.sent)
	assert.Equal(t, eth(0), f.ledger.GetProceeds(ctx, seller))
}

func TestNestedInvocationRevertsWithOuterFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.ledger.ListItem(ctx, nftX, eth(2), seller))
	require.NoError(t, f.ledger.BuyItem(ctx, nftX, buyer, eth(2)))

	var nestedErr error
	f.payments.onSend = func(ctx context.Context) {
		nestedErr = f.ledger.ListItem(ctx, nftY, eth(7), seller)
	}
	f.payments.sendErr = errors.New("payout rejected")

	err := f.ledger.WithdrawProceeds(ctx, seller)
	assert.ErrorIs(t, err, ErrTransferFailed)
	require.NoError(t, nestedErr)

	_, listed := f.ledger.Lookup(ctx, nftY)
	assert.False(t, listed)
	assert.Equal(t, eth(2), f.ledger.GetProceeds(ctx, seller))
	assert.Equal(t, []entity.EventType{entity.ItemListedEvent, entity.ItemBoughtEvent}, f.emitter.types())
}

func TestNestedInvocationEventsPublishWithOuterCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.ledger.ListItem(ctx, nftX, eth(2), seller))
	require.NoError(t, f.ledger.BuyItem(ctx, nftX, buyer, eth(2)))

	var during []entity.EventType
	f.payments.onSend = func(ctx context.Context) {
		require.NoError(t, f.ledger.ListItem(ctx, nftY, eth(7), seller))
		during = f.emitter.types()
	}

	require.NoError(t, f.ledger.WithdrawProceeds(ctx, seller))

	// nothing is published while the outer invocation is still running
	assert.Len(t, during, 2)
	assert.Equal(t, []entity.EventType{
		entity.ItemListedEvent,
		entity.ItemBoughtEvent,
		entity.ProceedsWithdrawnEvent,
		entity.ItemListedEvent,
	}, f.emitter.types())

	_, listed := f.ledger.Lookup(ctx, nftY)
	assert.True(t, listed)
}

func TestReentrantListDuringOwnerLookupKeepsListingUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	var (
		calls     int
		nestedErr error
	)
	f.registry.onOwnerOf = func(ctx context.Context) {
		calls++
		if calls > 1 {
			return
		}
		nestedErr = f.ledger.ListItem(ctx, nftX, eth(9), seller)
	}

	err := f.ledger.ListItem(ctx, nftX, eth(1), seller)
	assert.ErrorIs(t, err, ErrAlreadyListed)
	require.NoError(t, nestedErr)

	_, listed := f.ledger.Lookup(ctx, nftX)
	assert.False(t, listed)
	assert.Empty(t, f.emitter.events)
}

func TestFailedCompensationIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.ledger.ListItem(ctx, nftX, eth(1), seller))

	f.registry.transferErr = errors.New("transfer rejected")
	f.payments.sendErr = errors.New("refund rejected")

	err := f.ledger.BuyItem(ctx, nftX, buyer, eth(1))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Contains(t, err.Error(), "refund rejected")

	// ledger state is restored regardless
	_, listed := f.ledger.Lookup(ctx, nftX)
	assert.True(t, listed)
	assert.Equal(t, eth(0), f.ledger.GetProceeds(ctx, seller))
}

func TestReentrancyIsScopedToTheSameLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	g := newFixture()
	require.NoError(t, f.ledger.ListItem(ctx, nftX, eth(1), seller))

	var innerErr error
	f.registry.onTransfer = func(ctx context.Context) {
		// a different ledger called with this context takes its own lock
		innerErr = g.ledger.ListItem(ctx, nftX, eth(3), seller)
	}

	require.NoError(t, f.ledger.BuyItem(ctx, nftX, buyer, eth(1)))
	require.NoError(t, innerErr)
	assert.Equal(t, []entity.EventType{entity.ItemListedEvent}, g.emitter.types())
}

// payoutHook fails payouts to failFor after running before, and otherwise
// moves real wallet funds.
type payoutHook struct {
	wallet.Wallet
	failFor entity.Address
	before  func(ctx context.Context)
}

func (p *payoutHook) Send(ctx context.Context, to entity.Address, amount *big.Int) error {
	if to == p.failFor {
		if p.before != nil {
			p.before(ctx)
			p.before = nil
		}
		return errors.New("payout rejected")
	}
	return p.Wallet.Send(ctx, to, amount)
}

func TestNestedPurchaseIsFullyUndoneWithOuterFailure(t *testing.T) {
	ctx := context.Background()
	marketplace := testAddr(0x6d6b)
	reg := registry.NewRegistry(marketplace)
	w := wallet.NewWallet(marketplace)
	payments := &payoutHook{Wallet: w}
	l := NewLedger(reg, payments, nil)

	for _, key := range []entity.AssetKey{nftX, nftY} {
		require.NoError(t, reg.Mint(ctx, key, seller))
		require.NoError(t, reg.Approve(ctx, key, seller, marketplace))
	}
	require.NoError(t, w.Deposit(ctx, buyer, eth(10)))
	require.NoError(t, l.ListItem(ctx, nftX, eth(2), seller))
	require.NoError(t, l.ListItem(ctx, nftY, eth(3), seller))
	require.NoError(t, l.BuyItem(ctx, nftX, buyer, eth(2)))

	var nestedErr error
	payments.failFor = seller
	payments.before = func(ctx context.Context) {
		nestedErr = l.BuyItem(ctx, nftY, buyer, eth(3))
	}

	err := l.WithdrawProceeds(ctx, seller)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.NotContains(t, err.Error(), "revert incomplete")
	require.NoError(t, nestedErr)

	owner, err := reg.OwnerOf(ctx, nftY)
	require.NoError(t, err)
	assert.Equal(t, seller, owner)
	approved, err := reg.IsApprovedForMarketplace(ctx, nftY, seller)
	require.NoError(t, err)
	assert.True(t, approved)

	_, listed := l.Lookup(ctx, nftY)
	assert.True(t, listed)
	assert.Equal(t, eth(2), l.GetProceeds(ctx, seller))
	assert.Equal(t, eth(8), w.BalanceOf(ctx, buyer))
	assert.Equal(t, eth(2), w.BalanceOf(ctx, marketplace))

	// the restored listing still sells
	payments.failFor = ""
	require.NoError(t, l.BuyItem(ctx, nftY, buyer, eth(3)))
	owner, err = reg.OwnerOf(ctx, nftY)
	require.NoError(t, err)
	assert.Equal(t, buyer, owner)
}
