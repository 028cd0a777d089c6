package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	custody = addr(0x6d6b)
	buyer   = addr(1)
	seller  = addr(2)
)

func addr(n int) entity.Address {
	return entity.Address(fmt.Sprintf("0x%040x", n))
}

func TestWallet_Deposit(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(custody)

	assert.Equal(t, big.NewInt(0), w.BalanceOf(ctx, buyer))
	assert.ErrorIs(t, w.Deposit(ctx, buyer, big.NewInt(0)), ErrInvalidAmount)
	assert.ErrorIs(t, w.Deposit(ctx, buyer, nil), ErrInvalidAmount)

	require.NoError(t, w.Deposit(ctx, buyer, big.NewInt(5)))
	require.NoError(t, w.Deposit(ctx, buyer, big.NewInt(3)))
	assert.Equal(t, big.NewInt(8), w.BalanceOf(ctx, buyer))
}

func TestWallet_ReceiveAndSendThroughCustody(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(custody)
	require.NoError(t, w.Deposit(ctx, buyer, big.NewInt(10)))

	assert.ErrorIs(t, w.Receive(ctx, buyer, big.NewInt(11)), ErrInsufficientFunds)
	require.NoError(t, w.Receive(ctx, buyer, big.NewInt(7)))

	assert.Equal(t, big.NewInt(3), w.BalanceOf(ctx, buyer))
	assert.Equal(t, big.NewInt(7), w.BalanceOf(ctx, w.Custody()))

	assert.ErrorIs(t, w.Send(ctx, seller, big.NewInt(8)), ErrInsufficientFunds)
	require.NoError(t, w.Send(ctx, seller, big.NewInt(7)))

	assert.Equal(t, big.NewInt(7), w.BalanceOf(ctx, seller))
	assert.Equal(t, big.NewInt(0), w.BalanceOf(ctx, w.Custody()))
}

func TestWallet_BalanceIsACopy(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(custody)
	require.NoError(t, w.Deposit(ctx, buyer, big.NewInt(5)))

	w.BalanceOf(ctx, buyer).SetInt64(100)
	assert.Equal(t, big.NewInt(5), w.BalanceOf(ctx, buyer))
}

func TestWallet_ConcurrentMovesConserveFunds(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(custody)
	require.NoError(t, w.Deposit(ctx, buyer, big.NewInt(100)))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Receive(ctx, buyer, big.NewInt(3))
		}()
	}
	wg.Wait()

	total := new(big.Int).Add(w.BalanceOf(ctx, buyer), w.BalanceOf(ctx, custody))
	assert.Equal(t, big.NewInt(100), total)
	assert.Equal(t, big.NewInt(1), w.BalanceOf(ctx, buyer))
}
