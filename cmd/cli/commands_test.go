package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/api"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/client"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/ledger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/messenger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/registry"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/repository"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	marketplace = "0x0000000000000000000000000000000000006d6b"
	nftRegistry = "0x0000000000000000000000000000000000000064"
	seller      = "0x0000000000000000000000000000000000000001"
	buyer       = "0x0000000000000000000000000000000000000002"
)

type fakeHistory struct {
	asset   entity.AssetKey
	address entity.Address
}

func (f *fakeHistory) GetActionsForAsset(_ context.Context, key entity.AssetKey, _, _ int) ([]entity.MarketplaceAction, int64, error) {
	f.asset = key
	return []entity.MarketplaceAction{{EventId: "e1", Action: entity.MarketplaceSaleAction}}, 1, nil
}

func (f *fakeHistory) GetActionsForAddress(_ context.Context, addr entity.Address, _, _ int) ([]entity.MarketplaceAction, int64, error) {
	f.address = addr
	return nil, 0, nil
}

func newTestApp(t *testing.T, history *fakeHistory) (func(args ...string) (string, error), *ledger.Ledger) {
	addr := entity.Address(marketplace)
	reg := registry.NewRegistry(addr)
	w := wallet.NewWallet(addr)
	l := ledger.NewLedger(reg, w, nil)
	srv := httptest.NewServer(api.NewServer(l, addr, reg, w).Router())
	t.Cleanup(srv.Close)

	c, err := client.NewClient(srv.URL, 5, 0)
	require.NoError(t, err)

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		app := newApp(c,
			func() (repository.ActionRepository, error) { return history, nil },
			func() (messenger.MessageService, error) { return nil, errors.New("amqp disabled") },
			&out,
		)
		err := app.Run(append([]string{"marketplace"}, args...))
		return out.String(), err
	}

	return run, l
}

func TestCli_SellAndBuy(t *testing.T) {
	run, l := newTestApp(t, &fakeHistory{})

	_, err := run("mint", "-r", nftRegistry, "-t", "1", "-o", seller)
	require.NoError(t, err)
	_, err = run("approve", "-r", nftRegistry, "-t", "1", "-o", seller)
	require.NoError(t, err)

	out, err := run("list", "-r", nftRegistry, "-t", "1", "-c", seller, "-p", "50")
	require.NoError(t, err)
	assert.Contains(t, out, `"listed": true`)

	_, err = run("deposit", "-a", buyer, "--amount", "60")
	require.NoError(t, err)

	_, err = run("buy", "-r", nftRegistry, "-t", "1", "-c", buyer, "--payment", "50")
	require.NoError(t, err)

	out, err = run("proceeds", "-a", seller)
	require.NoError(t, err)
	assert.Contains(t, out, `"amount": "50"`)

	_, err = run("withdraw", "-c", seller)
	require.NoError(t, err)

	out, err = run("balance", "-a", buyer)
	require.NoError(t, err)
	assert.Contains(t, out, `"amount": "10"`)

	assert.Equal(t, "0", l.GetProceeds(context.Background(), seller).String())
}

func TestCli_ApiErrorIsReturned(t *testing.T) {
	run, _ := newTestApp(t, &fakeHistory{})

	_, err := run("cancel", "-r", nftRegistry, "-t", "1", "-c", seller)
	var apiErr client.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Status)
}

func TestCli_History(t *testing.T) {
	history := &fakeHistory{}
	run, _ := newTestApp(t, history)

	out, err := run("history", "-r", nftRegistry, "-t", "7")
	require.NoError(t, err)
	assert.Equal(t, entity.AssetKey{Registry: nftRegistry, TokenId: 7}, history.asset)
	assert.Contains(t, out, `"total": 1`)

	_, err = run("history", "-a", buyer)
	require.NoError(t, err)
	assert.Equal(t, entity.Address(buyer), history.address)

	_, err = run("history", "-r", nftRegistry, "-t", "x")
	assert.ErrorIs(t, err, entity.ErrInvalidTokenId)
}

func TestCli_QueueUnavailable(t *testing.T) {
	run, _ := newTestApp(t, &fakeHistory{})

	_, err := run("queue")
	assert.EqualError(t, err, "amqp disabled")
}
