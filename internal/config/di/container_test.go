package di

import (
	"context"
	"math/big"
	"testing"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	sdi "github.com/sarulabs/di/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer_WiresSandboxLedger(t *testing.T) {
	t.Setenv("MARKETPLACE_ADDRESS", "0x0000000000000000000000000000000000000abc")
	c, err := NewContainer()
	require.NoError(t, err)
	defer func() { _ = c.Delete() }()

	ctx := context.Background()
	owner := entity.Address("0x0000000000000000000000000000000000000001")
	key := entity.AssetKey{Registry: "0x0000000000000000000000000000000000000064", TokenId: 1}

	assert.Equal(t, entity.Address("0x0000000000000000000000000000000000000abc"), c.GetMarketplaceAddress())
	assert.Same(t, c.GetLedger(), c.GetLedger())

	var committed []event.Envelope
	done := make(chan struct{})
	c.GetEventManager().AddEventListener(event.InvocationCommittedEvent, func(msg interface{}) {
		committed = msg.([]event.Envelope)
		close(done)
	})

	require.NoError(t, c.GetRegistry().Mint(ctx, key, owner))
	require.NoError(t, c.GetRegistry().Approve(ctx, key, owner, c.GetMarketplaceAddress()))
	require.NoError(t, c.GetLedger().ListItem(ctx, key, big.NewInt(3), owner))

	<-done
	require.Len(t, committed, 1)
	assert.Equal(t, event.ItemListedEvent, committed[0].Type)
}

func TestContainer_PublisherSelection(t *testing.T) {
	t.Setenv("MESSENGER", "none")
	c, err := NewContainer()
	require.NoError(t, err)
	p, err := c.GetPublisher()
	require.NoError(t, err)
	assert.True(t, IsNopPublisher(p))

	t.Setenv("MESSENGER", "carrier-pigeon")
	c, err = NewContainer()
	require.NoError(t, err)
	_, err = c.GetPublisher()
	assert.Error(t, err)
}

func TestContainer_DefinitionsCanBeReplaced(t *testing.T) {
	c, err := NewContainer(sdi.Def{
		Name: "marketplace.address",
		Build: func(sdi.Container) (interface{}, error) {
			return entity.Address("0x00000000000000000000000000000000000000ff"), nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, entity.Address("0x00000000000000000000000000000000000000ff"), c.GetMarketplaceAddress())
}
