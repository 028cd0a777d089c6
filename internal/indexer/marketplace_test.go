package indexer

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	marketplace = entity.Address("0x0000000000000000000000000000000000006d6b")
	seller      = entity.Address("0x0000000000000000000000000000000000000001")
	buyer       = entity.Address("0x0000000000000000000000000000000000000002")
	asset       = entity.AssetKey{Registry: "0x0000000000000000000000000000000000000064", TokenId: 9}
)

func indexOne(t *testing.T, ev entity.Event) (entity.MarketplaceAction, elastic_search.Request) {
	elastic := elastic_search.NewWithClient(nil, "false", 10)
	i := NewMarketplaceIndexer(elastic, marketplace)

	envelope, err := event.NewEnvelope(ev)
	require.NoError(t, err)
	require.NoError(t, i.IndexEvent(envelope))

	requests := elastic.GetRequests()
	require.Len(t, requests, 1)
	action := requests[0].Entity.(entity.MarketplaceAction)
	assert.Equal(t, envelope.Id, action.EventId)
	assert.Equal(t, envelope.Time, action.Time)
	assert.Equal(t, elastic_search.MarketplaceActionIndex.Get(), requests[0].Index)

	return action, requests[0]
}

func TestIndexEvent_Listing(t *testing.T) {
	action, req := indexOne(t, entity.ItemListed{Seller: seller, Asset: asset, Price: big.NewInt(10)})

	assert.Equal(t, entity.MarketplaceListingAction, action.Action)
	assert.Equal(t, elastic_search.MarketplaceListing, req.Action)
	assert.Equal(t, asset.Registry.String(), action.Registry)
	assert.Equal(t, uint64(9), action.TokenId)
	assert.Equal(t, seller.String(), action.From)
	assert.Equal(t, "10", action.Price)
}

func TestIndexEvent_Update(t *testing.T) {
	action, _ := indexOne(t, entity.ListingUpdated{Seller: seller, Asset: asset, NewPrice: big.NewInt(12)})

	assert.Equal(t, entity.MarketplaceUpdateAction, action.Action)
	assert.Equal(t, "12", action.Price)
}

func TestIndexEvent_Delisting(t *testing.T) {
	action, _ := indexOne(t, entity.ItemCanceled{Seller: seller, Asset: asset})

	assert.Equal(t, entity.MarketplaceDelistingAction, action.Action)
	assert.Equal(t, seller.String(), action.From)
	assert.Empty(t, action.Price)
}

func TestIndexEvent_Sale(t *testing.T) {
	action, req := indexOne(t, entity.ItemBought{Buyer: buyer, Seller: seller, Asset: asset, Price: big.NewInt(10), Paid: big.NewInt(11)})

	assert.Equal(t, entity.MarketplaceSaleAction, action.Action)
	assert.Equal(t, elastic_search.MarketplaceSale, req.Action)
	assert.Equal(t, seller.String(), action.From)
	assert.Equal(t, buyer.String(), action.To)
	assert.Equal(t, "10", action.Price)
	assert.Equal(t, "11", action.Paid)
}

func TestIndexEvent_Withdrawal(t *testing.T) {
	action, _ := indexOne(t, entity.ProceedsWithdrawn{Seller: seller, Amount: big.NewInt(21)})

	assert.Equal(t, entity.MarketplaceWithdrawalAction, action.Action)
	assert.Equal(t, marketplace.String(), action.From)
	assert.Equal(t, seller.String(), action.To)
	assert.Equal(t, "21", action.Price)
	assert.Empty(t, action.Registry)
}

func TestIndexMessage(t *testing.T) {
	elastic := elastic_search.NewWithClient(nil, "false", 10)
	i := NewMarketplaceIndexer(elastic, marketplace)

	envelope, err := event.NewEnvelope(entity.ItemCanceled{Seller: seller, Asset: asset})
	require.NoError(t, err)
	body, err := json.Marshal(envelope)
	require.NoError(t, err)

	require.NoError(t, i.IndexMessage(body))
	assert.Len(t, elastic.GetRequests(), 1)

	assert.Error(t, i.IndexMessage([]byte("not json")))
	assert.ErrorIs(t, i.IndexMessage([]byte(`{"type":"Nope","payload":{}}`)), event.ErrUnknownEvent)
	assert.Len(t, elastic.GetRequests(), 1)
}
