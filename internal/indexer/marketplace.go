package indexer

import (
	"encoding/json"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// MarketplaceIndexer turns committed marketplace events into buffered
// MarketplaceAction documents.
type MarketplaceIndexer interface {
	IndexEvent(envelope event.Envelope) error
	IndexMessage(body []byte) error
}

type marketplaceIndexer struct {
	elastic     elastic_search.Index
	marketplace entity.Address
}

func NewMarketplaceIndexer(elastic elastic_search.Index, marketplace entity.Address) MarketplaceIndexer {
	return marketplaceIndexer{elastic, marketplace}
}

func (i marketplaceIndexer) IndexMessage(body []byte) error {
	var envelope event.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		zap.L().With(zap.Error(err)).Error("MarketplaceIndexer: Failed to read message")
		return xerrors.Errorf("decode envelope: %w", err)
	}

	return i.IndexEvent(envelope)
}

func (i marketplaceIndexer) IndexEvent(envelope event.Envelope) error {
	ev, err := envelope.Decode()
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("id", envelope.Id)).Error("MarketplaceIndexer: Failed to decode event")
		return err
	}

	action := entity.MarketplaceAction{EventId: envelope.Id, Time: envelope.Time}
	var reqAction elastic_search.RequestAction

	switch e := ev.(type) {
	case entity.ItemListed:
		i.executeListing(&action, e.Asset, e.Seller)
		action.Action = entity.MarketplaceListingAction
		action.Price = entity.AmountString(e.Price)
		reqAction = elastic_search.MarketplaceListing

	case entity.ListingUpdated:
		i.executeListing(&action, e.Asset, e.Seller)
		action.Action = entity.MarketplaceUpdateAction
		action.Price = entity.AmountString(e.NewPrice)
		reqAction = elastic_search.MarketplaceUpdate

	case entity.ItemCanceled:
		i.executeListing(&action, e.Asset, e.Seller)
		action.Action = entity.MarketplaceDelistingAction
		reqAction = elastic_search.MarketplaceDelisting

	case entity.ItemBought:
		i.executeListing(&action, e.Asset, e.Seller)
		action.Action = entity.MarketplaceSaleAction
		action.To = e.Buyer.String()
		action.Price = entity.AmountString(e.Price)
		action.Paid = entity.AmountString(e.Paid)
		reqAction = elastic_search.MarketplaceSale

	case entity.ProceedsWithdrawn:
		action.Action = entity.MarketplaceWithdrawalAction
		action.From = i.marketplace.String()
		action.To = e.Seller.String()
		action.Price = entity.AmountString(e.Amount)
		reqAction = elastic_search.MarketplaceWithdrawal
	}

	zap.L().With(
		zap.String("id", action.EventId),
		zap.String("action", string(action.Action)),
		zap.String("registry", action.Registry),
		zap.Uint64("tokenId", action.TokenId),
	).Info("MarketplaceIndexer: Index action")

	i.elastic.AddIndexRequest(elastic_search.MarketplaceActionIndex.Get(), action, reqAction)

	return nil
}

func (i marketplaceIndexer) executeListing(action *entity.MarketplaceAction, asset entity.AssetKey, seller entity.Address) {
	action.Registry = asset.Registry.String()
	action.TokenId = asset.TokenId
	action.From = seller.String()
}
