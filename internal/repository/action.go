package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/olivere/elastic/v7"
	"go.uber.org/zap"
)

var (
	ErrInvalidPage = errors.New("invalid page")
)

const maxPageSize = 100

type ActionRepository interface {
	GetActionsForAsset(ctx context.Context, key entity.AssetKey, size, page int) ([]entity.MarketplaceAction, int64, error)
	GetActionsForAddress(ctx context.Context, addr entity.Address, size, page int) ([]entity.MarketplaceAction, int64, error)
}

type actionRepository struct {
	elastic elastic_search.Index
}

func NewActionRepository(elastic elastic_search.Index) ActionRepository {
	return actionRepository{elastic}
}

// GetActionsForAsset returns one page of an asset's history, newest first,
// with the total number of matching actions.
func (r actionRepository) GetActionsForAsset(ctx context.Context, key entity.AssetKey, size, page int) ([]entity.MarketplaceAction, int64, error) {
	query := elastic.NewBoolQuery().Must(
		elastic.NewTermQuery("registry", key.Registry.String()),
		elastic.NewTermQuery("tokenId", key.TokenId),
	)

	return r.findMany(ctx, query, size, page)
}

// GetActionsForAddress returns actions where addr was either party.
func (r actionRepository) GetActionsForAddress(ctx context.Context, addr entity.Address, size, page int) ([]entity.MarketplaceAction, int64, error) {
	query := elastic.NewBoolQuery().
		Should(
			elastic.NewTermQuery("from", addr.String()),
			elastic.NewTermQuery("to", addr.String()),
		).
		MinimumNumberShouldMatch(1)

	return r.findMany(ctx, query, size, page)
}

func (r actionRepository) findMany(ctx context.Context, query elastic.Query, size, page int) ([]entity.MarketplaceAction, int64, error) {
	if size < 1 || page < 1 {
		return nil, 0, ErrInvalidPage
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	results, err := search(ctx, r.elastic.GetClient().
		Search(elastic_search.MarketplaceActionIndex.Get()).
		Query(query).
		Sort("time", false).
		Size(size).
		From((page-1)*size).
		TrackTotalHits(true))
	if err != nil {
		zap.L().With(zap.Error(err)).Error("ActionRepository: Search failed")
		return nil, 0, err
	}

	actions := make([]entity.MarketplaceAction, 0, len(results.Hits.Hits))
	for _, hit := range results.Hits.Hits {
		var action entity.MarketplaceAction
		if err := json.Unmarshal(hit.Source, &action); err != nil {
			zap.L().With(zap.Error(err), zap.String("id", hit.Id)).Error("ActionRepository: Failed to unmarshal action")
			continue
		}
		actions = append(actions, action)
	}

	return actions, results.TotalHits(), nil
}
