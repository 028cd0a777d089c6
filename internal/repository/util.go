package repository

import (
	"context"
	"time"

	"github.com/olivere/elastic/v7"
	"go.uber.org/zap"
)

const searchAttempts = 3

func search(ctx context.Context, searchService *elastic.SearchService) (*elastic.SearchResult, error) {
	var result *elastic.SearchResult
	var err error
	for attempt := 1; attempt <= searchAttempts; attempt++ {
		result, err = searchService.Do(ctx)
		if err == nil || err.Error() != "elastic: Error 429 (Too Many Requests)" {
			return result, err
		}

		zap.L().Warn("Elastic: 429 (Too Many Requests)")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	return result, err
}
