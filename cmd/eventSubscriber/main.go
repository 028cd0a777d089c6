package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config/di"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/indexer"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/log"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/messenger"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"go.uber.org/zap"
)

var (
	marketplaceIndexer indexer.MarketplaceIndexer
	elastic            elastic_search.Index
)

func main() {
	config.Init("eventSubscriber")
	defer log.Flush()

	container, err := di.NewContainer()
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	defer func() { _ = container.Delete() }()

	elastic, err = container.GetElastic()
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to start ES")
	}
	if err := elastic.InstallMappings(); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to install mappings")
	}
	marketplaceIndexer = container.GetMarketplaceIndexer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch config.Get().Messenger {
	case config.MessengerSqs:
		err = pollSqs(ctx, container.GetSqsQueue())
	default:
		zap.L().Info("Subscribing to marketplace events")
		err = container.GetMessenger().ConsumeMessages(ctx, messenger.MarketplaceEvents, handleMessage)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		zap.L().With(zap.Error(err)).Error("Subscriber stopped")
		log.Flush()
		os.Exit(1)
	}
}

func handleMessage(body []byte) error {
	if err := marketplaceIndexer.IndexMessage(body); err != nil {
		var envelope event.Envelope
		if json.Unmarshal(body, &envelope) != nil || errors.Is(err, event.ErrUnknownEvent) {
			// not something a retry can fix
			zap.L().With(zap.Error(err)).Warn("Dropping unreadable message")
			return nil
		}
		return err
	}

	_, err := elastic.Persist()
	return err
}

func pollSqs(ctx context.Context, queue *messenger.SqsQueue) error {
	zap.L().Info("Subscribing to marketplace events on SQS")
	messages := make(chan *sqs.Message, 10)

	errCh := make(chan error, 1)
	go func() { errCh <- queue.PollMessages(ctx, messages) }()

	for message := range messages {
		if err := handleMessage([]byte(aws.StringValue(message.Body))); err != nil {
			zap.L().With(zap.Error(err), zap.String("messageId", aws.StringValue(message.MessageId))).Error("Failed to index message")
			continue
		}
		if err := queue.DeleteMessage(ctx, message); err != nil {
			zap.L().With(zap.Error(err)).Error("Failed to delete message")
		}
	}

	return <-errCh
}
