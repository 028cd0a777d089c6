package di

import (
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/api"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/client"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/indexer"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/ledger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/messenger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/registry"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/repository"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/store"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/wallet"
	sdi "github.com/sarulabs/di/v2"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

var Definitions = []sdi.Def{
	{
		Name: "marketplace.address",
		Build: func(ctn sdi.Container) (interface{}, error) {
			return entity.ParseAddress(config.Get().MarketplaceAddress)
		},
	},
	{
		Name: "event.manager",
		Build: func(ctn sdi.Container) (interface{}, error) {
			return event.NewManager(), nil
		},
		Close: func(obj interface{}) error {
			obj.(*event.Manager).Close()
			return nil
		},
	},
	{
		Name: "registry",
		Build: func(ctn sdi.Container) (interface{}, error) {
			return registry.NewRegistry(ctn.Get("marketplace.address").(entity.Address)), nil
		},
	},
	{
		Name: "wallet",
		Build: func(ctn sdi.Container) (interface{}, error) {
			return wallet.NewWallet(ctn.Get("marketplace.address").(entity.Address)), nil
		},
	},
	{
		Name: "ledger",
		Build: func(ctn sdi.Container) (interface{}, error) {
			return ledger.NewLedger(
				ctn.Get("registry").(registry.Registry),
				ctn.Get("wallet").(wallet.Wallet),
				ctn.Get("event.manager").(*event.Manager),
			), nil
		},
	},
	{
		Name: "snapshot.store",
		Build: func(ctn sdi.Container) (interface{}, error) {
			return store.NewSnapshotStore(config.Get().SnapshotPath, config.Get().SnapshotKeep), nil
		},
	},
	{
		Name: "messenger",
		Build: func(ctn sdi.Container) (interface{}, error) {
			return messenger.NewMessenger(config.Get().AmqpUri, config.Get().Index), nil
		},
		Close: func(obj interface{}) error {
			return obj.(messenger.MessageService).Close()
		},
	},
	{
		Name: "sqs",
		Build: func(ctn sdi.Container) (interface{}, error) {
			aws := config.Get().Aws
			return messenger.NewSqsQueue(aws.AccessKey, aws.SecretKey, aws.Token, aws.Region, aws.QueueUrl)
		},
	},
	{
		Name: "publisher",
		Build: func(ctn sdi.Container) (interface{}, error) {
			switch config.Get().Messenger {
			case config.MessengerAmqp:
				return ctn.SafeGet("messenger")
			case config.MessengerSqs:
				return ctn.SafeGet("sqs")
			case config.MessengerNone, "":
				return nopPublisher{}, nil
			}
			return nil, xerrors.Errorf("unknown messenger %q", config.Get().Messenger)
		},
	},
	{
		Name: "elastic",
		Build: func(ctn sdi.Container) (interface{}, error) {
			elastic, err := elastic_search.New()
			if err != nil {
				zap.L().With(zap.Error(err)).Error("Failed to start ES")
			}
			return elastic, err
		},
	},
	{
		Name: "marketplace.indexer",
		Build: func(ctn sdi.Container) (interface{}, error) {
			return indexer.NewMarketplaceIndexer(
				ctn.Get("elastic").(elastic_search.Index),
				ctn.Get("marketplace.address").(entity.Address),
			), nil
		},
	},
	{
		Name: "action.repo",
		Build: func(ctn sdi.Container) (interface{}, error) {
			return repository.NewActionRepository(ctn.Get("elastic").(elastic_search.Index)), nil
		},
	},
	{
		Name: "api.server",
		Build: func(ctn sdi.Container) (interface{}, error) {
			return api.NewServer(
				ctn.Get("ledger").(*ledger.Ledger),
				ctn.Get("marketplace.address").(entity.Address),
				ctn.Get("registry").(registry.Registry),
				ctn.Get("wallet").(wallet.Wallet),
			), nil
		},
	},
	{
		Name: "client",
		Build: func(ctn sdi.Container) (interface{}, error) {
			c := config.Get().Client
			return client.NewClient(c.ApiUrl, c.Timeout, c.Retries)
		},
	},
}
