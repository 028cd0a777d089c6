package di

import (
	"context"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/api"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/client"
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
)

// Container exposes typed getters over the definitions. Objects are built
// lazily on first use and shared for the life of the container.
type Container struct {
	ctn sdi.Container
}

func NewContainer(defs ...sdi.Def) (*Container, error) {
	builder, err := sdi.NewBuilder()
	if err != nil {
		return nil, err
	}

	if err := builder.Add(Definitions...); err != nil {
		return nil, err
	}
	// later definitions replace earlier ones with the same name
	if err := builder.Add(defs...); err != nil {
		return nil, err
	}

	return &Container{builder.Build()}, nil
}

func (c *Container) Delete() error {
	return c.ctn.Delete()
}

func (c *Container) GetMarketplaceAddress() entity.Address {
	return c.ctn.Get("marketplace.address").(entity.Address)
}

func (c *Container) GetEventManager() *event.Manager {
	return c.ctn.Get("event.manager").(*event.Manager)
}

func (c *Container) GetRegistry() registry.Registry {
	return c.ctn.Get("registry").(registry.Registry)
}

func (c *Container) GetWallet() wallet.Wallet {
	return c.ctn.Get("wallet").(wallet.Wallet)
}

func (c *Container) GetLedger() *ledger.Ledger {
	return c.ctn.Get("ledger").(*ledger.Ledger)
}

func (c *Container) GetSnapshotStore() store.SnapshotStore {
	return c.ctn.Get("snapshot.store").(store.SnapshotStore)
}

func (c *Container) GetMessenger() messenger.MessageService {
	return c.ctn.Get("messenger").(messenger.MessageService)
}

func (c *Container) GetSqsQueue() *messenger.SqsQueue {
	return c.ctn.Get("sqs").(*messenger.SqsQueue)
}

func (c *Container) GetPublisher() (messenger.Publisher, error) {
	obj, err := c.ctn.SafeGet("publisher")
	if err != nil {
		return nil, err
	}
	return obj.(messenger.Publisher), nil
}

func (c *Container) GetElastic() (elastic_search.Index, error) {
	obj, err := c.ctn.SafeGet("elastic")
	if err != nil {
		return nil, err
	}
	return obj.(elastic_search.Index), nil
}

func (c *Container) GetMarketplaceIndexer() indexer.MarketplaceIndexer {
	return c.ctn.Get("marketplace.indexer").(indexer.MarketplaceIndexer)
}

func (c *Container) GetActionRepo() repository.ActionRepository {
	return c.ctn.Get("action.repo").(repository.ActionRepository)
}

func (c *Container) GetApiServer() api.Server {
	return c.ctn.Get("api.server").(api.Server)
}

func (c *Container) GetClient() *client.Client {
	return c.ctn.Get("client").(*client.Client)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, event.Envelope) error { return nil }

// IsNopPublisher reports whether events are kept in-process only.
func IsNopPublisher(p messenger.Publisher) bool {
	_, ok := p.(nopPublisher)
	return ok
}
