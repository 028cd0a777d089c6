package elastic_search

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/aws/aws-sdk-go/aws/credentials"
	v4 "github.com/aws/aws-sdk-go/aws/signer/v4"
	"github.com/olivere/elastic/v7"
	"github.com/patrickmn/go-cache"
	"github.com/sha1sum/aws_signing_client"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

type Index interface {
	GetClient() *elastic.Client

	InstallMappings() error

	AddIndexRequest(index string, entity entity.Entity, reqAction RequestAction)
	AddUpdateRequest(index string, entity entity.Entity, reqAction RequestAction)
	HasRequest(entity entity.Entity) bool
	AddRequest(index string, entity entity.Entity, reqType RequestType, reqAction RequestAction)
	GetEntitiesByIndex(index string) []entity.Entity
	GetRequests() []Request
	GetRequest(id string) *Request
	ClearRequests()

	Save(index string, entity entity.Entity) error
	BatchPersist() (bool, error)
	Persist() (int, error)
}

type index struct {
	client    *elastic.Client
	cache     *cache.Cache
	refresh   string
	bulkCount int
	batchSize int
}

type Request struct {
	Index  string
	Entity entity.Entity
	Type   RequestType
	Action RequestAction
}

type RequestType string

const (
	IndexRequest  RequestType = "index"
	UpdateRequest RequestType = "update"
)

type RequestAction string

const (
	MarketplaceListing    RequestAction = "MarketplaceListing"
	MarketplaceUpdate     RequestAction = "MarketplaceUpdate"
	MarketplaceDelisting  RequestAction = "MarketplaceDelisting"
	MarketplaceSale       RequestAction = "MarketplaceSale"
	MarketplaceWithdrawal RequestAction = "MarketplaceWithdrawal"
)

const (
	saveAttempts int = 3
	batchSize    int = 250
)

var errTooManyRequests = "elastic: Error 429 (Too Many Requests)"

func New() (Index, error) {
	client, err := newClient()
	if err != nil {
		zap.L().With(zap.Error(err)).Error("ElasticSearch: Failed to create client")
		return nil, err
	}

	return NewWithClient(client, config.Get().ElasticSearch.Refresh, config.Get().ElasticSearch.BulkPersistCount), nil
}

func NewWithClient(client *elastic.Client, refresh string, bulkCount int) Index {
	if bulkCount < 1 {
		bulkCount = 1
	}

	return &index{
		client:    client,
		cache:     cache.New(5*time.Minute, 10*time.Minute),
		refresh:   refresh,
		bulkCount: bulkCount,
		batchSize: batchSize,
	}
}

func newClient() (*elastic.Client, error) {
	opts := []elastic.ClientOptionFunc{
		elastic.SetURL(strings.Join(config.Get().ElasticSearch.Hosts, ",")),
		elastic.SetSniff(config.Get().ElasticSearch.Sniff),
		elastic.SetHealthcheck(config.Get().ElasticSearch.HealthCheck),
	}

	if config.Get().ElasticSearch.Debug {
		opts = append(opts, elastic.SetTraceLog(ElasticLogger{}))
	}

	if config.Get().ElasticSearch.Aws {
		creds := credentials.NewStaticCredentials(config.Get().Aws.AccessKey, config.Get().Aws.SecretKey, config.Get().Aws.Token)
		awsClient, err := aws_signing_client.New(v4.NewSigner(creds), nil, "es", config.Get().Aws.Region)
		if err != nil {
			return nil, err
		}

		opts = append(opts, elastic.SetHttpClient(awsClient))
		opts = append(opts, elastic.SetScheme("https"))
		return elastic.NewClient(opts...)
	}

	if config.Get().ElasticSearch.Username != "" {
		opts = append(opts, elastic.SetBasicAuth(
			config.Get().ElasticSearch.Username,
			config.Get().ElasticSearch.Password,
		))
	}

	return elastic.NewClient(opts...)
}

func (i *index) GetClient() *elastic.Client {
	return i.client
}

func (i *index) InstallMappings() error {
	zap.L().Info("ElasticSearch: Install Mappings")

	files, err := os.ReadDir(config.Get().ElasticSearch.MappingDir)
	if err != nil {
		return xerrors.Errorf("elastic mappings directory: %w", err)
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}

		b, err := os.ReadFile(filepath.Join(config.Get().ElasticSearch.MappingDir, f.Name()))
		if err != nil {
			return xerrors.Errorf("elastic mappings file %s: %w", f.Name(), err)
		}

		name := Indices(strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())))
		if err = i.createIndex(name.Get(), b); err != nil {
			return xerrors.Errorf("create index %s: %w", name.Get(), err)
		}
	}

	return nil
}

func (i *index) createIndex(index string, mapping []byte) error {
	ctx := context.Background()
	client := i.client

	exists, err := client.IndexExists(index).Do(ctx)
	if err != nil {
		return err
	}

	if exists && config.Get().ElasticSearch.Reindex {
		zap.S().Infof("ElasticSearch: Deleting index %s", index)
		if _, err = client.DeleteIndex(index).Do(ctx); err != nil {
			return err
		}
		exists = false
	}

	if !exists {
		createIndex, err := client.CreateIndex(index).BodyString(string(mapping)).Do(ctx)
		if err != nil {
			return err
		}

		if createIndex.Acknowledged {
			zap.S().Infof("ElasticSearch: Created index %s", index)
		}
	}

	return nil
}

func (i *index) AddIndexRequest(index string, entity entity.Entity, reqAction RequestAction) {
	zap.L().With(
		zap.String("index", index),
		zap.String("slug", entity.Slug()),
		zap.String("action", string(reqAction)),
	).Debug("ElasticSearch: AddIndexRequest")

	i.AddRequest(index, entity, IndexRequest, reqAction)
}

// AddUpdateRequest buffers a partial update. An update to a document that is
// still waiting to be indexed replaces the pending index request instead.
func (i *index) AddUpdateRequest(index string, entity entity.Entity, reqAction RequestAction) {
	zap.L().With(
		zap.String("index", index),
		zap.String("slug", entity.Slug()),
		zap.String("action", string(reqAction)),
	).Debug("ElasticSearch: AddUpdateRequest")

	if cached, found := i.cache.Get(entity.Slug()); found && cached.(Request).Type == IndexRequest {
		i.AddRequest(index, entity, IndexRequest, reqAction)
		return
	}

	i.AddRequest(index, entity, UpdateRequest, reqAction)
}

func (i *index) HasRequest(entity entity.Entity) bool {
	_, found := i.cache.Get(entity.Slug())

	return found
}

func (i *index) AddRequest(index string, entity entity.Entity, reqType RequestType, reqAction RequestAction) {
	i.cache.Set(entity.Slug(), Request{index, entity, reqType, reqAction}, cache.DefaultExpiration)
}

func (i *index) GetEntitiesByIndex(index string) []entity.Entity {
	entities := make([]entity.Entity, 0)
	for _, req := range i.GetRequests() {
		if req.Index == index {
			entities = append(entities, req.Entity)
		}
	}

	return entities
}

func (i *index) GetRequests() []Request {
	requests := make([]Request, 0)

	for _, item := range i.cache.Items() {
		requests = append(requests, item.Object.(Request))
	}

	return requests
}

func (i *index) GetRequest(id string) *Request {
	if item, found := i.cache.Get(id); found {
		req := item.(Request)
		return &req
	}

	return nil
}

func (i *index) ClearRequests() {
	i.cache.Flush()
}

func (i *index) Save(index string, entity entity.Entity) error {
	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		_, err = i.client.Index().
			Index(index).
			Id(entity.Slug()).
			BodyJson(entity).
			Do(context.Background())
		if err == nil {
			return nil
		}

		zap.L().With(zap.Error(err), zap.String("index", index), zap.String("slug", entity.Slug()), zap.Int("attempt", attempt)).
			Error("ElasticSearch: Failed to save entity")
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}

	return xerrors.Errorf("save %s: too many attempts: %w", entity.Slug(), err)
}

func (i *index) BatchPersist() (bool, error) {
	if i.cache.ItemCount() < i.batchSize {
		return false, nil
	}

	start := time.Now()
	actions, err := i.Persist()

	zap.L().With(
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("actions", actions),
	).Info("ElasticSearch: Persisting data")

	return true, err
}

// Persist writes every buffered request in bulk batches and clears the
// buffer. Requests that elastic rejects individually are retried one by one.
func (i *index) Persist() (int, error) {
	requests := i.GetRequests()
	if len(requests) == 0 {
		return 0, nil
	}

	total := 0
	bulk := i.client.Bulk()
	for _, r := range requests {
		if r.Type == IndexRequest {
			bulk.Add(elastic.NewBulkIndexRequest().Index(r.Index).Id(r.Entity.Slug()).Doc(r.Entity))
		} else if r.Type == UpdateRequest {
			bulk.Add(elastic.NewBulkUpdateRequest().Index(r.Index).Id(r.Entity.Slug()).Doc(r.Entity))
		}

		if bulk.NumberOfActions() >= i.bulkCount {
			n, err := i.persist(bulk)
			total += n
			if err != nil {
				return total, err
			}
			bulk = i.client.Bulk()
		}
	}

	if bulk.NumberOfActions() != 0 {
		n, err := i.persist(bulk)
		total += n
		if err != nil {
			return total, err
		}
	}

	zap.L().Debug("ElasticSearch: Flushing ES cache")
	i.cache.Flush()

	return total, nil
}

func (i *index) persist(bulk *elastic.BulkService) (int, error) {
	actions := bulk.NumberOfActions()
	zap.S().Debugf("ElasticSearch: Persisting %d actions", actions)

	response, err := i.doBulk(bulk, 1)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("ElasticSearch: Failed to persist requests")
		return 0, err
	}

	var errs error
	for _, failed := range response.Failed() {
		zap.L().With(
			zap.Any("error", failed.Error),
			zap.String("index", failed.Index),
			zap.String("id", failed.Id),
		).Error("ElasticSearch: Failed to persist request. Retrying...")

		req := i.GetRequest(failed.Id)
		if req == nil {
			errs = xerrors.Errorf("bulk item %s failed and is no longer buffered", failed.Id)
			continue
		}
		if err := i.Save(failed.Index, req.Entity); err != nil {
			errs = err
		}
	}

	return actions, errs
}

func (i *index) doBulk(bulk *elastic.BulkService, attempt int) (*elastic.BulkResponse, error) {
	response, err := bulk.Refresh(i.refresh).Do(context.Background())
	if err == nil {
		return response, nil
	}
	if attempt >= saveAttempts {
		return nil, err
	}

	if err.Error() == errTooManyRequests {
		zap.L().With(zap.Error(err)).Warn("ElasticSearch: 429 (Too Many Requests)")
		time.Sleep(time.Duration(attempt) * time.Second)
	} else {
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}

	return i.doBulk(bulk, attempt+1)
}
