// Package milvus backs the out-of-vocabulary nearest-token lookup with a
// shared vector store.  The engine's default is an in-memory scan over the
// model's vocabulary snapshot; this backend exists for deployments where
// many replicas serve the same bots and the vocabulary is synced once.
package milvus

import (
	"context"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/converso-ai/nlu-engine/internal/config"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// vectorAPI is the slice of the milvus client the index uses, with option
// variadics stripped.  Tests substitute fakes.
type vectorAPI interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	CreateCollection(ctx context.Context, collSchema *entity.Schema, shardNum int32) error
	DropCollection(ctx context.Context, collName string) error
	CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool) error
	Insert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Flush(ctx context.Context, collName string, async bool) error
	LoadCollection(ctx context.Context, collName string, async bool) error
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam) ([]client.SearchResult, error)
	Close() error
}

// sdkAPI adapts the SDK client to vectorAPI.
type sdkAPI struct {
	c client.Client
}

func (s sdkAPI) HasCollection(ctx context.Context, collName string) (bool, error) {
	return s.c.HasCollection(ctx, collName)
}

func (s sdkAPI) CreateCollection(ctx context.Context, collSchema *entity.Schema, shardNum int32) error {
	return s.c.CreateCollection(ctx, collSchema, shardNum)
}

func (s sdkAPI) DropCollection(ctx context.Context, collName string) error {
	return s.c.DropCollection(ctx, collName)
}

func (s sdkAPI) CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool) error {
	return s.c.CreateIndex(ctx, collName, fieldName, idx, async)
}

func (s sdkAPI) Insert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error) {
	return s.c.Insert(ctx, collName, partitionName, columns...)
}

func (s sdkAPI) Flush(ctx context.Context, collName string, async bool) error {
	return s.c.Flush(ctx, collName, async)
}

func (s sdkAPI) LoadCollection(ctx context.Context, collName string, async bool) error {
	return s.c.LoadCollection(ctx, collName, async)
}

func (s sdkAPI) Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam) ([]client.SearchResult, error) {
	return s.c.Search(ctx, collName, partitions, expr, outputFields, vectors, vectorField, metricType, topK, sp)
}

func (s sdkAPI) Close() error { return s.c.Close() }

// newMilvusClient is swappable in tests.
var newMilvusClient = func(ctx context.Context, addr string) (vectorAPI, error) {
	c, err := client.NewClient(ctx, client.Config{Address: addr})
	if err != nil {
		return nil, err
	}
	return sdkAPI{c}, nil
}

// Client manages the milvus connection and collection naming.
type Client struct {
	api    vectorAPI
	cfg    config.MilvusConfig
	logger logging.Logger
}

// NewClient connects to milvus.
func NewClient(ctx context.Context, cfg config.MilvusConfig, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Addr == "" {
		return nil, errors.New(errors.ErrCodeConfiguration, "milvus addr is empty")
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "nlu_vocab_"
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	api, err := newMilvusClient(dialCtx, cfg.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeServiceUnavailable, "connect to milvus at %s", cfg.Addr)
	}

	logger.Info("milvus connected", logging.String("addr", cfg.Addr))
	return &Client{api: api, cfg: cfg, logger: logger.Named("milvus")}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.api.Close()
}
