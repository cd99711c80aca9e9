// Package redis backs the language-provider cache with a shared Redis
// instance, so tokenization and vectorization results survive restarts and
// are shared across engine replicas.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/converso-ai/nlu-engine/internal/config"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// Client wraps the go-redis connection with lifecycle management.
type Client struct {
	rdb    redis.UniversalClient
	prefix string
	logger logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient connects and verifies the connection with a ping.
func NewClient(cfg config.RedisConfig, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Addr == "" {
		return nil, errors.New(errors.ErrCodeConfiguration, "redis addr is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, errors.ErrCodeServiceUnavailable, "connect to redis at %s", cfg.Addr)
	}

	logger.Info("redis connected", logging.String("addr", cfg.Addr), logging.Int("db", cfg.DB))
	return &Client{rdb: rdb, prefix: cfg.KeyPrefix, logger: logger.Named("redis")}, nil
}

// NewClientWithRDB wires a Client over an existing connection.  Tests use it
// with redismock.
func NewClientWithRDB(rdb redis.UniversalClient, prefix string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{rdb: rdb, prefix: prefix, logger: logger.Named("redis")}
}

func (c *Client) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + k
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "redis unreachable")
	}
	return nil
}

// Close releases the connection pool.  Further calls fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rdb.Close()
}
