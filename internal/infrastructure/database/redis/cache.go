package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// Store adapts the Redis client to the provider cache contract: byte values
// under TTL, with a miss reported as (nil, false, nil) rather than an error.
type Store struct {
	client *Client
}

// NewStore wires a cache store over an established client.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// Get fetches a cached value.  A missing key is a miss, not an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.rdb.Get(ctx, s.client.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, errors.ErrCodeCacheError, "cache get %q", key)
	}
	return val, true, nil
}

// Set stores a value under TTL.  A zero TTL stores without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.rdb.Set(ctx, s.client.key(key), value, ttl).Err(); err != nil {
		return errors.Wrapf(err, errors.ErrCodeCacheError, "cache set %q", key)
	}
	return nil
}
