//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/converso-ai/nlu-engine/internal/config"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/database/redis"
	"github.com/converso-ai/nlu-engine/internal/provider"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)

	client, err := redis.NewClient(config.RedisConfig{Addr: endpoint, KeyPrefix: "it:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStoreRoundTripAgainstRedis(t *testing.T) {
	client := setupRedis(t)
	store := redis.NewStore(client)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "tok:abc", []byte("payload"), time.Minute))
	val, ok, err := store.Get(ctx, "tok:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), val)
}

func TestStoreExpiry(t *testing.T) {
	client := setupRedis(t)
	store := redis.NewStore(client)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("v"), time.Second))
	time.Sleep(1500 * time.Millisecond)

	_, ok, err := store.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

var _ provider.CacheStore = (*redis.Store)(nil)
