package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converso-ai/nlu-engine/pkg/errors"
)

func newMockStore(t *testing.T, prefix string) (*Store, redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return NewStore(NewClientWithRDB(rdb, prefix, nil)), mock
}

func TestStoreGetHit(t *testing.T) {
	store, mock := newMockStore(t, "nlu:")
	mock.ExpectGet("nlu:tok:abc").SetVal("cached-bytes")

	val, ok, err := store.Get(context.Background(), "tok:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("cached-bytes"), val)
}

func TestStoreGetMissIsNotAnError(t *testing.T) {
	store, mock := newMockStore(t, "")
	mock.ExpectGet("tok:abc").RedisNil()

	val, ok, err := store.Get(context.Background(), "tok:abc")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestStoreGetFailure(t *testing.T) {
	store, mock := newMockStore(t, "")
	mock.ExpectGet("tok:abc").SetErr(assert.AnError)

	_, _, err := store.Get(context.Background(), "tok:abc")
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
}

func TestStoreSet(t *testing.T) {
	store, mock := newMockStore(t, "nlu:")
	mock.ExpectSet("nlu:tok:abc", []byte("v"), time.Minute).SetVal("OK")

	err := store.Set(context.Background(), "tok:abc", []byte("v"), time.Minute)
	require.NoError(t, err)
}

func TestStoreSetClampsNegativeTTL(t *testing.T) {
	store, mock := newMockStore(t, "")
	mock.ExpectSet("k", []byte("v"), time.Duration(0)).SetVal("OK")

	err := store.Set(context.Background(), "k", []byte("v"), -time.Second)
	require.NoError(t, err)
}
