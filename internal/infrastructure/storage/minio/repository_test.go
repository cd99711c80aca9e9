package minio

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converso-ai/nlu-engine/internal/engine/model"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// memoryAPI is an in-process ObjectAPI backed by a map.
type memoryAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemoryAPI() *memoryAPI {
	return &memoryAPI{objects: map[string][]byte{}}
}

func (m *memoryAPI) BucketExists(context.Context, string) (bool, error) { return true, nil }

func (m *memoryAPI) MakeBucket(context.Context, string, minio.MakeBucketOptions) error { return nil }

func (m *memoryAPI) PutObject(_ context.Context, _ string, name string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	m.puts++
	return minio.UploadInfo{Key: name, Size: int64(len(data))}, nil
}

func (m *memoryAPI) GetObject(_ context.Context, _ string, name string, _ minio.GetObjectOptions) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryAPI) StatObject(_ context.Context, _ string, name string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[name]; !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return minio.ObjectInfo{Key: name}, nil
}

func (m *memoryAPI) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	m.mu.Lock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()
	sort.Strings(keys)

	ch := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		ch <- minio.ObjectInfo{Key: k}
	}
	close(ch)
	return ch
}

func (m *memoryAPI) RemoveObject(_ context.Context, _ string, name string, _ minio.RemoveObjectOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

func sampleModel(botID, language, hash string, finished time.Time) *model.Model {
	return &model.Model{
		BotID:      botID,
		Language:   language,
		Hash:       hash,
		Success:    true,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Artefacts:  &model.Artefacts{},
	}
}

func newTestRepository() (*ModelRepository, *memoryAPI) {
	api := newMemoryAPI()
	client := NewClientWithAPI(api, "nlu-models", nil)
	return NewModelRepository(client, nil, nil), api
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	repo, _ := newTestRepository()
	ctx := context.Background()

	m := sampleModel("bot-1", "en", "abc123", time.Now().UTC().Truncate(time.Second))
	written, err := repo.Save(ctx, m)
	require.NoError(t, err)
	assert.True(t, written)

	got, err := repo.Load(ctx, "bot-1", "en", "abc123")
	require.NoError(t, err)
	assert.Equal(t, m.BotID, got.BotID)
	assert.Equal(t, m.Hash, got.Hash)
	assert.True(t, got.Success)
}

func TestSaveSkipsExistingHash(t *testing.T) {
	repo, api := newTestRepository()
	ctx := context.Background()

	m := sampleModel("bot-1", "en", "abc123", time.Now())
	_, err := repo.Save(ctx, m)
	require.NoError(t, err)

	written, err := repo.Save(ctx, m)
	require.NoError(t, err)
	assert.False(t, written, "second save of the same hash must be a no-op")
	assert.Equal(t, 1, api.puts)
}

func TestSaveRejectsIncompleteModel(t *testing.T) {
	repo, _ := newTestRepository()
	_, err := repo.Save(context.Background(), &model.Model{BotID: "bot-1"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestLoadMissingModel(t *testing.T) {
	repo, _ := newTestRepository()
	_, err := repo.Load(context.Background(), "bot-1", "en", "nope")
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotFound))
}

func TestListNewestFirst(t *testing.T) {
	repo, _ := newTestRepository()
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i, hash := range []string{"h1", "h2", "h3"} {
		_, err := repo.Save(ctx, sampleModel("bot-1", "en", hash, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := repo.Save(ctx, sampleModel("bot-2", "en", "other", base))
	require.NoError(t, err)

	infos, err := repo.List(ctx, "bot-1")
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "h3", infos[0].Hash)
	assert.Equal(t, "h1", infos[2].Hash)
	for _, info := range infos {
		assert.Equal(t, "bot-1", info.BotID)
	}
}

func TestLoadLatest(t *testing.T) {
	repo, _ := newTestRepository()
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	_, err := repo.Save(ctx, sampleModel("bot-1", "en", "old", base))
	require.NoError(t, err)
	_, err = repo.Save(ctx, sampleModel("bot-1", "en", "new", base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = repo.Save(ctx, sampleModel("bot-1", "fr", "french", base.Add(2*time.Hour)))
	require.NoError(t, err)

	got, err := repo.LoadLatest(ctx, "bot-1", "en")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Hash)

	_, err = repo.LoadLatest(ctx, "bot-1", "de")
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotFound))
}

func TestDelete(t *testing.T) {
	repo, _ := newTestRepository()
	ctx := context.Background()

	_, err := repo.Save(ctx, sampleModel("bot-1", "en", "abc", time.Now()))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "bot-1", "en", "abc"))

	_, err = repo.Load(ctx, "bot-1", "en", "abc")
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotFound))
}
