package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/converso-ai/nlu-engine/internal/engine/model"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/converso-ai/nlu-engine/pkg/errors"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

const modelPrefix = "models"

// ModelRepository stores trained models content-addressed by input hash.
// Saving the same hash twice is a no-op, which makes retraining from an
// unchanged definition set free.
type ModelRepository struct {
	client  *Client
	logger  logging.Logger
	metrics *prometheus.Metrics
}

// NewModelRepository wires a repository over an established client.
func NewModelRepository(client *Client, logger logging.Logger, metrics *prometheus.Metrics) *ModelRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewNopMetrics()
	}
	return &ModelRepository{client: client, logger: logger.Named("models"), metrics: metrics}
}

func objectKey(botID, language, hash string) string {
	return fmt.Sprintf("%s/%s/%s/%s.json", modelPrefix, botID, language, hash)
}

// Save persists the model unless an object for its hash already exists.
// It reports whether a write happened.
func (r *ModelRepository) Save(ctx context.Context, m *model.Model) (bool, error) {
	if m == nil || m.BotID == "" || m.Language == "" || m.Hash == "" {
		return false, errors.New(errors.ErrCodeValidation, "model is missing bot, language or hash")
	}

	key := objectKey(m.BotID, m.Language, m.Hash)
	exists, err := r.exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		r.logger.Info("model already stored, skipping save",
			logging.String("bot", m.BotID), logging.String("hash", m.Hash))
		return false, nil
	}

	blob, err := m.Marshal()
	if err != nil {
		return false, err
	}
	_, err = r.client.api.PutObject(ctx, r.client.bucket, key,
		bytes.NewReader(blob), int64(len(blob)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrCodeInternal, "store model %s", key)
	}

	r.metrics.ModelSavesTotal.Inc()
	r.logger.Info("model stored",
		logging.String("bot", m.BotID),
		logging.String("language", m.Language),
		logging.String("hash", m.Hash),
		logging.Int("bytes", len(blob)))
	return true, nil
}

// Load fetches one model by (bot, language, hash).
func (r *ModelRepository) Load(ctx context.Context, botID, language, hash string) (*model.Model, error) {
	key := objectKey(botID, language, hash)

	exists, err := r.exists(ctx, key)
	if err != nil {
		r.metrics.ModelLoadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !exists {
		r.metrics.ModelLoadsTotal.WithLabelValues("miss").Inc()
		return nil, errors.Newf(errors.ErrCodeModelNotFound, "no stored model %s/%s/%s", botID, language, hash)
	}

	obj, err := r.client.api.GetObject(ctx, r.client.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		r.metrics.ModelLoadsTotal.WithLabelValues("error").Inc()
		return nil, errors.Wrapf(err, errors.ErrCodeInternal, "fetch model %s", key)
	}
	defer obj.Close()

	blob, err := io.ReadAll(obj)
	if err != nil {
		r.metrics.ModelLoadsTotal.WithLabelValues("error").Inc()
		return nil, errors.Wrapf(err, errors.ErrCodeInternal, "read model %s", key)
	}

	m, err := model.Unmarshal(blob)
	if err != nil {
		r.metrics.ModelLoadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	r.metrics.ModelLoadsTotal.WithLabelValues("hit").Inc()
	return m, nil
}

// LoadLatest fetches the most recently stored model for (bot, language).
func (r *ModelRepository) LoadLatest(ctx context.Context, botID, language string) (*model.Model, error) {
	infos, err := r.List(ctx, botID)
	if err != nil {
		return nil, err
	}
	var latest *nlu.ModelInfo
	for i := range infos {
		if infos[i].Language != language {
			continue
		}
		if latest == nil || infos[i].FinishedAt.After(latest.FinishedAt) {
			latest = &infos[i]
		}
	}
	if latest == nil {
		return nil, errors.Newf(errors.ErrCodeModelNotFound, "no stored model for bot %q language %q", botID, language)
	}
	return r.Load(ctx, botID, language, latest.Hash)
}

// Exists reports whether a model with the given hash is already stored.
func (r *ModelRepository) Exists(ctx context.Context, botID, language, hash string) (bool, error) {
	return r.exists(ctx, objectKey(botID, language, hash))
}

func (r *ModelRepository) exists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.api.StatObject(ctx, r.client.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return false, nil
	}
	return false, errors.Wrapf(err, errors.ErrCodeInternal, "stat %s", key)
}

// List returns provenance headers for every model stored under the bot,
// newest first.  Each object is fetched to read its header; model counts
// per bot are small.
func (r *ModelRepository) List(ctx context.Context, botID string) ([]nlu.ModelInfo, error) {
	prefix := fmt.Sprintf("%s/%s/", modelPrefix, botID)
	objects := r.client.api.ListObjects(ctx, r.client.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var infos []nlu.ModelInfo
	for obj := range objects {
		if obj.Err != nil {
			return nil, errors.Wrapf(obj.Err, errors.ErrCodeInternal, "list models for bot %q", botID)
		}
		language, hash, ok := parseKey(obj.Key)
		if !ok {
			continue
		}
		m, err := r.Load(ctx, botID, language, hash)
		if err != nil {
			r.logger.Warn("unreadable stored model", logging.String("key", obj.Key), logging.Err(err))
			continue
		}
		infos = append(infos, nlu.ModelInfo{
			BotID:      m.BotID,
			Language:   m.Language,
			Hash:       m.Hash,
			Success:    m.Success,
			StartedAt:  m.StartedAt,
			FinishedAt: m.FinishedAt,
			Version:    m.Version,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].FinishedAt.After(infos[j].FinishedAt) })
	return infos, nil
}

// Delete removes one stored model.
func (r *ModelRepository) Delete(ctx context.Context, botID, language, hash string) error {
	key := objectKey(botID, language, hash)
	if err := r.client.api.RemoveObject(ctx, r.client.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, errors.ErrCodeInternal, "delete model %s", key)
	}
	return nil
}

// parseKey splits models/<bot>/<language>/<hash>.json.
func parseKey(key string) (language, hash string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != modelPrefix || !strings.HasSuffix(parts[3], ".json") {
		return "", "", false
	}
	return parts[2], strings.TrimSuffix(parts[3], ".json"), true
}
