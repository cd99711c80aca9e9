package milvus

import (
	"context"
	"sort"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/converso-ai/nlu-engine/internal/engine/model"
	"github.com/converso-ai/nlu-engine/internal/engine/prediction"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

const (
	tokenField  = "token"
	vectorField = "vector"
)

// VocabIndex syncs model vocabularies into per-model collections and serves
// nearest-token lookups.  One collection per model hash: vocabularies are
// immutable once trained, so sync is write-once.
type VocabIndex struct {
	client *Client
	logger logging.Logger
}

// NewVocabIndex wires an index over an established client.
func NewVocabIndex(c *Client, logger logging.Logger) *VocabIndex {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &VocabIndex{client: c, logger: logger.Named("vocab_index")}
}

func (v *VocabIndex) collection(modelHash string) string {
	name := modelHash
	if len(name) > 16 {
		name = name[:16]
	}
	return v.client.cfg.CollectionPrefix + name
}

// Sync uploads the model's vocabulary unless its collection already exists.
func (v *VocabIndex) Sync(ctx context.Context, m *model.Model) error {
	if !m.Trained() || len(m.Artefacts.Vocabulary) == 0 {
		return errors.New(errors.ErrCodeValidation, "model has no vocabulary to sync")
	}

	name := v.collection(m.Hash)
	exists, err := v.client.api.HasCollection(ctx, name)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeExternalService, "check collection %q", name)
	}
	if exists {
		return nil
	}

	tokens := make([]string, 0, len(m.Artefacts.Vocabulary))
	for token := range m.Artefacts.Vocabulary {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	dim := len(m.Artefacts.Vocabulary[tokens[0]])

	schema := entity.NewSchema().WithName(name).
		WithField(entity.NewField().WithName(tokenField).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(512).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(vectorField).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim)))
	if err := v.client.api.CreateCollection(ctx, schema, 1); err != nil {
		return errors.Wrapf(err, errors.ErrCodeExternalService, "create collection %q", name)
	}

	vectors := make([][]float32, len(tokens))
	for i, token := range tokens {
		vec := m.Artefacts.Vocabulary[token]
		row := make([]float32, dim)
		for j := 0; j < dim && j < len(vec); j++ {
			row[j] = float32(vec[j])
		}
		vectors[i] = row
	}
	_, err = v.client.api.Insert(ctx, name, "",
		entity.NewColumnVarChar(tokenField, tokens),
		entity.NewColumnFloatVector(vectorField, dim, vectors))
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeExternalService, "insert vocabulary into %q", name)
	}
	if err := v.client.api.Flush(ctx, name, false); err != nil {
		return errors.Wrapf(err, errors.ErrCodeExternalService, "flush %q", name)
	}

	idx, err := entity.NewIndexFlat(entity.L2)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "build flat index descriptor")
	}
	if err := v.client.api.CreateIndex(ctx, name, vectorField, idx, false); err != nil {
		return errors.Wrapf(err, errors.ErrCodeExternalService, "index %q", name)
	}
	if err := v.client.api.LoadCollection(ctx, name, false); err != nil {
		return errors.Wrapf(err, errors.ErrCodeExternalService, "load %q", name)
	}

	v.logger.Info("vocabulary synced",
		logging.String("collection", name),
		logging.Int("tokens", len(tokens)),
		logging.Int("dim", dim))
	return nil
}

// NearestToken returns the closest vocabulary token to the query vector.
func (v *VocabIndex) NearestToken(ctx context.Context, modelHash string, vec []float64) (string, bool, error) {
	name := v.collection(modelHash)

	query := make([]float32, len(vec))
	for i, x := range vec {
		query[i] = float32(x)
	}
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrCodeInternal, "build search param")
	}

	results, err := v.client.api.Search(ctx, name, nil, "", []string{tokenField},
		[]entity.Vector{entity.FloatVector(query)}, vectorField, entity.L2, 1, sp)
	if err != nil {
		return "", false, errors.Wrapf(err, errors.ErrCodeExternalService, "search %q", name)
	}
	if len(results) == 0 || results[0].ResultCount == 0 {
		return "", false, nil
	}
	column := results[0].Fields.GetColumn(tokenField)
	if column == nil {
		return "", false, nil
	}
	token, err := column.GetAsString(0)
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrCodeExternalService, "decode search hit")
	}
	return token, true, nil
}

// Drop removes a model's collection, for model deletion cleanup.
func (v *VocabIndex) Drop(ctx context.Context, modelHash string) error {
	name := v.collection(modelHash)
	if err := v.client.api.DropCollection(ctx, name); err != nil {
		return errors.Wrapf(err, errors.ErrCodeExternalService, "drop %q", name)
	}
	return nil
}

// IndexFor adapts the store to the predictor's lookup contract for one
// model.  Lookup failures degrade to "no neighbour": the predictor then
// keeps the default weight for the unknown token.
func (v *VocabIndex) IndexFor(ctx context.Context, m *model.Model) prediction.VocabIndex {
	return boundIndex{index: v, ctx: ctx, hash: m.Hash}
}

type boundIndex struct {
	index *VocabIndex
	ctx   context.Context
	hash  string
}

func (b boundIndex) Nearest(vec []float64) (string, bool) {
	token, ok, err := b.index.NearestToken(b.ctx, b.hash, vec)
	if err != nil {
		b.index.logger.Warn("vocabulary lookup failed", logging.Err(err))
		return "", false
	}
	return token, ok
}
