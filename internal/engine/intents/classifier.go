// Package intents trains and runs the two classification layers above the
// sentence embedding: a context classifier and one independent intent
// classifier per context.
package intents

import (
	"context"
	"encoding/json"

	"github.com/converso-ai/nlu-engine/internal/engine/dataset"
	"github.com/converso-ai/nlu-engine/internal/engine/embedding"
	"github.com/converso-ai/nlu-engine/internal/ml"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// Model holds the serialized classifier layers. An intent spanning several
// contexts appears in each of those contexts' classifiers.
type Model struct {
	ContextBlob []byte            `json:"context_blob"`
	IntentBlobs map[string][]byte `json:"intent_blobs"`
}

// Marshal serializes the model for the artefact store.
func (m *Model) Marshal() ([]byte, error) {
	blob, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelSerialization, "failed to serialize classifier model")
	}
	return blob, nil
}

// UnmarshalModel restores a Model from its serialized form.
func UnmarshalModel(blob []byte) (*Model, error) {
	m := &Model{}
	if err := json.Unmarshal(blob, m); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelSerialization, "failed to deserialize classifier model")
	}
	return m, nil
}

// Train fits the context classifier and the per-context intent classifiers.
// The context layer sees only real intents; the intent layers additionally
// see the synthetic fallback so every context can elect "none".
func Train(ctx context.Context, intents []dataset.Intent) (*Model, error) {
	classifier := ml.NewPerceptron()
	model := &Model{IntentBlobs: make(map[string][]byte)}

	var contextPoints []ml.TrainPoint
	for _, intent := range dataset.WithoutNone(intents) {
		for _, u := range intent.Utterances {
			emb := embedding.Embed(u)
			if emb == nil {
				continue
			}
			for _, c := range intent.Contexts {
				contextPoints = append(contextPoints, ml.TrainPoint{Label: c, Coordinates: emb})
			}
		}
	}
	if len(contextPoints) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyTrainingSet, "no embeddable utterances to train the context classifier")
	}
	blob, err := classifier.Train(ctx, contextPoints)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeClassifierFailed, "context classifier training failed")
	}
	model.ContextBlob = blob

	for _, c := range dataset.Contexts(intents) {
		var points []ml.TrainPoint
		for _, intent := range intents {
			if !intent.HasContext(c) {
				continue
			}
			for _, u := range intent.Utterances {
				emb := embedding.Embed(u)
				if emb == nil {
					continue
				}
				points = append(points, ml.TrainPoint{Label: intent.Name, Coordinates: emb})
			}
		}
		if len(points) == 0 {
			continue
		}
		blob, err := classifier.Train(ctx, points)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeClassifierFailed, "intent classifier training failed for context %q", c)
		}
		model.IntentBlobs[c] = blob
	}
	return model, nil
}

// PredictContexts ranks the trained contexts for a sentence embedding.
func PredictContexts(model *Model, emb []float64) ([]ml.RankedLabel, error) {
	if model == nil || len(model.ContextBlob) == 0 {
		return nil, errors.New(errors.ErrCodeModelNotTrained, "context classifier is not trained")
	}
	return ml.NewPerceptron().Predict(model.ContextBlob, emb)
}

// PredictIntents ranks the intents of one context for a sentence embedding.
// A context without a trained classifier returns ok=false; prediction
// silently skips such contexts.
func PredictIntents(model *Model, context string, emb []float64) ([]ml.RankedLabel, bool, error) {
	if model == nil {
		return nil, false, nil
	}
	blob, ok := model.IntentBlobs[context]
	if !ok || len(blob) == 0 {
		return nil, false, nil
	}
	ranked, err := ml.NewPerceptron().Predict(blob, emb)
	if err != nil {
		return nil, false, errors.Wrapf(err, errors.ErrCodeClassifierFailed, "intent prediction failed for context %q", context)
	}
	return ranked, true, nil
}
