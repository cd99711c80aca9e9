// Package model defines the serializable training artifact: everything a
// prediction call needs, packaged once per successful training cycle and
// immutable afterwards.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/converso-ai/nlu-engine/internal/engine/dataset"
	"github.com/converso-ai/nlu-engine/internal/engine/entities"
	"github.com/converso-ai/nlu-engine/pkg/errors"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

// IntentArtefact is the prediction-time residue of a trained intent: its
// definitions, derived vocabulary and the canonical texts of its training
// utterances. Token vectors live in the vocabulary snapshot, not here.
type IntentArtefact struct {
	Name         string          `json:"name"`
	Contexts     []string        `json:"contexts"`
	Slots        []nlu.SlotDef   `json:"slots,omitempty"`
	Vocabulary   map[string]bool `json:"vocabulary"`
	Utterances   []string        `json:"utterances"`
	SlotEntities []string        `json:"slot_entities,omitempty"`
}

// Intent rebuilds the dataset view used by the feature extractors.
func (a IntentArtefact) Intent() dataset.Intent {
	in := dataset.Intent{
		Name:         a.Name,
		Contexts:     a.Contexts,
		Slots:        a.Slots,
		Vocabulary:   a.Vocabulary,
		SlotEntities: make(map[string]struct{}, len(a.SlotEntities)),
	}
	if in.Vocabulary == nil {
		in.Vocabulary = map[string]bool{}
	}
	for _, e := range a.SlotEntities {
		in.SlotEntities[e] = struct{}{}
	}
	return in
}

// Artefacts bundles every serialized training output.
type Artefacts struct {
	ClassifierBlob []byte                     `json:"classifier_blob"`
	SlotTaggerBlob []byte                     `json:"slot_tagger_blob"`
	Tfidf          map[string]float64         `json:"tfidf"`
	ListModels     []entities.ListEntityModel `json:"list_models"`

	// Vocabulary snapshots every trained token's vector; prediction uses
	// it to borrow tf-idf weights for out-of-vocabulary tokens.
	Vocabulary map[string][]float64 `json:"vocabulary"`

	Intents  []IntentArtefact       `json:"intents"`
	Contexts []string               `json:"contexts"`
	Patterns []nlu.PatternEntityDef `json:"patterns,omitempty"`
}

// EngineVersion stamps every trained model with the engine revision that
// produced it, so stored artefacts can be audited after format changes.
const EngineVersion = "1.0.0"

// Model is one training cycle's result for a (bot, language) pair.
type Model struct {
	BotID      string    `json:"bot_id"`
	Language   string    `json:"language"`
	Hash       string    `json:"hash"`
	Version    string    `json:"version,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`

	// Warnings lists per-utterance degradations from the tagging stage,
	// most recent first, bounded by the trainer.
	Warnings []string `json:"warnings,omitempty"`

	// Input is the original training request, preserved verbatim for
	// diagnostics on failed cycles.
	Input nlu.TrainInput `json:"input"`

	// Artefacts is nil on failed cycles.
	Artefacts *Artefacts `json:"artefacts,omitempty"`
}

// Trained reports whether the model can serve predictions.
func (m *Model) Trained() bool {
	return m != nil && m.Success && m.Artefacts != nil
}

// Intents rebuilds the dataset views of every trained intent.
func (m *Model) Intents() []dataset.Intent {
	if m.Artefacts == nil {
		return nil
	}
	out := make([]dataset.Intent, len(m.Artefacts.Intents))
	for i, a := range m.Artefacts.Intents {
		out[i] = a.Intent()
	}
	return out
}

// Intent returns the trained intent artefact by name.
func (m *Model) Intent(name string) (IntentArtefact, bool) {
	if m.Artefacts == nil {
		return IntentArtefact{}, false
	}
	for _, a := range m.Artefacts.Intents {
		if a.Name == name {
			return a, true
		}
	}
	return IntentArtefact{}, false
}

// Marshal serializes the model for the artifact store.
func (m *Model) Marshal() ([]byte, error) {
	blob, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelSerialization, "failed to serialize model")
	}
	return blob, nil
}

// Unmarshal restores a model from its serialized form.
func Unmarshal(blob []byte) (*Model, error) {
	m := &Model{}
	if err := json.Unmarshal(blob, m); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelSerialization, "failed to deserialize model")
	}
	return m, nil
}

// InputHash fingerprints the parts of a training input that affect the
// trained model, so unchanged inputs can skip retraining. JSON encoding
// sorts map keys, making the hash stable across runs.
func InputHash(input nlu.TrainInput) string {
	payload := struct {
		Language string                 `json:"language"`
		Contexts []string               `json:"contexts"`
		Intents  []nlu.IntentDef        `json:"intents"`
		Lists    []nlu.ListEntityDef    `json:"lists"`
		Patterns []nlu.PatternEntityDef `json:"patterns"`
	}{input.Language, input.Contexts, input.Intents, input.ListEntities, input.PatternEntities}

	blob, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
