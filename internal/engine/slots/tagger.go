package slots

import (
	"context"
	"encoding/json"

	"github.com/converso-ai/nlu-engine/internal/engine/dataset"
	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/internal/ml"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

const (
	// defaultMaxClusters caps the token clustering used as a tagging feature.
	defaultMaxClusters = 8
	minClusters        = 2
)

// taggerState is the serialized form of a trained tagger. The centroids
// ride along with the sequence model so a loaded tagger assigns every
// token to the same cluster the CRF saw during feature extraction.
type taggerState struct {
	Clustering *ml.Clustering `json:"clustering,omitempty"`
	Sequence   []byte         `json:"sequence"`
}

// Tagger labels each token of an utterance with a slot tag and converts
// tag runs into slot spans.
type Tagger struct {
	sequence   ml.SequenceModel
	clusterer  ml.Clusterer
	clustering *ml.Clustering
	trained    bool

	// Seed drives the token clustering.
	Seed int64

	// MaxClusters caps k for the token clustering.
	MaxClusters int
}

// NewTagger returns a tagger backed by the in-process CRF and k-means
// implementations.
func NewTagger() *Tagger {
	return &Tagger{
		sequence:    ml.NewCRFTagger(),
		clusterer:   ml.NewKMeans(),
		Seed:        1,
		MaxClusters: defaultMaxClusters,
	}
}

// Train fits the tagger on the given intents, the synthetic fallback
// excluded, and returns the serialized tagger state. Training on fewer
// than two intents is a no-op returning an empty blob.
func (t *Tagger) Train(ctx context.Context, intents []dataset.Intent) ([]byte, error) {
	intents = dataset.WithoutNone(intents)
	if len(intents) < 2 {
		t.trained = false
		return []byte{}, nil
	}

	if err := t.cluster(ctx, intents); err != nil {
		return nil, err
	}

	var features []ml.FeatureSequence
	var labels [][]string
	for _, intent := range intents {
		for _, u := range intent.Utterances {
			if u.Len() == 0 {
				continue
			}
			features = append(features, TrainingFeatures(u, intent, t.clustering))
			seq := make([]string, u.Len())
			for i := range seq {
				seq[i] = string(u.TokenTag(i))
			}
			labels = append(labels, seq)
		}
	}
	if len(features) == 0 {
		t.trained = false
		return []byte{}, nil
	}

	sequenceBlob, err := t.sequence.Train(ctx, features, labels)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSlotTaggerFailed, "sequence model training failed")
	}
	blob, err := json.Marshal(taggerState{Clustering: t.clustering, Sequence: sequenceBlob})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSlotTaggerFailed, "failed to serialize tagger state")
	}
	t.trained = true
	return blob, nil
}

// Load restores the serialized clustering and sequence model. An empty
// blob leaves the tagger in its untrained no-op state.
func (t *Tagger) Load(blob []byte) error {
	if len(blob) == 0 {
		t.trained = false
		return nil
	}
	var state taggerState
	if err := json.Unmarshal(blob, &state); err != nil {
		return errors.Wrap(err, errors.ErrCodeSlotTaggerFailed, "failed to parse tagger state")
	}
	t.clustering = state.Clustering
	if err := t.sequence.Open(state.Sequence); err != nil {
		return errors.Wrap(err, errors.ErrCodeSlotTaggerFailed, "failed to open sequence model")
	}
	t.trained = true
	return nil
}

// Trained reports whether the tagger has a usable sequence model.
func (t *Tagger) Trained() bool { return t.trained }

// Clustering exposes the rebuilt token clustering for feature extraction.
func (t *Tagger) Clustering() *ml.Clustering { return t.clustering }

// cluster fits k-means over the distinct token vectors of all training
// utterances; k = min(MaxClusters, distinct) but never below 2. Zero
// distinct vectors skips clustering entirely.
func (t *Tagger) cluster(ctx context.Context, intents []dataset.Intent) error {
	seen := make(map[string]struct{})
	var vectors [][]float64
	for _, intent := range intents {
		for _, u := range intent.Utterances {
			for _, tok := range u.Tokens() {
				if len(tok.Vector) == 0 {
					continue
				}
				if _, ok := seen[tok.Value]; ok {
					continue
				}
				seen[tok.Value] = struct{}{}
				vectors = append(vectors, tok.Vector)
			}
		}
	}
	return t.clusterVectors(ctx, vectors)
}

func (t *Tagger) clusterVectors(ctx context.Context, vectors [][]float64) error {
	// Zero or one distinct vectors cannot be clustered; features fall back
	// to the no-clustering path.
	if len(vectors) < 2 {
		t.clustering = nil
		return nil
	}

	max := t.MaxClusters
	if max < minClusters {
		max = defaultMaxClusters
	}
	k := len(vectors)
	if k > max {
		k = max
	}
	if k < minClusters {
		k = minClusters
	}
	clustering, err := t.clusterer.Cluster(ctx, vectors, k, ml.ClusterOptions{Seed: t.Seed})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeClusteringFailed, "token clustering failed")
	}
	t.clustering = clustering
	return nil
}

// Extract tags the utterance and folds contiguous BEGINNING/INSIDE runs
// into slot spans bound to the intent's matching slot definition. An
// untrained tagger extracts nothing.
func (t *Tagger) Extract(u *utterance.Utterance, intent dataset.Intent) ([]utterance.SlotSpan, error) {
	if !t.trained || u.Len() == 0 {
		return nil, nil
	}
	labels, err := t.sequence.Predict(PredictionFeatures(u, intent, t.clustering))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSlotTaggerFailed, "sequence model prediction failed")
	}

	var spans []utterance.SlotSpan
	for i := 0; i < len(labels); i++ {
		if utterance.Tag(labels[i]) != utterance.TagBeginning {
			continue
		}
		end := i + 1
		for end < len(labels) && utterance.Tag(labels[end]) == utterance.TagInside {
			end++
		}
		if span, ok := t.bindRun(u, intent, i, end); ok {
			spans = append(spans, span)
		}
		i = end - 1
	}
	return spans, nil
}

// bindRun resolves the slot definition for a tagged token run via the
// entity types covering it. Runs no slot definition accounts for are
// dropped, unless the intent declares exactly one slot.
func (t *Tagger) bindRun(u *utterance.Utterance, intent dataset.Intent, start, end int) (utterance.SlotSpan, bool) {
	covered := make(map[string]struct{})
	for i := start; i < end; i++ {
		for _, span := range u.EntitiesAt(i) {
			covered[span.Type] = struct{}{}
		}
	}

	name := ""
	for _, def := range intent.Slots {
		for _, entity := range def.Entities {
			if _, ok := covered[entity]; ok {
				name = def.Name
				break
			}
		}
		if name != "" {
			break
		}
	}
	if name == "" {
		if len(intent.Slots) != 1 {
			return utterance.SlotSpan{}, false
		}
		name = intent.Slots[0].Name
	}

	toks := u.Tokens()
	startChar := toks[start].Offset
	last := toks[end-1]
	endChar := last.Offset + len(last.Plain())
	return utterance.SlotSpan{
		Name:       name,
		Source:     u.Text()[startChar:endChar],
		StartToken: start,
		EndToken:   end,
		StartChar:  startChar,
		EndChar:    endChar,
	}, true
}
