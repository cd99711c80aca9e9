package ml

import (
	"context"
	"encoding/json"
	"math/rand"

	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// alphabet maps between strings (labels or feature names) and dense integer
// IDs so that weights can live in a flat slice.
type alphabet struct {
	ToID  map[string]int `json:"to_id"`
	ToStr []string       `json:"to_str"`
}

func newAlphabet() *alphabet {
	return &alphabet{ToID: make(map[string]int)}
}

func (a *alphabet) add(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	id := len(a.ToStr)
	a.ToID[s] = id
	a.ToStr = append(a.ToStr, s)
	return id
}

func (a *alphabet) get(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	return -1
}

func (a *alphabet) size() int { return len(a.ToStr) }

// crfModel holds the parameters of a linear-chain CRF.
//
// Weight layout: [state features | transition features].
// State feature index:     attrID*L + labelID
// Transition feature index: transOffset + fromID*L + toID
type crfModel struct {
	Labels     *alphabet `json:"labels"`
	Attributes *alphabet `json:"attributes"`
	Weights    []float64 `json:"weights"`
	NumLabels  int       `json:"num_labels"`
}

func (m *crfModel) transOffset() int { return m.Attributes.size() * m.NumLabels }

func (m *crfModel) stateIndex(attrID, labelID int) int { return attrID*m.NumLabels + labelID }

func (m *crfModel) transIndex(fromID, toID int) int {
	return m.transOffset() + fromID*m.NumLabels + toID
}

// stateScores returns the [T][L] state-feature score matrix for a sequence.
func (m *crfModel) stateScores(features FeatureSequence) [][]float64 {
	T, L := len(features), m.NumLabels
	scores := make([][]float64, T)
	for t := 0; t < T; t++ {
		scores[t] = make([]float64, L)
		for _, attr := range features[t] {
			attrID := m.Attributes.get(attr)
			if attrID < 0 {
				continue
			}
			for y := 0; y < L; y++ {
				scores[t][y] += m.Weights[m.stateIndex(attrID, y)]
			}
		}
	}
	return scores
}

// viterbi returns the highest-scoring label ID path for a sequence.
func (m *crfModel) viterbi(features FeatureSequence) []int {
	T, L := len(features), m.NumLabels
	if T == 0 || L == 0 {
		return nil
	}
	state := m.stateScores(features)

	delta := make([][]float64, T)
	backp := make([][]int, T)
	delta[0] = state[0]
	for t := 1; t < T; t++ {
		delta[t] = make([]float64, L)
		backp[t] = make([]int, L)
		for y := 0; y < L; y++ {
			best, bestPrev := delta[t-1][0]+m.Weights[m.transIndex(0, y)], 0
			for yp := 1; yp < L; yp++ {
				if s := delta[t-1][yp] + m.Weights[m.transIndex(yp, y)]; s > best {
					best, bestPrev = s, yp
				}
			}
			delta[t][y] = best + state[t][y]
			backp[t][y] = bestPrev
		}
	}

	path := make([]int, T)
	best := 0
	for y := 1; y < L; y++ {
		if delta[T-1][y] > delta[T-1][best] {
			best = y
		}
	}
	path[T-1] = best
	for t := T - 1; t > 0; t-- {
		path[t-1] = backp[t][path[t]]
	}
	return path
}

// CRFTagger is a linear-chain CRF trained with the averaged structured
// perceptron and decoded with Viterbi.  It satisfies SequenceModel.
type CRFTagger struct {
	model *crfModel

	// Epochs is the number of perceptron passes over the training data.
	Epochs int

	// Seed controls the shuffle order between epochs for reproducible
	// training runs.
	Seed int64
}

// NewCRFTagger returns a tagger with default training parameters.
func NewCRFTagger() *CRFTagger {
	return &CRFTagger{Epochs: 8, Seed: 1}
}

// Train implements SequenceModel.  Training observes ctx between epochs.
func (c *CRFTagger) Train(ctx context.Context, features []FeatureSequence, labels [][]string) ([]byte, error) {
	if len(features) != len(labels) {
		return nil, errors.New(errors.ErrCodeValidation, "feature/label sequence count mismatch")
	}
	for i := range features {
		if len(features[i]) != len(labels[i]) {
			return nil, errors.Newf(errors.ErrCodeValidation, "sequence %d: %d feature sets vs %d labels", i, len(features[i]), len(labels[i]))
		}
	}

	m := &crfModel{Labels: newAlphabet(), Attributes: newAlphabet()}
	for i := range features {
		for t := range features[i] {
			m.Labels.add(labels[i][t])
			for _, attr := range features[i][t] {
				m.Attributes.add(attr)
			}
		}
	}
	m.NumLabels = m.Labels.size()
	if m.NumLabels == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "no labeled positions in training data")
	}
	m.Weights = make([]float64, m.transOffset()+m.NumLabels*m.NumLabels)

	// Averaged perceptron: accumulate weight sums over updates so the final
	// weights are the average, which is far more stable than the last value.
	sums := make([]float64, len(m.Weights))
	stamps := make([]int, len(m.Weights))
	step := 1

	update := func(idx int, delta float64) {
		sums[idx] += float64(step-stamps[idx]) * m.Weights[idx]
		stamps[idx] = step
		m.Weights[idx] += delta
	}

	order := make([]int, len(features))
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(c.Seed))

	gold := make([][]int, len(features))
	for i := range features {
		gold[i] = make([]int, len(labels[i]))
		for t, lab := range labels[i] {
			gold[i][t] = m.Labels.get(lab)
		}
	}

	epochs := c.Epochs
	if epochs <= 0 {
		epochs = 8
	}
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTimeout, "crf training cancelled")
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for _, i := range order {
			seq := features[i]
			if len(seq) == 0 {
				continue
			}
			pred := m.viterbi(seq)

			for t := range seq {
				if pred[t] == gold[i][t] {
					continue
				}
				for _, attr := range seq[t] {
					attrID := m.Attributes.get(attr)
					update(m.stateIndex(attrID, gold[i][t]), 1)
					update(m.stateIndex(attrID, pred[t]), -1)
				}
			}
			for t := 1; t < len(seq); t++ {
				if pred[t-1] == gold[i][t-1] && pred[t] == gold[i][t] {
					continue
				}
				update(m.transIndex(gold[i][t-1], gold[i][t]), 1)
				update(m.transIndex(pred[t-1], pred[t]), -1)
			}
			step++
		}
	}

	for idx := range m.Weights {
		sums[idx] += float64(step-stamps[idx]) * m.Weights[idx]
		m.Weights[idx] = sums[idx] / float64(step)
	}

	c.model = m
	blob, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelSerialization, "failed to serialize crf model")
	}
	return blob, nil
}

// Open implements SequenceModel.
func (c *CRFTagger) Open(blob []byte) error {
	m := &crfModel{}
	if err := json.Unmarshal(blob, m); err != nil {
		return errors.Wrap(err, errors.ErrCodeModelSerialization, "failed to deserialize crf model")
	}
	if m.Labels == nil || m.Attributes == nil || m.NumLabels == 0 {
		return errors.New(errors.ErrCodeModelSerialization, "crf blob is missing model state")
	}
	c.model = m
	return nil
}

// Predict implements SequenceModel.
func (c *CRFTagger) Predict(features FeatureSequence) ([]string, error) {
	if c.model == nil {
		return nil, errors.New(errors.ErrCodeModelNotTrained, "crf tagger has no model; call Train or Open first")
	}
	path := c.model.viterbi(features)
	out := make([]string, len(path))
	for t, id := range path {
		out[t] = c.model.Labels.ToStr[id]
	}
	return out, nil
}
