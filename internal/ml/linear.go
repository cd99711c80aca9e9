package ml

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sort"

	"github.com/converso-ai/nlu-engine/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// linearModel is the serialized state of a one-vs-rest linear classifier:
// one weight vector plus bias per label, over a fixed dimensionality.
type linearModel struct {
	Labels  []string    `json:"labels"`
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
	Dim     int         `json:"dim"`
}

// Perceptron is a one-vs-rest averaged-perceptron linear classifier
// satisfying LinearClassifier.  Prediction scores are softmax-normalized so
// callers receive confidences in (0, 1) that sum to 1 across labels.
type Perceptron struct {
	// Epochs is the number of passes over the training points.
	Epochs int

	// Seed controls the shuffle order between epochs.
	Seed int64
}

// NewPerceptron returns a classifier with default training parameters.
func NewPerceptron() *Perceptron {
	return &Perceptron{Epochs: 25, Seed: 1}
}

// Train implements LinearClassifier.  Training observes ctx between epochs.
func (p *Perceptron) Train(ctx context.Context, points []TrainPoint) ([]byte, error) {
	if len(points) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "no training points")
	}
	dim := len(points[0].Coordinates)
	labelIdx := make(map[string]int)
	var labels []string
	for i, pt := range points {
		if len(pt.Coordinates) != dim {
			return nil, errors.Newf(errors.ErrCodeValidation, "point %d: dimension %d, want %d", i, len(pt.Coordinates), dim)
		}
		if _, ok := labelIdx[pt.Label]; !ok {
			labelIdx[pt.Label] = len(labels)
			labels = append(labels, pt.Label)
		}
	}

	L := len(labels)
	weights := make([][]float64, L)
	sums := make([][]float64, L)
	biases := make([]float64, L)
	biasSums := make([]float64, L)
	for y := 0; y < L; y++ {
		weights[y] = make([]float64, dim)
		sums[y] = make([]float64, dim)
	}

	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(p.Seed))

	epochs := p.Epochs
	if epochs <= 0 {
		epochs = 25
	}
	updates := 0
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTimeout, "classifier training cancelled")
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for _, i := range order {
			pt := points[i]
			gold := labelIdx[pt.Label]

			best, bestScore := 0, math.Inf(-1)
			for y := 0; y < L; y++ {
				if s := floats.Dot(weights[y], pt.Coordinates) + biases[y]; s > bestScore {
					best, bestScore = y, s
				}
			}
			if best == gold {
				continue
			}
			floats.AddScaled(weights[gold], 1, pt.Coordinates)
			floats.AddScaled(weights[best], -1, pt.Coordinates)
			biases[gold]++
			biases[best]--
			// Accumulate for averaging, weighted by remaining updates.
			floats.AddScaled(sums[gold], 1, weights[gold])
			floats.AddScaled(sums[best], 1, weights[best])
			biasSums[gold] += biases[gold]
			biasSums[best] += biases[best]
			updates++
		}
	}

	if updates > 0 {
		for y := 0; y < L; y++ {
			// Blend the running average with the final weights; pure final
			// weights overfit the last updates on small training sets.
			floats.Scale(1/float64(updates), sums[y])
			floats.Add(sums[y], weights[y])
			floats.Scale(0.5, sums[y])
			weights[y] = sums[y]
			biases[y] = (biasSums[y]/float64(updates) + biases[y]) / 2
		}
	}

	m := &linearModel{Labels: labels, Weights: weights, Biases: biases, Dim: dim}
	blob, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelSerialization, "failed to serialize linear model")
	}
	return blob, nil
}

// Predict implements LinearClassifier.  The result is ranked by score,
// highest first; ties keep training label order.
func (p *Perceptron) Predict(serialized []byte, coordinates []float64) ([]RankedLabel, error) {
	m := &linearModel{}
	if err := json.Unmarshal(serialized, m); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelSerialization, "failed to deserialize linear model")
	}
	if len(coordinates) != m.Dim {
		return nil, errors.Newf(errors.ErrCodeValidation, "coordinate dimension %d, model expects %d", len(coordinates), m.Dim)
	}

	raw := make([]float64, len(m.Labels))
	maxRaw := math.Inf(-1)
	for y := range m.Labels {
		raw[y] = floats.Dot(m.Weights[y], coordinates) + m.Biases[y]
		if raw[y] > maxRaw {
			maxRaw = raw[y]
		}
	}

	// Softmax with max subtraction for numeric stability.
	var total float64
	for y := range raw {
		raw[y] = math.Exp(raw[y] - maxRaw)
		total += raw[y]
	}

	out := make([]RankedLabel, len(m.Labels))
	for y, label := range m.Labels {
		out[y] = RankedLabel{Label: label, Score: raw[y] / total}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
