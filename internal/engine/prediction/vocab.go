package prediction

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/converso-ai/nlu-engine/internal/engine/model"
)

// VocabIndex finds the trained token nearest to a query vector. The default
// implementation scans in memory; a vector-database-backed one can stand in
// for large vocabularies.
type VocabIndex interface {
	Nearest(vec []float64) (token string, ok bool)
}

// VocabIndexProvider supplies the lookup index for a model. Backends that
// hold state per model (a shared vector store, a warmed cache) implement
// this; when the predictor has none it scans the vocabulary in memory.
type VocabIndexProvider interface {
	IndexFor(ctx context.Context, m *model.Model) VocabIndex
}

// MemoryVocabIndex is a brute-force nearest-neighbor scan over the model's
// vocabulary snapshot.
type MemoryVocabIndex struct {
	tokens  []string
	vectors [][]float64
}

// NewMemoryVocabIndex indexes a token-to-vector snapshot.
func NewMemoryVocabIndex(vocabulary map[string][]float64) *MemoryVocabIndex {
	idx := &MemoryVocabIndex{}
	for tok, vec := range vocabulary {
		if len(vec) == 0 {
			continue
		}
		idx.tokens = append(idx.tokens, tok)
		idx.vectors = append(idx.vectors, vec)
	}
	return idx
}

// Nearest implements VocabIndex with Euclidean distance.
func (idx *MemoryVocabIndex) Nearest(vec []float64) (string, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, candidate := range idx.vectors {
		if len(candidate) != len(vec) {
			continue
		}
		if d := floats.Distance(candidate, vec, 2); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return "", false
	}
	return idx.tokens[best], true
}

var _ VocabIndex = (*MemoryVocabIndex)(nil)
