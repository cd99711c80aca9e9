// Package embedding turns an utterance into a fixed-length sentence vector
// by tf-idf weighted averaging of its token vectors.
package embedding

import (
	"gonum.org/v1/gonum/floats"

	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
)

// Embed computes the sentence embedding of u. Each token vector is divided
// by norm(vector)/tfidf(token) and accumulated; the sum is then divided by
// the total tf-idf weight. Tokens whose vector has zero norm contribute
// nothing, not even to the weight total.
//
// Returns nil when every token was skipped; callers must treat a nil
// embedding as "no signal", not as the origin.
func Embed(u *utterance.Utterance) []float64 {
	var sum []float64
	var totalWeight float64

	for _, tok := range u.Tokens() {
		vec := tok.Vector
		if len(vec) == 0 {
			continue
		}
		norm := floats.Norm(vec, 2)
		if norm == 0 {
			continue
		}
		tfidf := tok.Tfidf()
		if sum == nil {
			sum = make([]float64, len(vec))
		}
		floats.AddScaled(sum, tfidf/norm, vec)
		totalWeight += tfidf
	}

	if sum == nil || totalWeight == 0 {
		return nil
	}
	floats.Scale(1/totalWeight, sum)
	return sum
}
