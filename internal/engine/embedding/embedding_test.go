package embedding

import (
	"math"
	"testing"

	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
)

func TestEmbedSingleTokenIsNormalizedVector(t *testing.T) {
	u := utterance.New("paris", "en", []string{"paris"}, map[string][]float64{
		"paris": {3, 4},
	})

	got := Embed(u)
	if got == nil {
		t.Fatal("embedding is nil")
	}
	// norm(3,4)=5, so the embedding collapses to the normalized vector
	// regardless of the token's tf-idf weight.
	want := []float64{0.6, 0.8}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("embedding = %v, want %v", got, want)
		}
	}
}

func TestEmbedIgnoresTfidfForSingleToken(t *testing.T) {
	u := utterance.New("paris", "en", []string{"paris"}, map[string][]float64{
		"paris": {3, 4},
	})
	u.SetGlobalTfidf(map[string]float64{"paris": 2.5})

	got := Embed(u)
	want := []float64{0.6, 0.8}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("embedding = %v, want %v", got, want)
		}
	}
}

func TestEmbedWeightsTokensByTfidf(t *testing.T) {
	u := utterance.New("a b", "en", []string{"a", "b"}, map[string][]float64{
		"a": {1, 0},
		"b": {0, 1},
	})
	u.SetGlobalTfidf(map[string]float64{"a": 3, "b": 1})

	got := Embed(u)
	// sum = 3*(1,0) + 1*(0,1); total weight 4.
	want := []float64{0.75, 0.25}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("embedding = %v, want %v", got, want)
		}
	}
}

func TestEmbedSkipsZeroNormVectors(t *testing.T) {
	u := utterance.New("a b", "en", []string{"a", "b"}, map[string][]float64{
		"a": {0, 0},
		"b": {0, 2},
	})

	got := Embed(u)
	want := []float64{0, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("embedding = %v, want %v", got, want)
		}
	}
}

func TestEmbedAllTokensSkipped(t *testing.T) {
	u := utterance.New("a b", "en", []string{"a", "b"}, map[string][]float64{
		"a": {0, 0},
	})
	if got := Embed(u); got != nil {
		t.Fatalf("embedding = %v, want nil", got)
	}

	empty := utterance.New("", "en", nil, nil)
	if got := Embed(empty); got != nil {
		t.Fatalf("embedding of empty utterance = %v, want nil", got)
	}
}
