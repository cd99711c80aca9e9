package provider

import (
	"context"
	"hash/fnv"
	"math/rand"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
	"github.com/jdkato/prose/v2"

	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// localVectorDim is the embedding dimensionality of the local provider.
const localVectorDim = 32

// Local is the in-process provider: prose tokenization plus deterministic
// hashed embeddings. The hashed vectors carry no semantics, only identity;
// they exist so the pipeline stays fully functional without a remote
// embedding service.
type Local struct {
	// Seed drives junk-word sampling.
	Seed int64
}

// NewLocal returns a local provider with a fixed default seed.
func NewLocal() *Local {
	return &Local{Seed: 1}
}

// Name implements LanguageProvider.
func (l *Local) Name() string { return "local" }

// Tokenize implements LanguageProvider using prose's tokenizer. Tokens that
// start a new word carry the word marker so downstream vocabulary
// heuristics can tell space-delimited text apart.
func (l *Local) Tokenize(_ context.Context, texts []string, _ string) ([][]string, error) {
	out := make([][]string, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc, err := prose.NewDocument(text,
			prose.WithTagging(false),
			prose.WithExtraction(false),
			prose.WithSegmentation(false))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeTokenizeFailed, "prose failed to tokenize text %d", i)
		}

		cursor := 0
		for _, tok := range doc.Tokens() {
			idx := strings.Index(text[cursor:], tok.Text)
			marker := cursor == 0
			if idx > 0 {
				gap := text[cursor : cursor+idx]
				marker = strings.TrimSpace(gap) == "" && gap != ""
			} else if idx == 0 && cursor == 0 {
				marker = true
			}
			if idx >= 0 {
				cursor += idx + len(tok.Text)
			}
			value := tok.Text
			if marker {
				value = utterance.WordMarker + value
			}
			out[i] = append(out[i], value)
		}
	}
	return out, nil
}

// Vectorize implements LanguageProvider with hash-seeded pseudo-random unit
// vectors, stable across processes for the same token.
func (l *Local) Vectorize(_ context.Context, tokens []string, _ string) ([][]float64, error) {
	out := make([][]float64, len(tokens))
	for i, tok := range tokens {
		out[i] = hashVector(strings.ToLower(strings.TrimPrefix(tok, utterance.WordMarker)))
	}
	return out, nil
}

func hashVector(key string) []float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float64, localVectorDim)
	for d := range vec {
		vec[d] = rng.NormFloat64()
	}
	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec
}

// GenerateJunkWords implements LanguageProvider by sampling characters and
// word lengths from the vocabulary's own distribution, so the junk looks
// like the language without being any of its words.
func (l *Local) GenerateJunkWords(_ context.Context, vocabulary []string, _ string) ([]string, error) {
	var pool []rune
	var lengths []int
	known := make(map[string]struct{}, len(vocabulary))
	for _, tok := range vocabulary {
		plain := strings.TrimPrefix(tok, utterance.WordMarker)
		n := 0
		for _, r := range plain {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				pool = append(pool, unicode.ToLower(r))
				n++
			}
		}
		if n > 0 {
			lengths = append(lengths, n)
			known[strings.ToLower(plain)] = struct{}{}
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}

	rng := rand.New(rand.NewSource(l.Seed))
	out := make([]string, 0, len(lengths))
	for range lengths {
		word := sampleWord(rng, pool, lengths)
		if _, taken := known[word]; taken {
			word = sampleWord(rng, pool, lengths)
		}
		out = append(out, word)
	}
	return out, nil
}

func sampleWord(rng *rand.Rand, pool []rune, lengths []int) string {
	n := lengths[rng.Intn(len(lengths))]
	if n < 2 {
		n = 2
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteRune(pool[rng.Intn(len(pool))])
	}
	return b.String()
}

var _ LanguageProvider = (*Local)(nil)
