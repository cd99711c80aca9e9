package utterance

import (
	"context"

	"golang.org/x/text/unicode/norm"

	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// TokenProvider is the slice of the language-provider surface the builder
// needs. Both calls are batch calls so the provider can amortize network
// round trips.
type TokenProvider interface {
	Tokenize(ctx context.Context, texts []string, language string) ([][]string, error)
	Vectorize(ctx context.Context, tokens []string, language string) ([][]float64, error)
}

// Build constructs Utterances for a batch of raw texts. Inline slot
// annotations are stripped before tokenization and re-attached as slot
// spans over the resulting token ranges.
//
// Vectorization is deduplicated across the whole batch: however many times
// a token appears, the provider sees it once.
func Build(ctx context.Context, raws []string, language string, provider TokenProvider) ([]*Utterance, error) {
	canonicals := make([]string, len(raws))
	parsed := make([][]ParsedSlot, len(raws))
	for i, raw := range raws {
		// Tokens compare by bytes downstream; mixed composed and
		// decomposed input would defeat vocabulary lookups.
		canonicals[i], parsed[i] = StripAnnotations(norm.NFC.String(raw))
	}

	tokenLists, err := provider.Tokenize(ctx, canonicals, language)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTokenizeFailed, "tokenization failed")
	}
	if len(tokenLists) != len(canonicals) {
		return nil, errors.Newf(errors.ErrCodeTokenizeFailed, "provider returned %d token lists for %d texts", len(tokenLists), len(canonicals))
	}

	seen := make(map[string]struct{})
	var distinct []string
	for _, list := range tokenLists {
		for _, tok := range list {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			distinct = append(distinct, tok)
		}
	}

	vectors := make(map[string][]float64, len(distinct))
	if len(distinct) > 0 {
		vecs, err := provider.Vectorize(ctx, distinct, language)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeVectorizeFailed, "vectorization failed")
		}
		if len(vecs) != len(distinct) {
			return nil, errors.Newf(errors.ErrCodeVectorizeFailed, "provider returned %d vectors for %d tokens", len(vecs), len(distinct))
		}
		for i, tok := range distinct {
			vectors[tok] = vecs[i]
		}
	}

	out := make([]*Utterance, len(raws))
	for i := range raws {
		u := New(canonicals[i], language, tokenLists[i], vectors)
		applyParsedSlots(u, parsed[i])
		out[i] = u
	}
	return out, nil
}

// applyParsedSlots converts character-offset slots into token-range slot
// spans. A slot that covers no word token is dropped silently; annotation
// mistakes must not fail a training batch.
func applyParsedSlots(u *Utterance, slots []ParsedSlot) {
	for _, ps := range slots {
		start, end := -1, -1
		for _, tok := range u.Tokens() {
			plain := tok.Plain()
			if plain == "" {
				continue
			}
			tokStart, tokEnd := tok.Offset, tok.Offset+len(plain)
			if tokStart < ps.End && tokEnd > ps.Start {
				if start == -1 {
					start = tok.Index
				}
				end = tok.Index + 1
			}
		}
		if start == -1 {
			continue
		}
		_ = u.TagSlot(SlotSpan{
			Name:       ps.Name,
			Source:     ps.Value,
			StartToken: start,
			EndToken:   end,
			StartChar:  ps.Start,
			EndChar:    ps.End,
		})
	}
}
