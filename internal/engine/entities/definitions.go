// Package entities implements the three entity extractors: pattern (regex),
// list (fuzzy/structural synonym matching) and system (external service
// passthrough).
package entities

import (
	"context"
	"strings"

	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/pkg/errors"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

// ListEntityModel is the training-time artifact derived from a list entity
// definition: every synonym tokenized once so matching can run at the token
// level.
type ListEntityModel struct {
	Name   string      `json:"name"`
	Fuzzy  bool        `json:"fuzzy"`
	Values []ListValue `json:"values"`

	// Cutoff overrides ListEntityCutoff for this entity. Zero means the
	// default; the value rides in the model so prediction scores the same
	// way the training tagging did.
	Cutoff float64 `json:"cutoff,omitempty"`
}

// ListValue groups the tokenized variants of one canonical value.
type ListValue struct {
	Name     string     `json:"name"`
	Variants [][]string `json:"variants"`
}

// BuildListModels tokenizes every synonym of every list entity definition in
// one batch and returns the derived models. The canonical value itself is
// always included as a variant.
func BuildListModels(ctx context.Context, defs []nlu.ListEntityDef, language string, provider utterance.TokenProvider) ([]ListEntityModel, error) {
	type slot struct{ def, value, variant int }

	var texts []string
	var slots []slot

	models := make([]ListEntityModel, len(defs))
	for d, def := range defs {
		models[d] = ListEntityModel{Name: def.Name, Fuzzy: def.FuzzyMatching}
		for canonical, synonyms := range def.Synonyms {
			variants := append([]string{canonical}, synonyms...)
			seen := make(map[string]struct{}, len(variants))
			value := ListValue{Name: canonical}
			for _, syn := range variants {
				syn = strings.TrimSpace(syn)
				if syn == "" {
					continue
				}
				key := strings.ToLower(syn)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				slots = append(slots, slot{def: d, value: len(models[d].Values), variant: len(value.Variants)})
				value.Variants = append(value.Variants, nil)
				texts = append(texts, syn)
			}
			models[d].Values = append(models[d].Values, value)
		}
	}

	if len(texts) == 0 {
		return models, nil
	}
	tokenLists, err := provider.Tokenize(ctx, texts, language)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTokenizeFailed, "failed to tokenize list entity synonyms")
	}
	if len(tokenLists) != len(texts) {
		return nil, errors.Newf(errors.ErrCodeTokenizeFailed, "provider returned %d token lists for %d synonyms", len(tokenLists), len(texts))
	}
	for i, s := range slots {
		models[s.def].Values[s.value].Variants[s.variant] = tokenLists[i]
	}
	return models, nil
}
