// Package dataset defines the training-time view of an intent: its
// tokenized utterances plus the derived vocabulary and slot-linked entity
// types the downstream trainers key off.
package dataset

import (
	"strings"

	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

// NoneIntent is the synthetic fallback intent trained from junk words so
// classifiers have an out-of-scope class to elect.
const NoneIntent = "none"

// Intent is one intent with its training utterances attached.
type Intent struct {
	Name     string
	Contexts []string
	Slots    []nlu.SlotDef

	Utterances []*utterance.Utterance

	// Vocabulary marks every token value seen in the intent's utterances.
	Vocabulary map[string]bool

	// SlotEntities is the set of entity types referenced by the intent's
	// slot definitions.
	SlotEntities map[string]struct{}
}

// NewIntent derives Vocabulary and SlotEntities from the given utterances
// and slot definitions.
func NewIntent(name string, contexts []string, slots []nlu.SlotDef, utterances []*utterance.Utterance) Intent {
	in := Intent{
		Name:         name,
		Contexts:     contexts,
		Slots:        slots,
		Utterances:   utterances,
		Vocabulary:   make(map[string]bool),
		SlotEntities: make(map[string]struct{}),
	}
	for _, u := range utterances {
		for _, tok := range u.Tokens() {
			in.Vocabulary[tok.Value] = true
		}
	}
	for _, slot := range slots {
		for _, entity := range slot.Entities {
			in.SlotEntities[entity] = struct{}{}
		}
	}
	return in
}

// IsNone reports whether the intent is the synthetic fallback.
func (in Intent) IsNone() bool {
	return strings.EqualFold(in.Name, NoneIntent)
}

// HasContext reports whether the intent declares the given context.
func (in Intent) HasContext(context string) bool {
	for _, c := range in.Contexts {
		if c == context {
			return true
		}
	}
	return false
}

// WithoutNone filters out the synthetic fallback intent.
func WithoutNone(intents []Intent) []Intent {
	out := make([]Intent, 0, len(intents))
	for _, in := range intents {
		if !in.IsNone() {
			out = append(out, in)
		}
	}
	return out
}

// Contexts returns the unique union of every intent's contexts in
// first-seen order.
func Contexts(intents []Intent) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, in := range intents {
		for _, c := range in.Contexts {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
