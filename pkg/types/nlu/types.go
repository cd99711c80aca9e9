// Package nlu defines the public wire types of the NLU engine: training
// definitions supplied by callers and prediction results returned to them.
// The engine's internal, derived artefacts (tokenized utterances, classifier
// snapshots) live under internal/engine and are not part of this surface.
package nlu

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Training definitions (caller-supplied)
// ─────────────────────────────────────────────────────────────────────────────

// PatternEntityDef defines an entity type matched by a regular expression.
type PatternEntityDef struct {
	Name       string `json:"name"`
	Pattern    string `json:"pattern"`
	IgnoreCase bool   `json:"ignore_case"`
}

// ListEntityDef defines an entity type matched against an explicit
// canonical-value/synonym table.
type ListEntityDef struct {
	Name          string              `json:"name"`
	Synonyms      map[string][]string `json:"synonyms"`
	FuzzyMatching bool                `json:"fuzzy_matching"`
}

// SlotDef declares a named slot of an intent and the entity types that may
// fill it.
type SlotDef struct {
	Name     string   `json:"name"`
	Entities []string `json:"entities"`
}

// IntentDef is one intent as supplied for training: its contexts, slots, and
// raw example utterances.  Utterances may carry inline slot annotations of
// the form "[value](slotName)".
type IntentDef struct {
	Name       string    `json:"name"`
	Contexts   []string  `json:"contexts"`
	Slots      []SlotDef `json:"slots"`
	Utterances []string  `json:"utterances"`
}

// TrainInput is the aggregate training request for one (bot, language) pair.
type TrainInput struct {
	BotID           string             `json:"bot_id"`
	Language        string             `json:"language"`
	Contexts        []string           `json:"contexts"`
	Intents         []IntentDef        `json:"intents"`
	ListEntities    []ListEntityDef    `json:"list_entities"`
	PatternEntities []PatternEntityDef `json:"pattern_entities"`

	// Seed makes the "none"-intent synthesis deterministic when non-zero.
	Seed int64 `json:"seed,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Prediction results
// ─────────────────────────────────────────────────────────────────────────────

// Extractor names reported on EntityResult.
const (
	ExtractorPattern = "pattern"
	ExtractorList    = "list"
	ExtractorSystem  = "system"
)

// EntityResult is one recognized entity span in an incoming sentence.
// Value is the canonical value, not the matched surface text.
type EntityResult struct {
	Type       string            `json:"type"`
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence"`
	StartChar  int               `json:"start_char"`
	EndChar    int               `json:"end_char"`
	Extractor  string            `json:"extractor"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SlotResult is one filled slot: a named span bound to an entity type.
type SlotResult struct {
	Name       string  `json:"name"`
	Source     string  `json:"source"`
	Entity     string  `json:"entity,omitempty"`
	Confidence float64 `json:"confidence"`
	StartChar  int     `json:"start_char"`
	EndChar    int     `json:"end_char"`
}

// IntentPrediction is one ranked intent candidate.
type IntentPrediction struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ContextPrediction carries the ranked intents predicted within one context.
type ContextPrediction struct {
	Name       string             `json:"name"`
	Confidence float64            `json:"confidence"`
	Intents    []IntentPrediction `json:"intents"`
}

// PredictOutput is the full result of one prediction call.
//
// Contexts holds the per-context intent rankings exactly as produced by the
// per-context classifiers; no cross-context merge is performed.  Intent is a
// convenience field carrying the top intent of the top-ranked context.
type PredictOutput struct {
	Text               string              `json:"text"`
	Language           string              `json:"language"`
	LanguageConfidence float64             `json:"language_confidence"`
	Entities           []EntityResult      `json:"entities"`
	Contexts           []ContextPrediction `json:"contexts"`
	Slots              []SlotResult        `json:"slots"`
	Intent             *IntentPrediction   `json:"intent,omitempty"`
	ElapsedMs          int64               `json:"elapsed_ms"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Model provenance
// ─────────────────────────────────────────────────────────────────────────────

// ModelInfo is the provenance header of a trained model as listed by the
// model store.
type ModelInfo struct {
	BotID      string    `json:"bot_id"`
	Language   string    `json:"language"`
	Hash       string    `json:"hash"`
	Success    bool      `json:"success"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Version    string    `json:"version"`
}
