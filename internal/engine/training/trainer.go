// Package training sequences the full training pipeline: list-entity
// models, utterance construction, entity tagging, tf-idf, fallback-intent
// synthesis, classifier and slot-tagger training, packaged into one Model.
package training

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/converso-ai/nlu-engine/internal/engine/dataset"
	"github.com/converso-ai/nlu-engine/internal/engine/entities"
	"github.com/converso-ai/nlu-engine/internal/engine/intents"
	"github.com/converso-ai/nlu-engine/internal/engine/model"
	"github.com/converso-ai/nlu-engine/internal/engine/slots"
	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/converso-ai/nlu-engine/internal/provider"
	"github.com/converso-ai/nlu-engine/pkg/errors"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

// EventPublisher broadcasts training lifecycle events. Publishing is
// fire-and-forget; implementations swallow and log their own failures.
type EventPublisher interface {
	TrainingStarted(ctx context.Context, botID, language, hash string)
	TrainingFinished(ctx context.Context, botID, language, hash string, success bool, elapsed time.Duration)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) TrainingStarted(context.Context, string, string, string) {}
func (NopPublisher) TrainingFinished(context.Context, string, string, string, bool, time.Duration) {
}

// Trainer runs training cycles. It assumes at most one in-flight cycle per
// bot; exclusion is the caller's responsibility.
type Trainer struct {
	provider provider.LanguageProvider
	system   entities.SystemExtractor
	events   EventPublisher
	logger   logging.Logger
	metrics  *prometheus.Metrics

	// MaxWarnings bounds the per-cycle tagging warning list.
	MaxWarnings int

	// MaxClusters caps the slot tagger's token clustering. Zero keeps the
	// tagger's default.
	MaxClusters int

	// ListEntityCutoff overrides the list-entity scoring cutoff. Zero keeps
	// the default; the value is stamped into every list model so prediction
	// honors it too.
	ListEntityCutoff float64
}

// NewTrainer wires a trainer. system and events may be nil.
func NewTrainer(p provider.LanguageProvider, system entities.SystemExtractor, events EventPublisher, logger logging.Logger, metrics *prometheus.Metrics) *Trainer {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewNopMetrics()
	}
	return &Trainer{
		provider:    p,
		system:      system,
		events:      events,
		logger:      logger.Named("trainer"),
		metrics:     metrics,
		MaxWarnings: 25,
	}
}

// Train runs one full training cycle. It never returns an error: any
// failure inside the pipeline yields a Model with Success=false and the
// original input preserved. Cancellation is honored at stage boundaries
// only; a stage that has started runs to completion.
func (t *Trainer) Train(ctx context.Context, input nlu.TrainInput) *model.Model {
	started := time.Now()
	hash := model.InputHash(input)
	out := &model.Model{
		BotID:     input.BotID,
		Language:  input.Language,
		Hash:      hash,
		Version:   model.EngineVersion,
		StartedAt: started,
		Input:     input,
	}
	log := t.logger.With(
		logging.String("bot_id", input.BotID),
		logging.String("language", input.Language))

	t.events.TrainingStarted(ctx, input.BotID, input.Language, hash)

	artefacts, warnings, err := t.run(ctx, input, log)
	out.Warnings = newestFirst(warnings)
	out.FinishedAt = time.Now()
	if err != nil {
		log.Error("training cycle failed", logging.Err(err))
		t.metrics.ObserveTraining("failure", countUtterances(input), out.FinishedAt.Sub(started))
		t.events.TrainingFinished(ctx, input.BotID, input.Language, hash, false, out.FinishedAt.Sub(started))
		return out
	}

	out.Artefacts = artefacts
	out.Success = true
	t.metrics.ObserveTraining("success", countUtterances(input), out.FinishedAt.Sub(started))
	t.events.TrainingFinished(ctx, input.BotID, input.Language, hash, true, out.FinishedAt.Sub(started))
	log.Info("training cycle succeeded",
		logging.Int("intents", len(input.Intents)),
		logging.Duration("elapsed", out.FinishedAt.Sub(started)))
	return out
}

// run executes stages 2-7; a panic anywhere becomes an error at this
// boundary so Train can degrade to a failed Model. Tagging warnings are
// returned alongside whichever outcome the cycle reaches.
func (t *Trainer) run(ctx context.Context, input nlu.TrainInput, log logging.Logger) (artefacts *model.Artefacts, warnings []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			artefacts = nil
			err = errors.Newf(errors.ErrCodeTrainingFailed, "training pipeline panicked: %v", r)
		}
	}()

	if len(input.Intents) == 0 {
		return nil, nil, errors.New(errors.ErrCodeEmptyTrainingSet, "training input has no intents")
	}
	input = deepCopyInput(input)

	if err := stageGate(ctx); err != nil {
		return nil, nil, err
	}
	listModels, err := entities.BuildListModels(ctx, input.ListEntities, input.Language, t.provider)
	if err != nil {
		return nil, nil, err
	}
	if t.ListEntityCutoff > 0 {
		for i := range listModels {
			listModels[i].Cutoff = t.ListEntityCutoff
		}
	}

	if err := stageGate(ctx); err != nil {
		return nil, nil, err
	}
	trainIntents, allUtts, err := t.buildIntents(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	if err := stageGate(ctx); err != nil {
		return nil, nil, err
	}
	warnings = t.tagEntities(ctx, trainIntents, listModels, input.PatternEntities, input.Language)
	for _, w := range warnings {
		log.Warn("entity tagging degraded", logging.String("detail", w))
	}

	tfidf := utterance.AttachTfidf(allUtts)

	if err := stageGate(ctx); err != nil {
		return nil, warnings, err
	}
	noneIntent, err := t.synthesizeNone(ctx, input, trainIntents)
	if err != nil {
		return nil, warnings, err
	}
	withNone := append(append([]dataset.Intent{}, trainIntents...), noneIntent)
	for _, u := range noneIntent.Utterances {
		u.SetGlobalTfidf(tfidf)
	}

	if err := stageGate(ctx); err != nil {
		return nil, warnings, err
	}
	classifierModel, err := intents.Train(ctx, withNone)
	if err != nil {
		return nil, warnings, err
	}
	classifierBlob, err := classifierModel.Marshal()
	if err != nil {
		return nil, warnings, err
	}

	if err := stageGate(ctx); err != nil {
		return nil, warnings, err
	}
	tagger := slots.NewTagger()
	if input.Seed != 0 {
		tagger.Seed = input.Seed
	}
	if t.MaxClusters > 0 {
		tagger.MaxClusters = t.MaxClusters
	}
	taggerBlob, err := tagger.Train(ctx, trainIntents)
	if err != nil {
		return nil, warnings, err
	}

	return t.packageArtefacts(input, withNone, listModels, tfidf, classifierBlob, taggerBlob), warnings, nil
}

// buildIntents tokenizes every intent's raw utterances in a single batch so
// vectorization stays O(unique tokens) across the whole corpus.
func (t *Trainer) buildIntents(ctx context.Context, input nlu.TrainInput) ([]dataset.Intent, []*utterance.Utterance, error) {
	var raws []string
	counts := make([]int, len(input.Intents))
	for i, def := range input.Intents {
		counts[i] = len(def.Utterances)
		raws = append(raws, def.Utterances...)
	}

	utts, err := utterance.Build(ctx, raws, input.Language, t.provider)
	if err != nil {
		return nil, nil, err
	}

	out := make([]dataset.Intent, len(input.Intents))
	cursor := 0
	for i, def := range input.Intents {
		own := utts[cursor : cursor+counts[i]]
		cursor += counts[i]
		out[i] = dataset.NewIntent(def.Name, def.Contexts, def.Slots, own)
	}
	return out, utts, nil
}

// tagEntities runs all three extractors over every training utterance.
// Failures are isolated per utterance and reported as bounded warnings;
// one bad utterance must not fail the batch.
func (t *Trainer) tagEntities(ctx context.Context, trainIntents []dataset.Intent, listModels []entities.ListEntityModel, patterns []nlu.PatternEntityDef, language string) []string {
	var warnings []string
	warn := func(format string, args ...interface{}) {
		t.metrics.TaggingFailuresTotal.Inc()
		if len(warnings) < t.MaxWarnings {
			warnings = append(warnings, fmt.Sprintf(format, args...))
		}
	}

	for _, intent := range trainIntents {
		for _, u := range intent.Utterances {
			spans, err := entities.ExtractPatterns(u, patterns)
			if err != nil {
				warn("pattern extraction failed for %q: %v", u.Text(), err)
			}
			spans = append(spans, entities.ExtractLists(u, listModels)...)

			if t.system != nil {
				results, err := t.system.Extract(ctx, u.Text(), language)
				if err != nil {
					warn("system extraction failed for %q: %v", u.Text(), err)
				} else {
					spans = append(spans, entities.ReshapeSystemEntities(u, results)...)
				}
			}

			for _, span := range spans {
				if err := u.TagEntity(span); err != nil {
					warn("entity span rejected for %q: %v", u.Text(), err)
				}
			}
		}
	}
	return warnings
}

// synthesizeNone builds the fallback intent from provider junk words:
// max(5, average utterances per intent) utterances, each of roughly the
// corpus's average token count jittered uniformly between half and double.
func (t *Trainer) synthesizeNone(ctx context.Context, input nlu.TrainInput, trainIntents []dataset.Intent) (dataset.Intent, error) {
	vocab := make(map[string]struct{})
	totalUtts, totalTokens := 0, 0
	for _, intent := range trainIntents {
		totalUtts += len(intent.Utterances)
		for _, u := range intent.Utterances {
			totalTokens += u.Len()
			for _, tok := range u.Tokens() {
				vocab[tok.Value] = struct{}{}
			}
		}
	}

	vocabList := make([]string, 0, len(vocab))
	markerCount := 0
	for tok := range vocab {
		vocabList = append(vocabList, tok)
		if utterance.HasWordMarker(tok) {
			markerCount++
		}
	}

	junk, err := t.provider.GenerateJunkWords(ctx, vocabList, input.Language)
	if err != nil {
		return dataset.Intent{}, err
	}

	count := 5
	if len(trainIntents) > 0 && totalUtts/len(trainIntents) > count {
		count = totalUtts / len(trainIntents)
	}
	avgTokens := 1
	if totalUtts > 0 {
		avgTokens = totalTokens / totalUtts
		if avgTokens < 1 {
			avgTokens = 1
		}
	}

	// Space-delimited languages get space-joined junk; a vocabulary where
	// fewer than half the tokens start a word suggests the opposite.
	separator := ""
	if len(vocabList) == 0 || markerCount*2 >= len(vocabList) {
		separator = " "
	}

	seed := input.Seed
	if seed == 0 {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))

	raws := make([]string, 0, count)
	for i := 0; i < count; i++ {
		low, high := avgTokens/2, avgTokens*2
		if low < 1 {
			low = 1
		}
		n := low + rng.Intn(high-low+1)
		words := make([]string, n)
		for j := range words {
			if len(junk) == 0 {
				words[j] = "void"
				continue
			}
			words[j] = junk[rng.Intn(len(junk))]
		}
		raws = append(raws, strings.Join(words, separator))
	}

	utts, err := utterance.Build(ctx, raws, input.Language, t.provider)
	if err != nil {
		return dataset.Intent{}, err
	}
	return dataset.NewIntent(dataset.NoneIntent, input.Contexts, nil, utts), nil
}

func (t *Trainer) packageArtefacts(input nlu.TrainInput, withNone []dataset.Intent, listModels []entities.ListEntityModel, tfidf map[string]float64, classifierBlob, taggerBlob []byte) *model.Artefacts {
	a := &model.Artefacts{
		ClassifierBlob: classifierBlob,
		SlotTaggerBlob: taggerBlob,
		Tfidf:          tfidf,
		ListModels:     listModels,
		Vocabulary:     make(map[string][]float64),
		Contexts:       dataset.Contexts(withNone),
		Patterns:       input.PatternEntities,
	}
	for _, intent := range withNone {
		art := model.IntentArtefact{
			Name:       intent.Name,
			Contexts:   intent.Contexts,
			Slots:      intent.Slots,
			Vocabulary: intent.Vocabulary,
		}
		for entity := range intent.SlotEntities {
			art.SlotEntities = append(art.SlotEntities, entity)
		}
		for _, u := range intent.Utterances {
			art.Utterances = append(art.Utterances, u.Text())
			for _, tok := range u.Tokens() {
				if len(tok.Vector) > 0 {
					a.Vocabulary[tok.Value] = tok.Vector
				}
			}
		}
		a.Intents = append(a.Intents, art)
	}
	return a
}

func stageGate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeTimeout, "training cancelled between stages")
	}
	return nil
}

func deepCopyInput(input nlu.TrainInput) nlu.TrainInput {
	blob, err := json.Marshal(input)
	if err != nil {
		return input
	}
	var out nlu.TrainInput
	if err := json.Unmarshal(blob, &out); err != nil {
		return input
	}
	return out
}

// newestFirst reverses the encounter-ordered warning list so readers of
// a stored model see the latest degradation first.
func newestFirst(warnings []string) []string {
	if len(warnings) < 2 {
		return warnings
	}
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[len(warnings)-1-i] = w
	}
	return out
}

func countUtterances(input nlu.TrainInput) int {
	n := 0
	for _, def := range input.Intents {
		n += len(def.Utterances)
	}
	return n
}
