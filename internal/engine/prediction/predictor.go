// Package prediction sequences the prediction cascade: language election,
// utterance construction, entity extraction, context and intent
// classification, and slot extraction.
package prediction

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/converso-ai/nlu-engine/internal/engine/dataset"
	"github.com/converso-ai/nlu-engine/internal/engine/embedding"
	"github.com/converso-ai/nlu-engine/internal/engine/entities"
	"github.com/converso-ai/nlu-engine/internal/engine/intents"
	"github.com/converso-ai/nlu-engine/internal/engine/language"
	"github.com/converso-ai/nlu-engine/internal/engine/model"
	"github.com/converso-ai/nlu-engine/internal/engine/slots"
	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/converso-ai/nlu-engine/internal/provider"
	"github.com/converso-ai/nlu-engine/pkg/errors"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

// ModelSet is every trained model available to one bot, keyed by language.
type ModelSet struct {
	DefaultLanguage string
	Models          map[string]*model.Model
}

// Supported returns the languages with a usable model.
func (s ModelSet) Supported() map[string]bool {
	out := make(map[string]bool, len(s.Models))
	for lang, m := range s.Models {
		if m.Trained() {
			out[lang] = true
		}
	}
	return out
}

// Predictor runs prediction calls against immutable models. Calls are
// independent and may run concurrently.
type Predictor struct {
	provider provider.LanguageProvider
	system   entities.SystemExtractor
	detector language.Detector
	logger   logging.Logger
	metrics  *prometheus.Metrics

	// indexes, when set, supplies the out-of-vocabulary lookup index.
	indexes VocabIndexProvider

	// taggers caches the rebuilt slot tagger per model hash; rebuilding
	// the clustering on every call would dominate latency.
	mu      sync.Mutex
	taggers map[string]*slots.Tagger
}

// UseVocabIndexes installs an external out-of-vocabulary index backend.
func (p *Predictor) UseVocabIndexes(provider VocabIndexProvider) {
	p.indexes = provider
}

// NewPredictor wires a predictor. system may be nil.
func NewPredictor(p provider.LanguageProvider, system entities.SystemExtractor, detector language.Detector, logger logging.Logger, metrics *prometheus.Metrics) *Predictor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewNopMetrics()
	}
	if detector == nil {
		detector = language.NewDetector()
	}
	return &Predictor{
		provider: p,
		system:   system,
		detector: detector,
		logger:   logger.Named("predictor"),
		metrics:  metrics,
		taggers:  make(map[string]*slots.Tagger),
	}
}

// Predict classifies one incoming sentence against the bot's models.
func (p *Predictor) Predict(ctx context.Context, text string, set ModelSet) (*nlu.PredictOutput, error) {
	started := time.Now()
	if strings.TrimSpace(text) == "" {
		return nil, errors.New(errors.ErrCodeEmptyInput, "prediction input text is empty")
	}

	election := language.Elect(p.detector, text, set.DefaultLanguage, set.Supported())
	if election.FellBack {
		p.metrics.LanguageFallbacks.Inc()
	}
	m := set.Models[election.Language]
	if !m.Trained() {
		return nil, errors.Newf(errors.ErrCodeModelNotFound, "no trained model for language %q", election.Language)
	}

	out := &nlu.PredictOutput{
		Text:               text,
		Language:           election.Language,
		LanguageConfidence: election.Confidence,
	}

	u, err := p.buildUtterance(ctx, text, m)
	if err != nil {
		return nil, err
	}

	p.extractEntities(ctx, u, m)
	for _, span := range u.Entities() {
		out.Entities = append(out.Entities, nlu.EntityResult{
			Type:       span.Type,
			Value:      span.Value,
			Confidence: span.Confidence,
			StartChar:  span.StartChar,
			EndChar:    span.EndChar,
			Extractor:  span.Extractor,
			Metadata:   span.Metadata,
		})
	}

	if name, ok := p.exactMatch(u, m); ok {
		p.metrics.ExactMatchHitsTotal.Inc()
		p.electExact(out, name, m)
	} else if err := p.classify(out, u, m); err != nil {
		return nil, err
	}

	if out.Intent != nil && out.Intent.Name != dataset.NoneIntent {
		spans, err := p.extractSlots(u, m, out.Intent.Name)
		if err != nil {
			p.logger.Warn("slot extraction failed", logging.Err(err))
		}
		for _, span := range spans {
			out.Slots = append(out.Slots, nlu.SlotResult{
				Name:       span.Name,
				Source:     span.Source,
				Entity:     p.entityFor(u, span),
				Confidence: confidenceFor(out.Intent),
				StartChar:  span.StartChar,
				EndChar:    span.EndChar,
			})
		}
	}

	out.ElapsedMs = time.Since(started).Milliseconds()
	p.metrics.ObservePrediction(election.Language, time.Since(started))
	return out, nil
}

// buildUtterance tokenizes the text with the model's language, attaches the
// trained tf-idf table and patches out-of-vocabulary tokens by borrowing
// the weight of the nearest known token.
func (p *Predictor) buildUtterance(ctx context.Context, text string, m *model.Model) (*utterance.Utterance, error) {
	utts, err := utterance.Build(ctx, []string{text}, m.Language, p.provider)
	if err != nil {
		return nil, err
	}
	u := utts[0]

	tfidf := m.Artefacts.Tfidf
	var patched map[string]float64
	var index, fallback VocabIndex
	for _, tok := range u.Tokens() {
		if _, known := tfidf[tok.Value]; known || len(tok.Vector) == 0 {
			continue
		}
		if index == nil {
			if p.indexes != nil {
				index = p.indexes.IndexFor(ctx, m)
			} else {
				index = NewMemoryVocabIndex(m.Artefacts.Vocabulary)
			}
		}
		nearest, ok := index.Nearest(tok.Vector)
		if !ok && p.indexes != nil {
			// The external index may not hold this model yet; the trained
			// vocabulary travels with the model, so scan it instead.
			if fallback == nil {
				fallback = NewMemoryVocabIndex(m.Artefacts.Vocabulary)
			}
			nearest, ok = fallback.Nearest(tok.Vector)
		}
		if !ok {
			continue
		}
		if patched == nil {
			patched = make(map[string]float64, len(tfidf)+4)
			for k, v := range tfidf {
				patched[k] = v
			}
		}
		patched[tok.Value] = tfidf[nearest]
	}
	if patched != nil {
		tfidf = patched
	}
	u.SetGlobalTfidf(tfidf)
	return u, nil
}

// extractEntities runs the three extractors; failures degrade to fewer
// entities, never to a failed prediction.
func (p *Predictor) extractEntities(ctx context.Context, u *utterance.Utterance, m *model.Model) {
	spans, err := entities.ExtractPatterns(u, m.Artefacts.Patterns)
	if err != nil {
		p.logger.Warn("pattern extraction failed", logging.Err(err))
	}
	spans = append(spans, entities.ExtractLists(u, m.Artefacts.ListModels)...)
	if p.system != nil {
		results, err := p.system.Extract(ctx, u.Text(), m.Language)
		if err != nil {
			p.logger.Warn("system extraction failed", logging.Err(err))
		} else {
			spans = append(spans, entities.ReshapeSystemEntities(u, results)...)
		}
	}
	for _, span := range spans {
		if err := u.TagEntity(span); err != nil {
			p.logger.Warn("entity span rejected", logging.Err(err))
		}
	}
}

// exactMatch short-circuits classification when the canonical text equals a
// training utterance verbatim (case-insensitive).
func (p *Predictor) exactMatch(u *utterance.Utterance, m *model.Model) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(u.Text()))
	if needle == "" {
		return "", false
	}
	for _, art := range m.Artefacts.Intents {
		if art.Name == dataset.NoneIntent {
			continue
		}
		for _, trained := range art.Utterances {
			if strings.ToLower(strings.TrimSpace(trained)) == needle {
				return art.Name, true
			}
		}
	}
	return "", false
}

func (p *Predictor) electExact(out *nlu.PredictOutput, name string, m *model.Model) {
	out.Intent = &nlu.IntentPrediction{Name: name, Confidence: 1}
	if art, ok := m.Intent(name); ok {
		for _, c := range art.Contexts {
			out.Contexts = append(out.Contexts, nlu.ContextPrediction{
				Name:       c,
				Confidence: 1,
				Intents:    []nlu.IntentPrediction{{Name: name, Confidence: 1}},
			})
		}
	}
}

// classify runs the context classifier, then each candidate context's
// intent classifier. Contexts without a trained classifier are skipped
// silently. Rankings stay per-context; the final intent is a convenience
// pointer at the top intent of the top-ranked context, not a cross-context
// merge.
func (p *Predictor) classify(out *nlu.PredictOutput, u *utterance.Utterance, m *model.Model) error {
	emb := embedding.Embed(u)
	if emb == nil {
		out.Intent = &nlu.IntentPrediction{Name: dataset.NoneIntent, Confidence: 1}
		return nil
	}

	classifiers, err := intents.UnmarshalModel(m.Artefacts.ClassifierBlob)
	if err != nil {
		return err
	}
	ranked, err := intents.PredictContexts(classifiers, emb)
	if err != nil {
		return err
	}

	for _, rc := range ranked {
		intentRanks, ok, err := intents.PredictIntents(classifiers, rc.Label, emb)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		cp := nlu.ContextPrediction{Name: rc.Label, Confidence: rc.Score}
		for _, ri := range intentRanks {
			cp.Intents = append(cp.Intents, nlu.IntentPrediction{Name: ri.Label, Confidence: ri.Score})
		}
		out.Contexts = append(out.Contexts, cp)
	}

	if len(out.Contexts) > 0 && len(out.Contexts[0].Intents) > 0 {
		top := out.Contexts[0].Intents[0]
		out.Intent = &nlu.IntentPrediction{Name: top.Name, Confidence: top.Confidence}
	}
	return nil
}

// extractSlots loads (or reuses) the model's slot tagger and extracts
// slots for the elected intent.
func (p *Predictor) extractSlots(u *utterance.Utterance, m *model.Model, intentName string) ([]utterance.SlotSpan, error) {
	art, ok := m.Intent(intentName)
	if !ok {
		return nil, nil
	}

	tagger, err := p.taggerFor(m)
	if err != nil {
		return nil, err
	}
	return tagger.Extract(u, art.Intent())
}

func (p *Predictor) taggerFor(m *model.Model) (*slots.Tagger, error) {
	p.mu.Lock()
	if tagger, ok := p.taggers[m.Hash]; ok {
		p.mu.Unlock()
		return tagger, nil
	}
	p.mu.Unlock()

	tagger := slots.NewTagger()
	if err := tagger.Load(m.Artefacts.SlotTaggerBlob); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.taggers[m.Hash] = tagger
	p.mu.Unlock()
	return tagger, nil
}

// entityFor reports the type of the first entity span overlapping the slot.
func (p *Predictor) entityFor(u *utterance.Utterance, span utterance.SlotSpan) string {
	for i := span.StartToken; i < span.EndToken; i++ {
		for _, e := range u.EntitiesAt(i) {
			return e.Type
		}
	}
	return ""
}

func confidenceFor(intent *nlu.IntentPrediction) float64 {
	if intent == nil {
		return 0
	}
	return intent.Confidence
}
