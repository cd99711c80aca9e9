package intents

import (
	"context"
	"testing"

	"github.com/converso-ai/nlu-engine/internal/engine/dataset"
	"github.com/converso-ai/nlu-engine/internal/engine/embedding"
	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// vecUtterance builds a one-token utterance carrying the given vector, so
// its embedding is the normalized vector.
func vecUtterance(tok string, vec []float64) *utterance.Utterance {
	return utterance.New(tok, "en", []string{tok}, map[string][]float64{tok: vec})
}

func classifierIntents() []dataset.Intent {
	travel := dataset.NewIntent("book_flight", []string{"travel"}, nil, []*utterance.Utterance{
		vecUtterance("fly", []float64{1, 0, 0}),
		vecUtterance("flight", []float64{0.9, 0.1, 0}),
		vecUtterance("plane", []float64{0.95, 0.05, 0}),
	})
	hotel := dataset.NewIntent("book_hotel", []string{"travel"}, nil, []*utterance.Utterance{
		vecUtterance("hotel", []float64{0, 1, 0}),
		vecUtterance("room", []float64{0.1, 0.9, 0}),
		vecUtterance("suite", []float64{0.05, 0.95, 0}),
	})
	greet := dataset.NewIntent("greet", []string{"smalltalk"}, nil, []*utterance.Utterance{
		vecUtterance("hello", []float64{0, 0, 1}),
		vecUtterance("hi", []float64{0.1, 0, 0.9}),
		vecUtterance("hey", []float64{0, 0.1, 0.95}),
	})
	none := dataset.NewIntent(dataset.NoneIntent, []string{"travel", "smalltalk"}, nil, []*utterance.Utterance{
		vecUtterance("qwerty", []float64{-1, -1, -1}),
		vecUtterance("asdf", []float64{-0.9, -1.1, -0.95}),
	})
	return []dataset.Intent{travel, hotel, greet, none}
}

func TestTrainCoversEveryContextAndIntent(t *testing.T) {
	intents := classifierIntents()
	model, err := Train(context.Background(), intents)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(model.ContextBlob) == 0 {
		t.Fatal("context classifier missing")
	}
	for _, c := range dataset.Contexts(intents) {
		if _, ok := model.IntentBlobs[c]; !ok {
			t.Fatalf("context %q has no intent classifier", c)
		}
	}
}

func TestPredictContextsRanksDeclaredContext(t *testing.T) {
	model, err := Train(context.Background(), classifierIntents())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	emb := embedding.Embed(vecUtterance("plane", []float64{1, 0.05, 0}))
	ranked, err := PredictContexts(model, emb)
	if err != nil {
		t.Fatalf("PredictContexts: %v", err)
	}
	if ranked[0].Label != "travel" {
		t.Fatalf("top context = %q, want travel", ranked[0].Label)
	}

	emb = embedding.Embed(vecUtterance("hiya", []float64{0.05, 0, 1}))
	ranked, err = PredictContexts(model, emb)
	if err != nil {
		t.Fatalf("PredictContexts: %v", err)
	}
	if ranked[0].Label != "smalltalk" {
		t.Fatalf("top context = %q, want smalltalk", ranked[0].Label)
	}
}

func TestPredictIntentsPerContext(t *testing.T) {
	model, err := Train(context.Background(), classifierIntents())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	emb := embedding.Embed(vecUtterance("room", []float64{0.05, 1, 0}))
	ranked, ok, err := PredictIntents(model, "travel", emb)
	if err != nil || !ok {
		t.Fatalf("PredictIntents: ok=%v err=%v", ok, err)
	}
	if ranked[0].Label != "book_hotel" {
		t.Fatalf("top intent = %q, want book_hotel", ranked[0].Label)
	}

	// The smalltalk classifier never saw hotel intents.
	ranked, ok, err = PredictIntents(model, "smalltalk", emb)
	if err != nil || !ok {
		t.Fatalf("PredictIntents: ok=%v err=%v", ok, err)
	}
	for _, r := range ranked {
		if r.Label == "book_hotel" {
			t.Fatal("smalltalk classifier should not know book_hotel")
		}
	}
}

func TestPredictIntentsIncludesNone(t *testing.T) {
	model, err := Train(context.Background(), classifierIntents())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	emb := embedding.Embed(vecUtterance("zxcv", []float64{-1, -1, -1}))
	ranked, ok, err := PredictIntents(model, "travel", emb)
	if err != nil || !ok {
		t.Fatalf("PredictIntents: ok=%v err=%v", ok, err)
	}
	if ranked[0].Label != dataset.NoneIntent {
		t.Fatalf("top intent = %q, want none", ranked[0].Label)
	}
}

func TestPredictIntentsUntrainedContextSkipped(t *testing.T) {
	model, err := Train(context.Background(), classifierIntents())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	_, ok, err := PredictIntents(model, "no-such-context", []float64{1, 0, 0})
	if err != nil {
		t.Fatalf("PredictIntents: %v", err)
	}
	if ok {
		t.Fatal("unknown context should be skipped, not predicted")
	}
}

func TestTrainRejectsEmptyTrainingSet(t *testing.T) {
	empty := dataset.NewIntent("ghost", []string{"travel"}, nil, nil)
	_, err := Train(context.Background(), []dataset.Intent{empty})
	if !errors.IsCode(err, errors.ErrCodeEmptyTrainingSet) {
		t.Fatalf("err = %v, want empty-training-set", err)
	}
}

func TestModelRoundTrip(t *testing.T) {
	model, err := Train(context.Background(), classifierIntents())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	blob, err := model.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	restored, err := UnmarshalModel(blob)
	if err != nil {
		t.Fatalf("UnmarshalModel: %v", err)
	}

	emb := embedding.Embed(vecUtterance("plane", []float64{1, 0, 0}))
	ranked, err := PredictContexts(restored, emb)
	if err != nil {
		t.Fatalf("PredictContexts: %v", err)
	}
	if ranked[0].Label != "travel" {
		t.Fatalf("top context = %q, want travel", ranked[0].Label)
	}
}
