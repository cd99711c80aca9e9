package training

import (
	"context"
	"testing"

	"github.com/converso-ai/nlu-engine/internal/engine/dataset"
	"github.com/converso-ai/nlu-engine/internal/engine/intents"
	"github.com/converso-ai/nlu-engine/internal/engine/model"
	"github.com/converso-ai/nlu-engine/internal/provider"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

func sampleInput() nlu.TrainInput {
	return nlu.TrainInput{
		BotID:    "bot-1",
		Language: "en",
		Contexts: []string{"travel", "smalltalk"},
		Intents: []nlu.IntentDef{
			{
				Name:     "book_flight",
				Contexts: []string{"travel"},
				Slots:    []nlu.SlotDef{{Name: "destination", Entities: []string{"city"}}},
				Utterances: []string{
					"fly to [paris](destination)",
					"book a flight to [rome](destination)",
					"i need a plane ticket to [madrid](destination)",
				},
			},
			{
				Name:     "greet",
				Contexts: []string{"smalltalk"},
				Utterances: []string{
					"hello there",
					"good morning",
					"hey how are you",
				},
			},
		},
		ListEntities: []nlu.ListEntityDef{{
			Name: "city",
			Synonyms: map[string][]string{
				"Paris":  {"paris"},
				"Rome":   {"rome"},
				"Madrid": {"madrid"},
			},
		}},
		Seed: 7,
	}
}

func newTestTrainer() *Trainer {
	return NewTrainer(provider.NewLocal(), nil, nil, nil, nil)
}

func TestTrainSuccessfulCycle(t *testing.T) {
	m := newTestTrainer().Train(context.Background(), sampleInput())
	if !m.Success {
		t.Fatal("training should succeed")
	}
	if !m.Trained() {
		t.Fatal("model should be usable")
	}
	if m.Hash == "" {
		t.Fatal("model hash missing")
	}
	a := m.Artefacts
	if len(a.Tfidf) == 0 {
		t.Fatal("tfidf table empty")
	}
	if len(a.Vocabulary) == 0 {
		t.Fatal("vocabulary snapshot empty")
	}
	if len(a.ListModels) != 1 || a.ListModels[0].Name != "city" {
		t.Fatalf("list models = %+v", a.ListModels)
	}
	if len(a.SlotTaggerBlob) == 0 {
		t.Fatal("slot tagger blob empty")
	}
	if m.Version != model.EngineVersion {
		t.Fatalf("model version = %q, want %q", m.Version, model.EngineVersion)
	}
}

func TestNewestFirstReversesWarnings(t *testing.T) {
	got := newestFirst([]string{"first", "second", "third"})
	if got[0] != "third" || got[2] != "first" {
		t.Fatalf("newestFirst = %v", got)
	}
	if out := newestFirst([]string{"only"}); len(out) != 1 || out[0] != "only" {
		t.Fatalf("single-element reverse = %v", out)
	}
}

func TestTrainStampsListEntityCutoff(t *testing.T) {
	trainer := newTestTrainer()
	trainer.ListEntityCutoff = 0.9

	m := trainer.Train(context.Background(), sampleInput())
	if !m.Success {
		t.Fatal("training should succeed")
	}
	for _, lm := range m.Artefacts.ListModels {
		if lm.Cutoff != 0.9 {
			t.Fatalf("list model %q cutoff = %v, want 0.9", lm.Name, lm.Cutoff)
		}
	}
}

func TestTrainEveryContextHasIntentClassifier(t *testing.T) {
	m := newTestTrainer().Train(context.Background(), sampleInput())
	if !m.Success {
		t.Fatal("training should succeed")
	}

	classifiers, err := intents.UnmarshalModel(m.Artefacts.ClassifierBlob)
	if err != nil {
		t.Fatalf("UnmarshalModel: %v", err)
	}
	for _, c := range m.Artefacts.Contexts {
		if _, ok := classifiers.IntentBlobs[c]; !ok {
			t.Fatalf("context %q has no intent classifier", c)
		}
	}
}

func TestTrainSynthesizesNoneIntent(t *testing.T) {
	m := newTestTrainer().Train(context.Background(), sampleInput())
	if !m.Success {
		t.Fatal("training should succeed")
	}

	none, ok := m.Intent(dataset.NoneIntent)
	if !ok {
		t.Fatal("none intent missing from artefacts")
	}
	// max(5, average utterances per intent) with 3 per intent is 5.
	if len(none.Utterances) != 5 {
		t.Fatalf("none utterances = %d, want 5", len(none.Utterances))
	}
	if len(none.Contexts) != 2 {
		t.Fatalf("none contexts = %v, want both", none.Contexts)
	}
}

func TestTrainDeterministicHash(t *testing.T) {
	a := model.InputHash(sampleInput())
	b := model.InputHash(sampleInput())
	if a == "" || a != b {
		t.Fatalf("hashes %q vs %q", a, b)
	}
	changed := sampleInput()
	changed.Intents[0].Utterances = append(changed.Intents[0].Utterances, "another one")
	if model.InputHash(changed) == a {
		t.Fatal("hash should change with the input")
	}
}

func TestTrainDoesNotMutateCallerInput(t *testing.T) {
	input := sampleInput()
	utterancesBefore := len(input.Intents[0].Utterances)
	_ = newTestTrainer().Train(context.Background(), input)
	if len(input.Intents[0].Utterances) != utterancesBefore {
		t.Fatal("caller input mutated")
	}
}

// panicExtractor simulates a broken collaborator blowing up mid-pipeline.
type panicExtractor struct{}

func (panicExtractor) Extract(context.Context, string, string) ([]nlu.EntityResult, error) {
	panic("boom")
}

func TestTrainFailureContainment(t *testing.T) {
	trainer := NewTrainer(provider.NewLocal(), panicExtractor{}, nil, nil, nil)
	input := sampleInput()

	m := trainer.Train(context.Background(), input)
	if m.Success {
		t.Fatal("training should fail")
	}
	if m.Artefacts != nil {
		t.Fatal("failed model must carry no artefacts")
	}
	if m.Input.BotID != input.BotID || len(m.Input.Intents) != len(input.Intents) {
		t.Fatalf("original input not preserved: %+v", m.Input)
	}
}

func TestTrainEmptyInputFails(t *testing.T) {
	m := newTestTrainer().Train(context.Background(), nlu.TrainInput{BotID: "b", Language: "en"})
	if m.Success {
		t.Fatal("empty input should fail")
	}
}

func TestTrainHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newTestTrainer().Train(ctx, sampleInput())
	if m.Success {
		t.Fatal("cancelled training should fail")
	}
}
