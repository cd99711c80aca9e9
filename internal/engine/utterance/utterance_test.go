package utterance

import (
	"context"
	"strings"
	"testing"
)

// fakeProvider tokenizes by splitting on spaces and prefixing each token
// with the word marker, mirroring what the real providers return.
type fakeProvider struct {
	tokenizeCalls  int
	vectorizeCalls int
	vectorizedToks []string
}

func (f *fakeProvider) Tokenize(_ context.Context, texts []string, _ string) ([][]string, error) {
	f.tokenizeCalls++
	out := make([][]string, len(texts))
	for i, text := range texts {
		for _, w := range strings.Fields(text) {
			out[i] = append(out[i], WordMarker+w)
		}
	}
	return out, nil
}

func (f *fakeProvider) Vectorize(_ context.Context, tokens []string, _ string) ([][]float64, error) {
	f.vectorizeCalls++
	f.vectorizedToks = append(f.vectorizedToks, tokens...)
	out := make([][]float64, len(tokens))
	for i, tok := range tokens {
		out[i] = []float64{float64(len(tok)), 1}
	}
	return out, nil
}

func TestStripAnnotations(t *testing.T) {
	canonical, slots := StripAnnotations("book flight to [Paris](destination) on [monday](date)")
	if canonical != "book flight to Paris on monday" {
		t.Fatalf("canonical = %q", canonical)
	}
	if len(slots) != 2 {
		t.Fatalf("slots = %d, want 2", len(slots))
	}
	if slots[0].Name != "destination" || slots[0].Value != "Paris" {
		t.Fatalf("slot 0 = %+v", slots[0])
	}
	if canonical[slots[0].Start:slots[0].End] != "Paris" {
		t.Fatalf("slot 0 offsets cover %q", canonical[slots[0].Start:slots[0].End])
	}
	if canonical[slots[1].Start:slots[1].End] != "monday" {
		t.Fatalf("slot 1 offsets cover %q", canonical[slots[1].Start:slots[1].End])
	}
}

func TestStripAnnotationsEmptyValueIsPlainText(t *testing.T) {
	canonical, slots := StripAnnotations("go to [](destination) now")
	if canonical != "go to [](destination) now" {
		t.Fatalf("canonical = %q", canonical)
	}
	if len(slots) != 0 {
		t.Fatalf("slots = %v, want none", slots)
	}
}

func TestStripAnnotationsNoAnnotations(t *testing.T) {
	canonical, slots := StripAnnotations("hello there")
	if canonical != "hello there" || slots != nil {
		t.Fatalf("canonical = %q, slots = %v", canonical, slots)
	}
}

func TestBuildRoundTripsSlotTags(t *testing.T) {
	p := &fakeProvider{}
	utts, err := Build(context.Background(), []string{"book flight to [Paris](destination)"}, "en", p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	u := utts[0]
	if u.Text() != "book flight to Paris" {
		t.Fatalf("text = %q", u.Text())
	}
	if u.Len() != 4 {
		t.Fatalf("tokens = %d, want 4", u.Len())
	}

	var beginnings int
	for _, tok := range u.Tokens() {
		switch u.TokenTag(tok.Index) {
		case TagBeginning:
			beginnings++
			if tok.Plain() != "Paris" {
				t.Fatalf("B tag on %q, want Paris", tok.Plain())
			}
		case TagInside:
			t.Fatalf("unexpected I tag on %q", tok.Plain())
		}
	}
	if beginnings != 1 {
		t.Fatalf("beginnings = %d, want 1", beginnings)
	}

	slots := u.Slots()
	if len(slots) != 1 || slots[0].Name != "destination" {
		t.Fatalf("slots = %+v", slots)
	}
	if got := u.Text()[slots[0].StartChar:slots[0].EndChar]; got != "Paris" {
		t.Fatalf("slot chars cover %q", got)
	}
}

func TestBuildMultiTokenSlot(t *testing.T) {
	p := &fakeProvider{}
	utts, err := Build(context.Background(), []string{"fly to [New York](destination)"}, "en", p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	u := utts[0]
	tags := make([]Tag, u.Len())
	for i := range tags {
		tags[i] = u.TokenTag(i)
	}
	want := []Tag{TagOut, TagOut, TagBeginning, TagInside}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("tags = %v, want %v", tags, want)
		}
	}
}

func TestBuildDeduplicatesVectorization(t *testing.T) {
	p := &fakeProvider{}
	_, err := Build(context.Background(), []string{"hello world hello", "world again"}, "en", p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.vectorizeCalls != 1 {
		t.Fatalf("vectorize calls = %d, want 1", p.vectorizeCalls)
	}
	seen := make(map[string]int)
	for _, tok := range p.vectorizedToks {
		seen[tok]++
	}
	for tok, n := range seen {
		if n != 1 {
			t.Fatalf("token %q vectorized %d times", tok, n)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("distinct tokens = %d, want 3", len(seen))
	}
}

func TestBuildEmptyText(t *testing.T) {
	p := &fakeProvider{}
	utts, err := Build(context.Background(), []string{""}, "en", p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if utts[0].Len() != 0 {
		t.Fatalf("tokens = %d, want 0", utts[0].Len())
	}
}

func TestTokenOffsetsAndFlags(t *testing.T) {
	p := &fakeProvider{}
	utts, err := Build(context.Background(), []string{"pay 20 dollars"}, "en", p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	u := utts[0]
	toks := u.Tokens()
	if toks[0].Offset != 0 || toks[1].Offset != 4 || toks[2].Offset != 7 {
		t.Fatalf("offsets = %d,%d,%d", toks[0].Offset, toks[1].Offset, toks[2].Offset)
	}
	if !toks[0].IsBOS || toks[0].IsEOS {
		t.Fatal("first token BOS/EOS flags wrong")
	}
	if !toks[2].IsEOS {
		t.Fatal("last token should be EOS")
	}
	for _, tok := range toks {
		if !tok.IsWord {
			t.Fatalf("token %q should be a word", tok.Value)
		}
	}
}

func TestTagEntityRejectsBadRange(t *testing.T) {
	u := New("hi", "en", []string{WordMarker + "hi"}, nil)
	if err := u.TagEntity(EntitySpan{StartToken: 0, EndToken: 2}); err == nil {
		t.Fatal("expected range error")
	}
	if err := u.TagEntity(EntitySpan{StartToken: 1, EndToken: 1}); err == nil {
		t.Fatal("expected empty-range error")
	}
	if err := u.TagEntity(EntitySpan{Type: "x", StartToken: 0, EndToken: 1}); err != nil {
		t.Fatalf("TagEntity: %v", err)
	}
	if len(u.Entities()) != 1 {
		t.Fatalf("entities = %d, want 1", len(u.Entities()))
	}
}

func TestTfidfWeighting(t *testing.T) {
	p := &fakeProvider{}
	utts, err := Build(context.Background(), []string{
		"the red car",
		"the blue car",
		"the submarine",
	}, "en", p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	table := AttachTfidf(utts)

	the := table[WordMarker+"the"]
	submarine := table[WordMarker+"submarine"]
	if the >= submarine {
		t.Fatalf("tfidf(the)=%f should be below tfidf(submarine)=%f", the, submarine)
	}

	// Tokens read the attached table lazily and default to 1 when unknown.
	for _, tok := range utts[2].Tokens() {
		if tok.Value == WordMarker+"submarine" && tok.Tfidf() != submarine {
			t.Fatalf("token tfidf = %f, want %f", tok.Tfidf(), submarine)
		}
	}
	if got := utts[0].Tfidf("never-seen"); got != 1 {
		t.Fatalf("unknown token tfidf = %f, want 1", got)
	}
}
