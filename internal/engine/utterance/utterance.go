// Package utterance holds the token-level sentence model shared by training
// and prediction: one Utterance per example or incoming sentence, carrying
// tokens, extracted entity spans and labeled slot spans.
package utterance

import (
	"strings"
	"unicode"

	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// ---------------------------------------------------------------------------
// Slot tags
// ---------------------------------------------------------------------------

// Tag is the per-token slot label used by the sequence tagger.
type Tag string

const (
	// TagOut marks a token covered by no slot.
	TagOut Tag = "o"
	// TagBeginning marks the first token of a slot span.
	TagBeginning Tag = "B"
	// TagInside marks every subsequent token of a slot span.
	TagInside Tag = "I"
)

// WordMarker is the leading rune some tokenizers prepend to tokens that
// start a new word (SentencePiece convention). Vocabulary-level heuristics
// use it to tell space-delimited languages from non-space-delimited ones.
const WordMarker = "▁"

// HasWordMarker reports whether tok begins with the word marker.
func HasWordMarker(tok string) bool {
	return strings.HasPrefix(tok, WordMarker)
}

// ---------------------------------------------------------------------------
// Token
// ---------------------------------------------------------------------------

// Token is one tokenizer output unit. Tokens are created once when the
// owning Utterance is built and never mutated afterwards; spans referencing
// a token are attached to the Utterance, not to the token itself.
type Token struct {
	// Value is the raw token as returned by the tokenizer, word marker
	// included.
	Value string

	// Index is the token's position in the owning utterance.
	Index int

	// Offset is the byte offset of the token's visible text within the
	// canonical (annotation-stripped) utterance text.
	Offset int

	IsWord  bool
	IsSpace bool
	IsBOS   bool
	IsEOS   bool

	// Vector is the token's embedding. May be nil when the provider has no
	// vector for the token.
	Vector []float64

	owner *Utterance
}

// Plain returns the token text without the word marker.
func (t Token) Plain() string {
	return strings.TrimPrefix(t.Value, WordMarker)
}

// Tfidf returns the token's weight from the owning utterance's global
// tf-idf table, defaulting to 1 when the table is absent or the token is
// unknown to it.
func (t Token) Tfidf() float64 {
	if t.owner == nil || t.owner.tfidf == nil {
		return 1
	}
	if w, ok := t.owner.tfidf[t.Value]; ok {
		return w
	}
	return 1
}

// Tag returns the slot tag for this token, derived from the slot spans
// attached to the owning utterance.
func (t Token) Tag() Tag {
	if t.owner == nil {
		return TagOut
	}
	return t.owner.TokenTag(t.Index)
}

// Entities returns the entity spans covering this token.
func (t Token) Entities() []EntitySpan {
	if t.owner == nil {
		return nil
	}
	return t.owner.EntitiesAt(t.Index)
}

func isWordToken(plain string) bool {
	for _, r := range plain {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isSpaceToken(plain string) bool {
	if plain == "" {
		return false
	}
	for _, r := range plain {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Spans
// ---------------------------------------------------------------------------

// EntitySpan is one extracted entity occurrence. Token ranges are
// [StartToken, EndToken) over the owning utterance's token list; char
// ranges are byte offsets into the canonical text.
type EntitySpan struct {
	Type       string
	Value      string
	Confidence float64
	StartToken int
	EndToken   int
	StartChar  int
	EndChar    int
	Extractor  string
	Metadata   map[string]string
}

// SlotSpan is one labeled slot occurrence with the same range conventions
// as EntitySpan.
type SlotSpan struct {
	Name       string
	Source     string
	StartToken int
	EndToken   int
	StartChar  int
	EndChar    int
}

// ---------------------------------------------------------------------------
// Utterance
// ---------------------------------------------------------------------------

// Utterance is an ordered, immutable token sequence plus two growable span
// lists. The span lists are owned by the utterance and grown through
// TagEntity and TagSlot only; callers never alias them across stages.
type Utterance struct {
	text     string
	language string
	tokens   []Token
	entities []EntitySpan
	slots    []SlotSpan
	tfidf    map[string]float64
}

// New builds an Utterance from the canonical text and its tokenizer output.
// vectors maps token values to embeddings; tokens without an entry get a nil
// vector. Offsets are recovered by scanning the canonical text left to right.
func New(text, language string, tokens []string, vectors map[string][]float64) *Utterance {
	u := &Utterance{text: text, language: language}
	u.tokens = make([]Token, len(tokens))
	cursor := 0
	for i, tok := range tokens {
		plain := strings.TrimPrefix(tok, WordMarker)
		offset := cursor
		if plain != "" {
			if idx := strings.Index(text[cursor:], plain); idx >= 0 {
				offset = cursor + idx
				cursor = offset + len(plain)
			}
		}
		u.tokens[i] = Token{
			Value:   tok,
			Index:   i,
			Offset:  offset,
			IsWord:  isWordToken(plain),
			IsSpace: isSpaceToken(plain) || tok == WordMarker,
			IsBOS:   i == 0,
			IsEOS:   i == len(tokens)-1,
			Vector:  vectors[tok],
			owner:   u,
		}
	}
	return u
}

// Text returns the canonical (annotation-stripped) sentence.
func (u *Utterance) Text() string { return u.text }

// Language returns the language code the utterance was tokenized with.
func (u *Utterance) Language() string { return u.language }

// Tokens returns the token list. The slice is shared; tokens are immutable.
func (u *Utterance) Tokens() []Token { return u.tokens }

// Len returns the token count.
func (u *Utterance) Len() int { return len(u.tokens) }

// Entities returns the attached entity spans.
func (u *Utterance) Entities() []EntitySpan { return u.entities }

// Slots returns the attached slot spans.
func (u *Utterance) Slots() []SlotSpan { return u.slots }

// TagEntity attaches an entity span after validating its token range.
func (u *Utterance) TagEntity(span EntitySpan) error {
	if err := u.checkRange(span.StartToken, span.EndToken); err != nil {
		return err
	}
	u.entities = append(u.entities, span)
	return nil
}

// TagSlot attaches a slot span after validating its token range.
func (u *Utterance) TagSlot(span SlotSpan) error {
	if err := u.checkRange(span.StartToken, span.EndToken); err != nil {
		return err
	}
	u.slots = append(u.slots, span)
	return nil
}

func (u *Utterance) checkRange(start, end int) error {
	if start < 0 || end > len(u.tokens) || start >= end {
		return errors.Newf(errors.ErrCodeValidation, "span token range [%d, %d) outside utterance of %d tokens", start, end, len(u.tokens))
	}
	return nil
}

// SetGlobalTfidf attaches the corpus-wide tf-idf table; tokens read it
// lazily through Token.Tfidf.
func (u *Utterance) SetGlobalTfidf(table map[string]float64) {
	u.tfidf = table
}

// Tfidf returns the weight for a token value, defaulting to 1.
func (u *Utterance) Tfidf(tokenValue string) float64 {
	if u.tfidf == nil {
		return 1
	}
	if w, ok := u.tfidf[tokenValue]; ok {
		return w
	}
	return 1
}

// TokenTag derives the slot tag for token index i from the attached slots.
func (u *Utterance) TokenTag(i int) Tag {
	for _, s := range u.slots {
		if i == s.StartToken {
			return TagBeginning
		}
		if i > s.StartToken && i < s.EndToken {
			return TagInside
		}
	}
	return TagOut
}

// EntitiesAt returns the entity spans covering token index i.
func (u *Utterance) EntitiesAt(i int) []EntitySpan {
	var out []EntitySpan
	for _, e := range u.entities {
		if i >= e.StartToken && i < e.EndToken {
			out = append(out, e)
		}
	}
	return out
}

// SlotAt returns the first slot span covering token index i, if any.
func (u *Utterance) SlotAt(i int) (SlotSpan, bool) {
	for _, s := range u.slots {
		if i >= s.StartToken && i < s.EndToken {
			return s, true
		}
	}
	return SlotSpan{}, false
}
