package entities

import (
	"regexp"

	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/pkg/errors"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

// ExtractPatterns runs every pattern entity's regex against the utterance's
// canonical text. Every match is an entity span with confidence 1.0; the
// span value is the matched surface text.
func ExtractPatterns(u *utterance.Utterance, defs []nlu.PatternEntityDef) ([]utterance.EntitySpan, error) {
	var out []utterance.EntitySpan
	for _, def := range defs {
		pattern := def.Pattern
		if def.IgnoreCase {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeValidation, "pattern entity %q has an invalid regex", def.Name)
		}
		for _, m := range re.FindAllStringIndex(u.Text(), -1) {
			start, end := m[0], m[1]
			if start == end {
				continue
			}
			tokStart, tokEnd, ok := tokenRange(u, start, end)
			if !ok {
				continue
			}
			out = append(out, utterance.EntitySpan{
				Type:       def.Name,
				Value:      u.Text()[start:end],
				Confidence: 1.0,
				StartToken: tokStart,
				EndToken:   tokEnd,
				StartChar:  start,
				EndChar:    end,
				Extractor:  nlu.ExtractorPattern,
			})
		}
	}
	return out, nil
}

// tokenRange maps a byte range of the canonical text onto the covering
// token range. Returns false when no word token intersects the range.
func tokenRange(u *utterance.Utterance, startChar, endChar int) (int, int, bool) {
	start, end := -1, -1
	for _, tok := range u.Tokens() {
		plain := tok.Plain()
		if plain == "" {
			continue
		}
		tokStart, tokEnd := tok.Offset, tok.Offset+len(plain)
		if tokStart < endChar && tokEnd > startChar {
			if start == -1 {
				start = tok.Index
			}
			end = tok.Index + 1
		}
	}
	return start, end, start != -1
}
