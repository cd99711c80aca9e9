package entities

import (
	"math"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

// ListEntityCutoff is the minimum confidence for a list-entity candidate to
// survive scoring.
const ListEntityCutoff = 0.6

// fuzzyMinLength is the shortest window the fuzzy score is meaningful for;
// below it only exact matches count.
const fuzzyMinLength = 4

// listCandidate is one scored window/variant pair awaiting elimination.
type listCandidate struct {
	span       utterance.EntitySpan
	score      float64
	eliminated bool
}

// ExtractLists matches every list entity model against the utterance. For
// each tokenized synonym variant a window of comparable character length
// slides across the utterance tokens; windows are scored by exact or fuzzy
// string similarity multiplied by a structural similarity, rounded to three
// decimals. Candidates below the model's cutoff are discarded and overlapping
// survivors are eliminated per token index, keeping the highest score with
// first-seen winning ties.
func ExtractLists(u *utterance.Utterance, models []ListEntityModel) []utterance.EntitySpan {
	var candidates []*listCandidate

	for _, model := range models {
		for _, value := range model.Values {
			for _, variant := range value.Variants {
				candidates = append(candidates, scanVariant(u, model, value.Name, variant)...)
			}
		}
	}

	eliminateOverlaps(candidates)

	var out []utterance.EntitySpan
	for _, c := range candidates {
		if !c.eliminated {
			out = append(out, c.span)
		}
	}
	return out
}

func scanVariant(u *utterance.Utterance, model ListEntityModel, canonical string, variant []string) []*listCandidate {
	variantJoined := joinTokens(variant)
	if variantJoined == "" {
		return nil
	}
	cutoff := model.Cutoff
	if cutoff == 0 {
		cutoff = ListEntityCutoff
	}
	variantLen := len(variantJoined)
	toks := u.Tokens()

	var found []*listCandidate
	for start := 0; start < len(toks); start++ {
		if !toks[start].IsWord {
			continue
		}

		// Grow the window until its character mass reaches the variant's.
		end := start
		var windowParts []string
		windowChars := 0
		for end < len(toks) && windowChars < variantLen {
			plain := toks[end].Plain()
			windowParts = append(windowParts, plain)
			windowChars += len(strings.TrimSpace(plain))
			end++
		}
		if windowChars == 0 {
			continue
		}
		windowJoined := normalize(strings.Join(windowParts, ""))

		exact := 0.0
		if windowJoined == variantJoined {
			exact = 1.0
		}
		score := exact
		if model.Fuzzy && len(windowJoined) >= fuzzyMinLength {
			score = fuzzyScore(windowJoined, variantJoined)
		}
		score *= structuralScore(toks[start:end], variant, windowJoined, variantJoined)
		score = math.Round(score*1000) / 1000
		if score < cutoff {
			continue
		}

		startChar := toks[start].Offset
		last := toks[end-1]
		endChar := last.Offset + len(last.Plain())
		found = append(found, &listCandidate{
			score: score,
			span: utterance.EntitySpan{
				Type:       model.Name,
				Value:      canonical,
				Confidence: score,
				StartToken: start,
				EndToken:   end,
				StartChar:  startChar,
				EndChar:    endChar,
				Extractor:  nlu.ExtractorList,
				Metadata:   map[string]string{"source": u.Text()[startChar:endChar]},
			},
		})
	}
	return found
}

// fuzzyScore averages a Levenshtein-derived and a Jaro-derived similarity.
func fuzzyScore(a, b string) float64 {
	maxLen := float64(len(a))
	if len(b) > len(a) {
		maxLen = float64(len(b))
	}
	if maxLen == 0 {
		return 0
	}
	lev := 1 - float64(smetrics.WagnerFischer(a, b, 1, 1, 1))/maxLen
	if lev < 0 {
		lev = 0
	}
	// Prefix size 0 disables the Winkler boost, leaving plain Jaro.
	jaro := smetrics.JaroWinkler(a, b, 0.7, 0)
	return (lev + jaro) / 2
}

// structuralScore is the geometric mean of three shape ratios between the
// window and the variant: character-set overlap, multi-character token count
// and total character length.
func structuralScore(window []utterance.Token, variant []string, windowJoined, variantJoined string) float64 {
	charSim := charSetJaccard(windowJoined, variantJoined)

	windowTokens := 0
	for _, tok := range window {
		if len([]rune(strings.TrimSpace(tok.Plain()))) > 1 {
			windowTokens++
		}
	}
	variantTokens := 0
	for _, tok := range variant {
		if len([]rune(strings.TrimSpace(strings.TrimPrefix(tok, utterance.WordMarker)))) > 1 {
			variantTokens++
		}
	}
	tokenSim := ratio(float64(windowTokens), float64(variantTokens))
	lengthSim := ratio(float64(len(windowJoined)), float64(len(variantJoined)))

	return math.Pow(charSim*tokenSim*lengthSim, 1.0/3.0)
}

func charSetJaccard(a, b string) float64 {
	setA := make(map[rune]struct{})
	for _, r := range a {
		setA[r] = struct{}{}
	}
	setB := make(map[rune]struct{})
	for _, r := range b {
		setB[r] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func ratio(a, b float64) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a < b {
		return a / b
	}
	return b / a
}

// eliminateOverlaps walks every token index and keeps only the best
// non-eliminated candidate covering it. Losers are marked, winners are not,
// so an earlier candidate beating a later equal-scored one stays the winner
// at every subsequent index.
func eliminateOverlaps(candidates []*listCandidate) {
	maxToken := 0
	for _, c := range candidates {
		if c.span.EndToken > maxToken {
			maxToken = c.span.EndToken
		}
	}
	for idx := 0; idx < maxToken; idx++ {
		var best *listCandidate
		for _, c := range candidates {
			if c.eliminated || idx < c.span.StartToken || idx >= c.span.EndToken {
				continue
			}
			if best == nil || c.score > best.score {
				best = c
			}
		}
		if best == nil {
			continue
		}
		for _, c := range candidates {
			if c == best || c.eliminated {
				continue
			}
			if idx >= c.span.StartToken && idx < c.span.EndToken {
				c.eliminated = true
			}
		}
	}
}

func joinTokens(tokens []string) string {
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteString(strings.TrimSpace(strings.TrimPrefix(tok, utterance.WordMarker)))
	}
	return normalize(b.String())
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
