// Package slots implements the slot tagger: per-token feature extraction,
// token clustering and a sequence model that labels each token with a slot
// tag.
package slots

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/converso-ai/nlu-engine/internal/engine/dataset"
	"github.com/converso-ai/nlu-engine/internal/ml"
	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
)

// TrainingFeatures builds the feature sequence for one training utterance.
func TrainingFeatures(u *utterance.Utterance, intent dataset.Intent, clustering *ml.Clustering) ml.FeatureSequence {
	return featureSequence(u, intent, clustering, false)
}

// PredictionFeatures builds the feature sequence for an incoming utterance.
// It differs from TrainingFeatures only in which raw-token features are
// included: at prediction time a token's surface form is only a feature
// when the intent's vocabulary knows it, so unseen words cannot distort
// the tagger.
func PredictionFeatures(u *utterance.Utterance, intent dataset.Intent, clustering *ml.Clustering) ml.FeatureSequence {
	return featureSequence(u, intent, clustering, true)
}

func featureSequence(u *utterance.Utterance, intent dataset.Intent, clustering *ml.Clustering, predict bool) ml.FeatureSequence {
	toks := u.Tokens()
	base := make([][]string, len(toks))
	maxLen := 0
	for _, tok := range toks {
		if n := len([]rune(tok.Plain())); n > maxLen {
			maxLen = n
		}
	}
	for i, tok := range toks {
		base[i] = tokenFeatures(tok, intent, clustering, maxLen, predict)
	}

	seq := make(ml.FeatureSequence, len(toks))
	for i := range toks {
		feats := make([]string, 0, 3*len(base[i])+3)
		feats = append(feats, base[i]...)
		feats = append(feats, "intent="+intent.Name)
		if toks[i].IsBOS {
			feats = append(feats, "__BOS__")
		}
		if toks[i].IsEOS {
			feats = append(feats, "__EOS__")
		}
		if i > 0 {
			for _, f := range base[i-1] {
				feats = append(feats, "-1|"+f)
			}
		}
		if i < len(toks)-1 {
			for _, f := range base[i+1] {
				feats = append(feats, "+1|"+f)
			}
		}
		seq[i] = feats
	}
	return seq
}

// tokenFeatures computes the per-token feature set shared by training and
// prediction.
func tokenFeatures(tok utterance.Token, intent dataset.Intent, clustering *ml.Clustering, maxLen int, predict bool) []string {
	plain := tok.Plain()
	feats := []string{
		fmt.Sprintf("quartile=%d", lengthQuartile(len([]rune(plain)), maxLen)),
		"weight=" + weightBucket(tok.Tfidf()),
	}

	if clustering != nil && len(tok.Vector) > 0 {
		if c := clustering.Assign(tok.Vector); c >= 0 {
			feats = append(feats, fmt.Sprintf("cluster=%d", c))
		}
	}
	if intent.Vocabulary[tok.Value] {
		feats = append(feats, "in_vocab")
	}
	if tok.IsSpace {
		feats = append(feats, "is_space")
	}
	alpha, num, special := charClasses(plain)
	if alpha {
		feats = append(feats, "has_alpha")
	}
	if num {
		feats = append(feats, "has_num")
	}
	if special {
		feats = append(feats, "has_special")
	}

	// The surface form is always a training feature but only a prediction
	// feature for words the intent has seen.
	if !predict || intent.Vocabulary[tok.Value] {
		feats = append(feats, "token="+strings.ToLower(plain))
	}

	for _, span := range tok.Entities() {
		if _, ok := intent.SlotEntities[span.Type]; ok {
			feats = append(feats, "entity="+span.Type)
		}
	}
	return feats
}

// lengthQuartile buckets a token length into 1..4 relative to the longest
// token of the utterance.
func lengthQuartile(n, maxLen int) int {
	if maxLen == 0 || n == 0 {
		return 1
	}
	q := (4*n + maxLen - 1) / maxLen
	if q < 1 {
		q = 1
	}
	if q > 4 {
		q = 4
	}
	return q
}

// weightBucket coarsens a tf-idf weight into three bands; the exact cut
// points matter less than being stable between training and prediction.
func weightBucket(w float64) string {
	switch {
	case w <= 1.05:
		return "common"
	case w <= 1.7:
		return "mid"
	default:
		return "rare"
	}
}

func charClasses(s string) (alpha, num, special bool) {
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			alpha = true
		case unicode.IsDigit(r):
			num = true
		case unicode.IsSpace(r):
		default:
			special = true
		}
	}
	return alpha, num, special
}
