package utterance

import "math"

// Tfidf computes a corpus-wide token weight table over a set of utterances.
// Each utterance counts as one document; the weight is a smoothed inverse
// document frequency so tokens shared by every utterance sit near 1 and
// rare, discriminative tokens score higher.
func Tfidf(utterances []*Utterance) map[string]float64 {
	docFreq := make(map[string]int)
	for _, u := range utterances {
		seen := make(map[string]struct{})
		for _, tok := range u.Tokens() {
			if _, ok := seen[tok.Value]; ok {
				continue
			}
			seen[tok.Value] = struct{}{}
			docFreq[tok.Value]++
		}
	}
	if len(docFreq) == 0 {
		return map[string]float64{}
	}

	n := float64(len(utterances))
	table := make(map[string]float64, len(docFreq))
	for tok, df := range docFreq {
		table[tok] = math.Log((1+n)/(1+float64(df))) + 1
	}
	return table
}

// AttachTfidf computes the table once and attaches it to every utterance.
func AttachTfidf(utterances []*Utterance) map[string]float64 {
	table := Tfidf(utterances)
	for _, u := range utterances {
		u.SetGlobalTfidf(table)
	}
	return table
}
