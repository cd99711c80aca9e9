// Package language elects the language of an incoming sentence and decides
// when to fall back to a bot's default language.
package language

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Election thresholds: short inputs are inherently less confident, so they
// get a lower bar.
const (
	longInputChars      = 20
	longInputThreshold  = 0.5
	shortInputThreshold = 0.3
)

// Detector identifies the language of raw text. Implementations return the
// lowercase ISO 639-1 code of the best candidate and its confidence.
type Detector interface {
	Detect(text string) (code string, confidence float64)
}

// LinguaDetector backs Detector with the lingua statistical models.
type LinguaDetector struct {
	detector lingua.LanguageDetector
}

// NewDetector builds a detector over all spoken languages.
func NewDetector() *LinguaDetector {
	return &LinguaDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromAllSpokenLanguages().
			Build(),
	}
}

// Detect implements Detector.
func (d *LinguaDetector) Detect(text string) (string, float64) {
	values := d.detector.ComputeLanguageConfidenceValues(text)
	if len(values) == 0 {
		return "", 0
	}
	top := values[0]
	return strings.ToLower(top.Language().IsoCode639_1().String()), top.Value()
}

// Election is the outcome of language election for one prediction call.
type Election struct {
	Language   string
	Confidence float64
	FellBack   bool
}

// Elect runs detection and applies the threshold and supported-set rules:
// the detected language wins only when its confidence clears the
// length-dependent threshold and the bot supports it; otherwise the bot's
// default language is elected deterministically.
func Elect(d Detector, text, defaultLanguage string, supported map[string]bool) Election {
	code, confidence := d.Detect(text)

	threshold := shortInputThreshold
	if len(text) > longInputChars {
		threshold = longInputThreshold
	}

	if code == "" || confidence < threshold || !supported[code] {
		return Election{Language: defaultLanguage, Confidence: confidence, FellBack: true}
	}
	return Election{Language: code, Confidence: confidence}
}
