package language

import "testing"

// fixedDetector returns a canned detection result.
type fixedDetector struct {
	code       string
	confidence float64
}

func (f fixedDetector) Detect(string) (string, float64) { return f.code, f.confidence }

func TestElectAcceptsConfidentSupportedLanguage(t *testing.T) {
	e := Elect(fixedDetector{"fr", 0.9}, "une phrase assez longue pour le seuil haut", "en", map[string]bool{"en": true, "fr": true})
	if e.Language != "fr" || e.FellBack {
		t.Fatalf("election = %+v", e)
	}
}

func TestElectThresholdDependsOnLength(t *testing.T) {
	supported := map[string]bool{"en": true, "fr": true}

	// 0.4 clears the short-input threshold but not the long-input one.
	short := Elect(fixedDetector{"fr", 0.4}, "salut", "en", supported)
	if short.Language != "fr" {
		t.Fatalf("short election = %+v", short)
	}
	long := Elect(fixedDetector{"fr", 0.4}, "this sentence is clearly longer than twenty characters", "en", supported)
	if long.Language != "en" || !long.FellBack {
		t.Fatalf("long election = %+v", long)
	}
}

func TestElectUnsupportedFallsBack(t *testing.T) {
	e := Elect(fixedDetector{"de", 0.99}, "ein ziemlich langer deutscher satz hier", "en", map[string]bool{"en": true})
	if e.Language != "en" || !e.FellBack {
		t.Fatalf("election = %+v", e)
	}
}

func TestElectNoDetection(t *testing.T) {
	e := Elect(fixedDetector{"", 0}, "???", "en", map[string]bool{"en": true})
	if e.Language != "en" || !e.FellBack {
		t.Fatalf("election = %+v", e)
	}
}

func TestLinguaDetectorRecognizesEnglish(t *testing.T) {
	d := NewDetector()
	code, confidence := d.Detect("please book me a flight to new york tomorrow morning")
	if code != "en" {
		t.Fatalf("code = %q, want en", code)
	}
	if confidence <= 0 {
		t.Fatalf("confidence = %f", confidence)
	}
}
