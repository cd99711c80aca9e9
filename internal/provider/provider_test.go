package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// fnProvider is a hand-rolled fake with overridable behavior per call.
type fnProvider struct {
	name        string
	tokenizeFn  func() ([][]string, error)
	vectorizeFn func() ([][]float64, error)
	calls       int
}

func (f *fnProvider) Name() string { return f.name }

func (f *fnProvider) Tokenize(context.Context, []string, string) ([][]string, error) {
	f.calls++
	if f.tokenizeFn != nil {
		return f.tokenizeFn()
	}
	return [][]string{}, nil
}

func (f *fnProvider) Vectorize(context.Context, []string, string) ([][]float64, error) {
	f.calls++
	if f.vectorizeFn != nil {
		return f.vectorizeFn()
	}
	return [][]float64{}, nil
}

func (f *fnProvider) GenerateJunkWords(context.Context, []string, string) ([]string, error) {
	f.calls++
	return []string{"xyzzy"}, nil
}

func TestPoolFailsOverToNextProvider(t *testing.T) {
	failing := &fnProvider{name: "a", tokenizeFn: func() ([][]string, error) {
		return nil, errors.New(errors.ErrCodeExternalService, "down")
	}}
	healthy := &fnProvider{name: "b", tokenizeFn: func() ([][]string, error) {
		return [][]string{{"tok"}}, nil
	}}

	pool := NewPool(time.Second, time.Minute, nil, nil)
	pool.Register("en", failing, healthy)

	out, err := pool.Tokenize(context.Background(), []string{"x"}, "en")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(out) != 1 || out[0][0] != "tok" {
		t.Fatalf("out = %v", out)
	}
}

func TestPoolAllProvidersExhausted(t *testing.T) {
	down := &fnProvider{name: "a", tokenizeFn: func() ([][]string, error) {
		return nil, errors.New(errors.ErrCodeExternalService, "down")
	}}
	pool := NewPool(time.Second, time.Minute, nil, nil)
	pool.Register("en", down)

	_, err := pool.Tokenize(context.Background(), []string{"x"}, "en")
	if !errors.IsCode(err, errors.ErrCodeNoProvider) {
		t.Fatalf("err = %v, want no-provider", err)
	}
	if !strings.Contains(err.Error(), "no provider could fulfil this request") {
		t.Fatalf("err message = %q", err.Error())
	}
}

func TestPoolCooldownGrowsAndResets(t *testing.T) {
	now := time.Unix(1000, 0)
	fail := true
	flaky := &fnProvider{name: "a", tokenizeFn: func() ([][]string, error) {
		if fail {
			return nil, errors.New(errors.ErrCodeExternalService, "down")
		}
		return [][]string{}, nil
	}}

	pool := NewPool(2*time.Second, time.Minute, nil, nil)
	pool.now = func() time.Time { return now }
	pool.Register("en", flaky)

	// First failure: 2s cooldown; the provider is skipped while cooling.
	if _, err := pool.Tokenize(context.Background(), []string{"x"}, "en"); err == nil {
		t.Fatal("expected failure")
	}
	calls := flaky.calls
	if _, err := pool.Tokenize(context.Background(), []string{"x"}, "en"); err == nil {
		t.Fatal("expected failure while cooling down")
	}
	if flaky.calls != calls {
		t.Fatal("provider called during cooldown")
	}

	// Second failure after the cooldown doubles it.
	now = now.Add(3 * time.Second)
	if _, err := pool.Tokenize(context.Background(), []string{"x"}, "en"); err == nil {
		t.Fatal("expected failure")
	}
	now = now.Add(3 * time.Second) // 4s cooldown still active
	calls = flaky.calls
	_, _ = pool.Tokenize(context.Background(), []string{"x"}, "en")
	if flaky.calls != calls {
		t.Fatal("provider called during doubled cooldown")
	}

	// Success resets the failure count.
	now = now.Add(5 * time.Second)
	fail = false
	if _, err := pool.Tokenize(context.Background(), []string{"x"}, "en"); err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	fail = true
	if _, err := pool.Tokenize(context.Background(), []string{"x"}, "en"); err == nil {
		t.Fatal("expected failure")
	}
	now = now.Add(2*time.Second + time.Millisecond) // back to base cooldown
	calls = flaky.calls
	_, _ = pool.Tokenize(context.Background(), []string{"x"}, "en")
	if flaky.calls == calls {
		t.Fatal("provider should be available after base cooldown")
	}
}

func TestPoolWildcardProviders(t *testing.T) {
	any := &fnProvider{name: "any", tokenizeFn: func() ([][]string, error) {
		return [][]string{{"tok"}}, nil
	}}
	pool := NewPool(time.Second, time.Minute, nil, nil)
	pool.Register(AnyLanguage, any)

	if _, err := pool.Tokenize(context.Background(), []string{"x"}, "sv"); err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
}

func TestCachedVectorizeHitsOnce(t *testing.T) {
	inner := &fnProvider{name: "inner", vectorizeFn: func() ([][]float64, error) {
		return [][]float64{{1, 2}}, nil
	}}
	cached := NewCached(inner, NewMemoryStore(), time.Minute, nil)

	for i := 0; i < 3; i++ {
		out, err := cached.Vectorize(context.Background(), []string{"tok"}, "en")
		if err != nil {
			t.Fatalf("Vectorize: %v", err)
		}
		if len(out) != 1 || out[0][1] != 2 {
			t.Fatalf("out = %v", out)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}

	// Different content is a different key.
	if _, err := cached.Vectorize(context.Background(), []string{"other"}, "en"); err != nil {
		t.Fatalf("Vectorize: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("inner calls = %d, want 2", inner.calls)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	if err := store.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := store.Get(context.Background(), "k"); !ok {
		t.Fatal("expected hit before expiry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := store.Get(context.Background(), "k"); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestLocalTokenizeMarksWordStarts(t *testing.T) {
	local := NewLocal()
	out, err := local.Tokenize(context.Background(), []string{"book a flight"}, "en")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	toks := out[0]
	if len(toks) != 3 {
		t.Fatalf("tokens = %v", toks)
	}
	for _, tok := range toks {
		if !utterance.HasWordMarker(tok) {
			t.Fatalf("token %q missing word marker", tok)
		}
	}
}

func TestLocalVectorizeDeterministic(t *testing.T) {
	local := NewLocal()
	a, err := local.Vectorize(context.Background(), []string{"paris"}, "en")
	if err != nil {
		t.Fatalf("Vectorize: %v", err)
	}
	b, _ := local.Vectorize(context.Background(), []string{"paris"}, "en")
	for d := range a[0] {
		if a[0][d] != b[0][d] {
			t.Fatal("vectors differ across calls")
		}
	}
	c, _ := local.Vectorize(context.Background(), []string{"london"}, "en")
	same := true
	for d := range a[0] {
		if a[0][d] != c[0][d] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("distinct tokens share a vector")
	}
}

func TestLocalJunkWords(t *testing.T) {
	local := NewLocal()
	vocab := []string{
		utterance.WordMarker + "book",
		utterance.WordMarker + "flight",
		utterance.WordMarker + "paris",
	}
	words, err := local.GenerateJunkWords(context.Background(), vocab, "en")
	if err != nil {
		t.Fatalf("GenerateJunkWords: %v", err)
	}
	if len(words) != len(vocab) {
		t.Fatalf("words = %d, want %d", len(words), len(vocab))
	}
	for _, w := range words {
		if w == "" {
			t.Fatal("empty junk word")
		}
	}
}

func TestRemoteProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/tokenize":
			_, _ = w.Write([]byte(`{"tokens":[["▁hello"]]}`))
		case "/v1/vectorize":
			_, _ = w.Write([]byte(`{"vectors":[[0.5,0.5]]}`))
		case "/v1/junk-words":
			_, _ = w.Write([]byte(`{"words":["blurp"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	remote, err := NewRemote("test", srv.URL, 0)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	toks, err := remote.Tokenize(context.Background(), []string{"hello"}, "en")
	if err != nil || len(toks) != 1 {
		t.Fatalf("Tokenize = %v, %v", toks, err)
	}
	vecs, err := remote.Vectorize(context.Background(), []string{"▁hello"}, "en")
	if err != nil || len(vecs) != 1 {
		t.Fatalf("Vectorize = %v, %v", vecs, err)
	}
	words, err := remote.GenerateJunkWords(context.Background(), []string{"▁hello"}, "en")
	if err != nil || len(words) != 1 {
		t.Fatalf("GenerateJunkWords = %v, %v", words, err)
	}
}

func TestRemoteCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tokens":[]}`))
	}))
	defer srv.Close()

	remote, err := NewRemote("test", srv.URL, 0)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	if _, err := remote.Tokenize(context.Background(), []string{"a", "b"}, "en"); !errors.IsCode(err, errors.ErrCodeExternalService) {
		t.Fatalf("err = %v, want external-service", err)
	}
}
