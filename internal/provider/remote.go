package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// Remote talks JSON to a language-tools service exposing tokenize,
// vectorize and junk-word endpoints.
type Remote struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// NewRemote validates the endpoint and returns the client.
func NewRemote(name, baseURL string, timeout time.Duration) (*Remote, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeConfiguration, "provider %q has an invalid endpoint", name)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.Newf(errors.ErrCodeConfiguration, "provider %q endpoint scheme must be http or https", name)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name implements LanguageProvider.
func (r *Remote) Name() string { return r.name }

type tokenizeRequest struct {
	Texts    []string `json:"texts"`
	Language string   `json:"language"`
}

type tokenizeResponse struct {
	Tokens [][]string `json:"tokens"`
}

type vectorizeRequest struct {
	Tokens   []string `json:"tokens"`
	Language string   `json:"language"`
}

type vectorizeResponse struct {
	Vectors [][]float64 `json:"vectors"`
}

type junkWordsRequest struct {
	Vocabulary []string `json:"vocabulary"`
	Language   string   `json:"language"`
}

type junkWordsResponse struct {
	Words []string `json:"words"`
}

// Tokenize implements LanguageProvider.
func (r *Remote) Tokenize(ctx context.Context, texts []string, language string) ([][]string, error) {
	var out tokenizeResponse
	if err := r.post(ctx, "/v1/tokenize", tokenizeRequest{Texts: texts, Language: language}, &out); err != nil {
		return nil, err
	}
	if len(out.Tokens) != len(texts) {
		return nil, errors.Newf(errors.ErrCodeExternalService, "provider %q returned %d token lists for %d texts", r.name, len(out.Tokens), len(texts))
	}
	return out.Tokens, nil
}

// Vectorize implements LanguageProvider.
func (r *Remote) Vectorize(ctx context.Context, tokens []string, language string) ([][]float64, error) {
	var out vectorizeResponse
	if err := r.post(ctx, "/v1/vectorize", vectorizeRequest{Tokens: tokens, Language: language}, &out); err != nil {
		return nil, err
	}
	if len(out.Vectors) != len(tokens) {
		return nil, errors.Newf(errors.ErrCodeExternalService, "provider %q returned %d vectors for %d tokens", r.name, len(out.Vectors), len(tokens))
	}
	return out.Vectors, nil
}

// GenerateJunkWords implements LanguageProvider.
func (r *Remote) GenerateJunkWords(ctx context.Context, vocabulary []string, language string) ([]string, error) {
	var out junkWordsResponse
	if err := r.post(ctx, "/v1/junk-words", junkWordsRequest{Vocabulary: vocabulary, Language: language}, &out); err != nil {
		return nil, err
	}
	return out.Words, nil
}

func (r *Remote) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode provider request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build provider request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeExternalService, "provider %q request failed", r.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf(errors.ErrCodeExternalService, "provider %q returned HTTP %d: %s", r.name, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, errors.ErrCodeExternalService, "failed to decode provider %q response", r.name)
	}
	return nil
}

var _ LanguageProvider = (*Remote)(nil)
