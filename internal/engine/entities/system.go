package entities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/converso-ai/nlu-engine/internal/engine/utterance"
	"github.com/converso-ai/nlu-engine/pkg/errors"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

// SystemExtractor recognizes general-purpose entities (dates, numbers,
// money and so on) through an external service.
type SystemExtractor interface {
	Extract(ctx context.Context, text, language string) ([]nlu.EntityResult, error)
}

// HTTPSystemExtractor talks JSON to a system-entity service over HTTP.
type HTTPSystemExtractor struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSystemExtractor validates the endpoint and returns a client with
// the given request timeout.
func NewHTTPSystemExtractor(baseURL string, timeout time.Duration) (*HTTPSystemExtractor, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "invalid system extractor endpoint")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New(errors.ErrCodeConfiguration, "system extractor endpoint scheme must be http or https")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSystemExtractor{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type systemExtractRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type systemExtractResponse struct {
	Entities []nlu.EntityResult `json:"entities"`
}

// Extract implements SystemExtractor.
func (c *HTTPSystemExtractor) Extract(ctx context.Context, text, language string) ([]nlu.EntityResult, error) {
	body, err := json.Marshal(systemExtractRequest{Text: text, Language: language})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode extract request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build extract request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "system extractor request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf(errors.ErrCodeExternalService, "system extractor returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out systemExtractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to decode system extractor response")
	}
	return out.Entities, nil
}

// ReshapeSystemEntities converts service results into entity spans over the
// utterance's tokens. Results whose character range covers no word token
// are dropped.
func ReshapeSystemEntities(u *utterance.Utterance, results []nlu.EntityResult) []utterance.EntitySpan {
	var out []utterance.EntitySpan
	for _, r := range results {
		start, end, ok := tokenRange(u, r.StartChar, r.EndChar)
		if !ok {
			continue
		}
		span := utterance.EntitySpan{
			Type:       r.Type,
			Value:      r.Value,
			Confidence: r.Confidence,
			StartToken: start,
			EndToken:   end,
			StartChar:  r.StartChar,
			EndChar:    r.EndChar,
			Extractor:  nlu.ExtractorSystem,
			Metadata:   r.Metadata,
		}
		out = append(out, span)
	}
	return out
}

var _ SystemExtractor = (*HTTPSystemExtractor)(nil)

// String implements fmt.Stringer for log fields.
func (c *HTTPSystemExtractor) String() string {
	return fmt.Sprintf("system-extractor(%s)", c.baseURL)
}
