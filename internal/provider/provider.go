// Package provider implements the language-provider surface the engine
// tokenizes and vectorizes through: a local in-process provider, a remote
// HTTP provider, a per-language failover pool with cooldowns and a
// content-addressed TTL cache.
package provider

import "context"

// LanguageProvider converts raw text to tokens, tokens to vectors and a
// vocabulary to junk words. All calls are batch calls.
type LanguageProvider interface {
	Name() string
	Tokenize(ctx context.Context, texts []string, language string) ([][]string, error)
	Vectorize(ctx context.Context, tokens []string, language string) ([][]float64, error)
	GenerateJunkWords(ctx context.Context, vocabulary []string, language string) ([]string, error)
}
