package provider

import (
	"context"
	"sync"
	"time"

	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// AnyLanguage registers a provider for every language not served by a
// dedicated one.
const AnyLanguage = "*"

// member tracks one provider's failure state inside the pool.
type member struct {
	provider  LanguageProvider
	errCount  int
	coolUntil time.Time
}

// Pool fails over across the providers configured for a language. A
// provider that errors is cooled down for cooldownBase doubled per
// consecutive error, capped at cooldownMax; any success resets it.
type Pool struct {
	mu         sync.Mutex
	byLanguage map[string][]*member

	cooldownBase time.Duration
	cooldownMax  time.Duration
	now          func() time.Time

	logger  logging.Logger
	metrics *prometheus.Metrics
}

// NewPool returns an empty pool. Zero durations take sane defaults.
func NewPool(cooldownBase, cooldownMax time.Duration, logger logging.Logger, metrics *prometheus.Metrics) *Pool {
	if cooldownBase <= 0 {
		cooldownBase = 2 * time.Second
	}
	if cooldownMax <= 0 {
		cooldownMax = 2 * time.Minute
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewNopMetrics()
	}
	return &Pool{
		byLanguage:   make(map[string][]*member),
		cooldownBase: cooldownBase,
		cooldownMax:  cooldownMax,
		now:          time.Now,
		logger:       logger.Named("provider-pool"),
		metrics:      metrics,
	}
}

// Register appends providers for a language; order is failover order.
func (p *Pool) Register(language string, providers ...LanguageProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, lp := range providers {
		p.byLanguage[language] = append(p.byLanguage[language], &member{provider: lp})
	}
}

// Tokenize implements LanguageProvider over the pool.
func (p *Pool) Tokenize(ctx context.Context, texts []string, language string) ([][]string, error) {
	var out [][]string
	err := p.do(ctx, language, "tokenize", func(lp LanguageProvider) error {
		var err error
		out, err = lp.Tokenize(ctx, texts, language)
		return err
	})
	return out, err
}

// Vectorize implements LanguageProvider over the pool.
func (p *Pool) Vectorize(ctx context.Context, tokens []string, language string) ([][]float64, error) {
	var out [][]float64
	err := p.do(ctx, language, "vectorize", func(lp LanguageProvider) error {
		var err error
		out, err = lp.Vectorize(ctx, tokens, language)
		return err
	})
	return out, err
}

// GenerateJunkWords implements LanguageProvider over the pool.
func (p *Pool) GenerateJunkWords(ctx context.Context, vocabulary []string, language string) ([]string, error) {
	var out []string
	err := p.do(ctx, language, "junk-words", func(lp LanguageProvider) error {
		var err error
		out, err = lp.GenerateJunkWords(ctx, vocabulary, language)
		return err
	})
	return out, err
}

// Name implements LanguageProvider.
func (p *Pool) Name() string { return "pool" }

func (p *Pool) do(ctx context.Context, language, operation string, call func(LanguageProvider) error) error {
	for _, m := range p.candidates(language) {
		if !p.available(m) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCodeTimeout, "provider call cancelled")
		}

		p.metrics.ProviderRequestsTotal.WithLabelValues(m.provider.Name(), operation).Inc()
		err := call(m.provider)
		if err == nil {
			p.reset(m)
			return nil
		}
		p.penalize(m)
		p.metrics.ProviderFailoversTotal.WithLabelValues(m.provider.Name()).Inc()
		p.logger.Warn("provider failed, failing over",
			logging.String("provider", m.provider.Name()),
			logging.String("operation", operation),
			logging.String("language", language),
			logging.Err(err))
	}
	return errors.Newf(errors.ErrCodeNoProvider, "no provider could fulfil this request (language %q, operation %q)", language, operation)
}

func (p *Pool) candidates(language string) []*member {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*member, 0, len(p.byLanguage[language])+len(p.byLanguage[AnyLanguage]))
	out = append(out, p.byLanguage[language]...)
	out = append(out, p.byLanguage[AnyLanguage]...)
	return out
}

func (p *Pool) available(m *member) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.now().Before(m.coolUntil)
}

func (p *Pool) reset(m *member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m.errCount = 0
	m.coolUntil = time.Time{}
}

func (p *Pool) penalize(m *member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m.errCount++
	cooldown := p.cooldownBase << (m.errCount - 1)
	if cooldown > p.cooldownMax || cooldown <= 0 {
		cooldown = p.cooldownMax
	}
	m.coolUntil = p.now().Add(cooldown)
}

var _ LanguageProvider = (*Pool)(nil)
