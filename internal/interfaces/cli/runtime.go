package cli

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/converso-ai/nlu-engine/internal/config"
	"github.com/converso-ai/nlu-engine/internal/engine/entities"
	"github.com/converso-ai/nlu-engine/internal/engine/prediction"
	"github.com/converso-ai/nlu-engine/internal/engine/training"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/database/postgres"
	rediscache "github.com/converso-ai/nlu-engine/internal/infrastructure/database/redis"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/messaging/kafka"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/search/milvus"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/storage/minio"
	"github.com/converso-ai/nlu-engine/internal/provider"
)

// runtime carries the wired dependencies of one CLI invocation. Optional
// backends stay nil when the configuration does not name them; commands
// check before use.
type runtime struct {
	cfg      *config.Config
	logger   logging.Logger
	provider provider.LanguageProvider
	trainer  *training.Trainer
	predict  *prediction.Predictor

	// store is nil without an object-store endpoint in the config.
	store *minio.ModelRepository

	// vocab is nil without a vector-database address in the config.
	vocab *milvus.VocabIndex

	// definitions is nil without a database host in the config.
	definitions *postgres.TrainingStore

	closers []func()
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// buildRuntime loads configuration and wires every backend it names.
// Optional services degrade: a missing redis falls back to the in-memory
// provider cache, absent kafka brokers skip event emission.
func buildRuntime(ctx context.Context, opts *RootOptions) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = strings.ToLower(opts.LogLevel)
	}
	logger, err := logging.NewLogger(logging.Config{
		Level:  level,
		Format: cfg.Log.Format,
		Output: "stderr",
	})
	if err != nil {
		return nil, err
	}

	// CLI invocations are one-shot; nothing scrapes a metrics endpoint.
	metrics := prometheus.NewNopMetrics()

	rt := &runtime{cfg: cfg, logger: logger}

	langProvider := buildProvider(cfg, logger, metrics)
	langProvider = wrapCache(cfg, langProvider, metrics, logger, rt)
	rt.provider = langProvider

	var system entities.SystemExtractor
	if cfg.Language.SystemExtractor != "" {
		system, err = entities.NewHTTPSystemExtractor(cfg.Language.SystemExtractor, cfg.Language.RequestTimeout)
		if err != nil {
			rt.close()
			return nil, err
		}
	}

	events := buildEvents(cfg, logger, rt)

	rt.trainer = training.NewTrainer(langProvider, system, events, logger, metrics)
	if cfg.Training.MaxTaggingWarnings > 0 {
		rt.trainer.MaxWarnings = cfg.Training.MaxTaggingWarnings
	}
	rt.trainer.MaxClusters = cfg.Training.MaxClusters
	rt.trainer.ListEntityCutoff = cfg.Training.ListEntityCutoff

	rt.predict = prediction.NewPredictor(langProvider, system, nil, logger, metrics)
	if cfg.Milvus.Addr != "" {
		mc, err := milvus.NewClient(ctx, cfg.Milvus, logger)
		if err != nil {
			logger.Warn("vector index unavailable, using in-memory lookup", logging.Err(err))
		} else {
			rt.closers = append(rt.closers, func() { _ = mc.Close() })
			rt.vocab = milvus.NewVocabIndex(mc, logger)
			rt.predict.UseVocabIndexes(rt.vocab)
		}
	}

	if cfg.Database.Host != "" {
		if err := postgres.Migrate(cfg.Database, logger); err != nil {
			rt.close()
			return nil, err
		}
		pool, err := postgres.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.definitions = postgres.NewTrainingStore(pool.Raw(), logger)
	}

	if cfg.MinIO.Endpoint != "" {
		client, err := minio.NewClient(cfg.MinIO, logger)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.store = minio.NewModelRepository(client, logger, metrics)
	}

	return rt, nil
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}
	if _, err := os.Stat("nlu.yaml"); err == nil {
		return config.Load("nlu.yaml")
	}
	return config.LoadFromEnv()
}

// buildProvider assembles the tokenization chain: a failover pool over
// the configured endpoints, or the builtin local provider when none are
// configured.
func buildProvider(cfg *config.Config, logger logging.Logger, metrics *prometheus.Metrics) provider.LanguageProvider {
	if len(cfg.Language.Providers) == 0 {
		return provider.NewLocal()
	}

	pool := provider.NewPool(cfg.Language.CooldownBase, cfg.Language.CooldownMax, logger, metrics)
	for _, pc := range cfg.Language.Providers {
		var p provider.LanguageProvider
		switch pc.Kind {
		case "remote":
			remote, err := provider.NewRemote(pc.Name, pc.Endpoint, cfg.Language.RequestTimeout)
			if err != nil {
				logger.Warn("skipping misconfigured provider",
					logging.String("provider", pc.Name), logging.Err(err))
				continue
			}
			p = remote
		default:
			p = provider.NewLocal()
		}
		languages := pc.Languages
		if len(languages) == 0 {
			languages = cfg.Language.SupportedLangs
		}
		for _, lang := range languages {
			pool.Register(lang, p)
		}
	}
	return pool
}

// wrapCache puts the TTL cache in front of the provider: redis when an
// address is configured and reachable, the in-memory store otherwise.
func wrapCache(cfg *config.Config, inner provider.LanguageProvider, metrics *prometheus.Metrics, logger logging.Logger, rt *runtime) provider.LanguageProvider {
	ttl := cfg.Language.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	var store provider.CacheStore
	if cfg.Redis.Addr != "" {
		client, err := rediscache.NewClient(cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory provider cache", logging.Err(err))
		} else {
			rt.closers = append(rt.closers, func() { _ = client.Close() })
			store = rediscache.NewStore(client)
		}
	}
	if store == nil {
		store = provider.NewMemoryStore()
	}
	return provider.NewCached(inner, store, ttl, metrics)
}

// buildEvents wires the kafka training-event publisher when brokers are
// configured; training runs silently otherwise.
func buildEvents(cfg *config.Config, logger logging.Logger, rt *runtime) training.EventPublisher {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		logger.Warn("kafka unavailable, training events disabled", logging.Err(err))
		return nil
	}
	rt.closers = append(rt.closers, func() { _ = producer.Close() })
	return kafka.NewTrainingEvents(producer, logger)
}
