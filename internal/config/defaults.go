package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "nlu"
	DefaultDBMaxConns = 10
	DefaultDBSSLMode  = "disable"

	DefaultRedisAddr = "localhost:6379"

	DefaultKafkaBroker = "localhost:9092"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "nlu-models"

	DefaultMilvusTopK = 1

	DefaultCacheTTL       = 15 * time.Minute
	DefaultCooldownBase   = 2 * time.Second
	DefaultCooldownMax    = 2 * time.Minute
	DefaultRequestTimeout = 5 * time.Second
	DefaultLanguage       = "en"

	DefaultMaxClusters        = 8
	DefaultListEntityCutoff   = 0.6
	DefaultModelDir           = "models"
	DefaultDebounceSeconds    = 4
	DefaultMaxTaggingWarnings = 25

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "nlu"
)

// ApplyDefaults fills every zero-value field in cfg with the engine default.
// Fields that have already been set by the caller are left unchanged so that
// explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Database (optional: only defaulted when a host is configured) ────────
	if cfg.Database.Host != "" {
		if cfg.Database.Port == 0 {
			cfg.Database.Port = DefaultDBPort
		}
		if cfg.Database.DBName == "" {
			cfg.Database.DBName = DefaultDBName
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = DefaultDBSSLMode
		}
		if cfg.Database.MaxConns == 0 {
			cfg.Database.MaxConns = DefaultDBMaxConns
		}
	}

	// ── Redis (optional: only defaulted when an address is configured) ───────
	if cfg.Redis.Addr != "" && cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "nlu:"
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint != "" && cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Milvus ────────────────────────────────────────────────────────────────
	if cfg.Milvus.DefaultTopK == 0 {
		cfg.Milvus.DefaultTopK = DefaultMilvusTopK
	}
	if cfg.Milvus.CollectionPrefix == "" {
		cfg.Milvus.CollectionPrefix = "nlu_vocab_"
	}

	// ── Language provider ─────────────────────────────────────────────────────
	if cfg.Language.CacheTTL == 0 {
		cfg.Language.CacheTTL = DefaultCacheTTL
	}
	if cfg.Language.CooldownBase == 0 {
		cfg.Language.CooldownBase = DefaultCooldownBase
	}
	if cfg.Language.CooldownMax == 0 {
		cfg.Language.CooldownMax = DefaultCooldownMax
	}
	if cfg.Language.RequestTimeout == 0 {
		cfg.Language.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Language.DefaultLanguage == "" {
		cfg.Language.DefaultLanguage = DefaultLanguage
	}
	if len(cfg.Language.Providers) == 0 {
		// A single local provider keeps the engine usable out of the box.
		cfg.Language.Providers = []ProviderConfig{{Name: "local", Kind: "local"}}
	}
	if len(cfg.Language.SupportedLangs) == 0 {
		cfg.Language.SupportedLangs = []string{cfg.Language.DefaultLanguage}
	}

	// ── Training ──────────────────────────────────────────────────────────────
	if cfg.Training.MaxClusters == 0 {
		cfg.Training.MaxClusters = DefaultMaxClusters
	}
	if cfg.Training.ListEntityCutoff == 0 {
		cfg.Training.ListEntityCutoff = DefaultListEntityCutoff
	}
	if cfg.Training.ModelDir == "" {
		cfg.Training.ModelDir = DefaultModelDir
	}
	if cfg.Training.DebounceSeconds == 0 {
		cfg.Training.DebounceSeconds = DefaultDebounceSeconds
	}
	if cfg.Training.MaxTaggingWarnings == 0 {
		cfg.Training.MaxTaggingWarnings = DefaultMaxTaggingWarnings
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
