// Package config defines all configuration structures for the NLU engine.
// No I/O or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// DatabaseConfig holds PostgreSQL connection parameters for the training store.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection parameters for the provider cache.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds parameters for the training-event producer.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ProducerRetries int           `mapstructure:"producer_retries"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	Enabled         bool          `mapstructure:"enabled"`
}

// MinIOConfig holds object-storage parameters for the model store.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// MilvusConfig holds vector-store parameters for the shared vocabulary index.
// The index is optional; when Addr is empty the engine uses its in-memory
// nearest-neighbour lookup.
type MilvusConfig struct {
	Addr             string `mapstructure:"addr"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
	EmbeddingDim     int    `mapstructure:"embedding_dim"`
	DefaultTopK      int    `mapstructure:"default_top_k"`
}

// ProviderConfig describes one tokenization/embedding provider endpoint.
type ProviderConfig struct {
	Name      string   `mapstructure:"name"`
	Kind      string   `mapstructure:"kind"` // "local" | "remote"
	Endpoint  string   `mapstructure:"endpoint"`
	Languages []string `mapstructure:"languages"`
}

// LanguageConfig holds language-provider tunables: the per-language provider
// chain, the result cache TTL, and the failover cooldown policy.
type LanguageConfig struct {
	Providers        []ProviderConfig `mapstructure:"providers"`
	CacheTTL         time.Duration    `mapstructure:"cache_ttl"`
	CooldownBase     time.Duration    `mapstructure:"cooldown_base"`
	CooldownMax      time.Duration    `mapstructure:"cooldown_max"`
	RequestTimeout   time.Duration    `mapstructure:"request_timeout"`
	DefaultLanguage  string           `mapstructure:"default_language"`
	SystemExtractor  string           `mapstructure:"system_extractor"` // base URL, empty disables
	SupportedLangs   []string         `mapstructure:"supported_langs"`
}

// TrainingConfig holds training-pipeline tunables.
type TrainingConfig struct {
	MaxClusters        int     `mapstructure:"max_clusters"`
	ListEntityCutoff   float64 `mapstructure:"list_entity_cutoff"`
	ModelDir           string  `mapstructure:"model_dir"`
	DebounceSeconds    int     `mapstructure:"debounce_seconds"`
	MaxTaggingWarnings int     `mapstructure:"max_tagging_warnings"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level        string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format       string `mapstructure:"format"` // "json" | "text"
	Output       string `mapstructure:"output"`
	EnableCaller bool   `mapstructure:"enable_caller"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the engine.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Milvus   MilvusConfig   `mapstructure:"milvus"`
	Language LanguageConfig `mapstructure:"language"`
	Training TrainingConfig `mapstructure:"training"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|text", c.Log.Format)
	}

	if c.Language.DefaultLanguage == "" {
		return fmt.Errorf("config: language.default_language is required")
	}
	if len(c.Language.Providers) == 0 {
		return fmt.Errorf("config: language.providers must contain at least one provider")
	}
	for i, p := range c.Language.Providers {
		switch p.Kind {
		case "local":
		case "remote":
			if p.Endpoint == "" {
				return fmt.Errorf("config: language.providers[%d] (%s): remote provider requires an endpoint", i, p.Name)
			}
		default:
			return fmt.Errorf("config: language.providers[%d] (%s): kind %q is invalid; expected local|remote", i, p.Name, p.Kind)
		}
		if p.Name == "" {
			return fmt.Errorf("config: language.providers[%d]: name is required", i)
		}
	}
	if c.Language.CacheTTL <= 0 {
		return fmt.Errorf("config: language.cache_ttl must be positive, got %s", c.Language.CacheTTL)
	}
	if c.Language.CooldownBase <= 0 || c.Language.CooldownMax < c.Language.CooldownBase {
		return fmt.Errorf("config: language cooldown window is invalid (base=%s max=%s)",
			c.Language.CooldownBase, c.Language.CooldownMax)
	}

	if c.Training.MaxClusters < 2 {
		return fmt.Errorf("config: training.max_clusters must be ≥ 2, got %d", c.Training.MaxClusters)
	}
	if c.Training.ListEntityCutoff <= 0 || c.Training.ListEntityCutoff > 1 {
		return fmt.Errorf("config: training.list_entity_cutoff must be in (0, 1], got %f", c.Training.ListEntityCutoff)
	}

	if c.MinIO.Endpoint != "" && c.MinIO.Bucket == "" {
		return fmt.Errorf("config: minio.bucket is required when minio.endpoint is set")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker when kafka is enabled")
	}
	if c.Database.Host != "" {
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("config: database.user and database.db_name are required when database.host is set")
		}
	}

	return nil
}
