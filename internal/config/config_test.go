package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestApplyDefaultsFillsLanguageSection(t *testing.T) {
	cfg := validConfig()
	if cfg.Language.CacheTTL != DefaultCacheTTL {
		t.Fatalf("cache_ttl = %s, want %s", cfg.Language.CacheTTL, DefaultCacheTTL)
	}
	if cfg.Language.DefaultLanguage != DefaultLanguage {
		t.Fatalf("default_language = %q", cfg.Language.DefaultLanguage)
	}
	if len(cfg.Language.Providers) != 1 || cfg.Language.Providers[0].Kind != "local" {
		t.Fatalf("expected a single default local provider, got %+v", cfg.Language.Providers)
	}
	if len(cfg.Language.SupportedLangs) != 1 || cfg.Language.SupportedLangs[0] != DefaultLanguage {
		t.Fatalf("supported_langs = %v", cfg.Language.SupportedLangs)
	}
}

func TestApplyDefaultsRespectsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Language.CacheTTL = time.Hour
	cfg.Training.MaxClusters = 4
	ApplyDefaults(cfg)
	if cfg.Language.CacheTTL != time.Hour {
		t.Fatal("explicit cache_ttl was overridden")
	}
	if cfg.Training.MaxClusters != 4 {
		t.Fatal("explicit max_clusters was overridden")
	}
}

func TestApplyDefaultsLeavesRedisUnconfigured(t *testing.T) {
	cfg := validConfig()
	if cfg.Redis.Addr != "" {
		t.Fatalf("redis.addr = %q, want empty until explicitly configured", cfg.Redis.Addr)
	}
	if cfg.Redis.KeyPrefix != "" {
		t.Fatalf("redis.key_prefix = %q, want empty without an address", cfg.Redis.KeyPrefix)
	}

	cfg = &Config{}
	cfg.Redis.Addr = "redis:6379"
	ApplyDefaults(cfg)
	if cfg.Redis.KeyPrefix != "nlu:" {
		t.Fatalf("redis.key_prefix = %q, want nlu: once an address is set", cfg.Redis.KeyPrefix)
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for bad log level")
	}
}

func TestValidateRejectsRemoteProviderWithoutEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Language.Providers = []ProviderConfig{{Name: "svc", Kind: "remote"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for remote provider without endpoint")
	}
}

func TestValidateRejectsBadCutoff(t *testing.T) {
	cfg := validConfig()
	cfg.Training.ListEntityCutoff = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for cutoff > 1")
	}
}

func TestValidateDatabaseOnlyWhenConfigured(t *testing.T) {
	cfg := validConfig()
	// No database host at all: fine.
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	// Host set but no user: must fail.
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for database host without user")
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nlu.yaml")
	data := []byte(`
log:
  level: debug
language:
  default_language: fr
  supported_langs: [fr, en]
training:
  max_clusters: 6
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log.level = %q", cfg.Log.Level)
	}
	if cfg.Language.DefaultLanguage != "fr" {
		t.Fatalf("default_language = %q", cfg.Language.DefaultLanguage)
	}
	if cfg.Training.MaxClusters != 6 {
		t.Fatalf("max_clusters = %d", cfg.Training.MaxClusters)
	}
	// Unset fields still receive defaults.
	if cfg.Language.CacheTTL != DefaultCacheTTL {
		t.Fatalf("cache_ttl = %s", cfg.Language.CacheTTL)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
