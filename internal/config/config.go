// Package config loads faultline settings from defaults, an optional YAML file and
// FAULTLINE_ environment variables.
package config

import (
	"fmt"
	"time"
)

// Config holds all settings.
type Config struct {
	LogLevel    string            `koanf:"log_level"`
	Server      ServerConfig      `koanf:"server"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	LLM         LLMConfig         `koanf:"llm"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Vector      VectorConfig      `koanf:"vector"`
	ObjectStore ObjectStoreConfig `koanf:"object_store"`
	GitHub      GitHubConfig      `koanf:"github"`
	Persistence PersistenceConfig `koanf:"persistence"`
	Tracing     TracingConfig     `koanf:"tracing"`
	Rules       RulesConfig       `koanf:"rules"`
}

type ServerConfig struct {
	Port         int           `koanf:"port"`
	MaxBodyBytes int64         `koanf:"max_body_bytes"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type PipelineConfig struct {
	CollectionPrefix    string        `koanf:"collection_prefix"`
	HistoryCollection   string        `koanf:"history_collection"`
	RetrievalK          int           `koanf:"retrieval_k"`
	RetrievalQuery      string        `koanf:"retrieval_query"`
	RegressionTopK      int           `koanf:"regression_top_k"`
	RegressionThreshold float64       `koanf:"regression_threshold"`
	SummaryMaxLen       int           `koanf:"summary_max_len"`
	ExcerptMaxLines     int           `koanf:"excerpt_max_lines"`
	ChunkLines          int           `koanf:"chunk_lines"`
	StepTimeout         time.Duration `koanf:"step_timeout"`
}

type LLMConfig struct {
	Provider  string        `koanf:"provider"` // anthropic, gemini or none
	Model     string        `koanf:"model"`
	APIKey    string        `koanf:"api_key"`
	BaseURL   string        `koanf:"base_url"`
	MaxTokens int           `koanf:"max_tokens"`
	Timeout   time.Duration `koanf:"timeout"`
	Retries   int           `koanf:"retries"`
	Backoff   time.Duration `koanf:"backoff"`
	CacheSize int           `koanf:"cache_size"` // 0 disables the cache
}

type EmbeddingConfig struct {
	Provider string `koanf:"provider"` // gemini or none
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
}

type VectorConfig struct {
	Backend  string         `koanf:"backend"` // memory or falkordb
	FalkorDB FalkorDBConfig `koanf:"falkordb"`
}

type FalkorDBConfig struct {
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
	Password  string `koanf:"password"`
	Graph     string `koanf:"graph"`
	Dimension int    `koanf:"dimension"`
}

type ObjectStoreConfig struct {
	Backend         string `koanf:"backend"` // memory or s3
	Endpoint        string `koanf:"endpoint"`
	Region          string `koanf:"region"`
	Bucket          string `koanf:"bucket"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	PathStyle       bool   `koanf:"path_style"`
}

type GitHubConfig struct {
	Token   string `koanf:"token"`
	BaseURL string `koanf:"base_url"`
}

type PersistenceConfig struct {
	SnapshotPath string        `koanf:"snapshot_path"` // empty disables snapshots
	Interval     time.Duration `koanf:"interval"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	TLSCA       string `koanf:"tls_ca"`
	TLSInsecure bool   `koanf:"tls_insecure"`
}

type RulesConfig struct {
	Path           string `koanf:"path"`
	Watch          bool   `koanf:"watch"`
	DebounceMillis int    `koanf:"debounce_millis"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:         8080,
			MaxBodyBytes: 10 << 20,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			CollectionPrefix:    "logs",
			HistoryCollection:   "incidents_history",
			RetrievalK:          5,
			RetrievalQuery:      "Summarize the failure and suggest fixes",
			RegressionTopK:      3,
			RegressionThreshold: 0.85,
			SummaryMaxLen:       200,
			ExcerptMaxLines:     80,
			ChunkLines:          20,
			StepTimeout:         30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 2048,
			Timeout:   120 * time.Second,
			Retries:   2,
			Backoff:   2 * time.Second,
			CacheSize: 256,
		},
		Embedding: EmbeddingConfig{
			Provider: "none",
			Model:    "text-embedding-004",
		},
		Vector: VectorConfig{
			Backend: "memory",
			FalkorDB: FalkorDBConfig{
				Host:      "localhost",
				Port:      6379,
				Graph:     "faultline",
				Dimension: 768,
			},
		},
		ObjectStore: ObjectStoreConfig{
			Backend:   "memory",
			Region:    "us-east-1",
			Bucket:    "logs",
			PathStyle: true,
		},
		Persistence: PersistenceConfig{
			Interval: 5 * time.Minute,
		},
		Rules: RulesConfig{
			DebounceMillis: 500,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return NewConfigError("server.port must be between 1 and 65535")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return NewConfigError("server.max_body_bytes must be positive")
	}

	p := c.Pipeline
	if p.RegressionThreshold < 0 || p.RegressionThreshold > 1 {
		return NewConfigError("pipeline.regression_threshold must be within [0, 1]")
	}
	if p.RetrievalK < 1 {
		return NewConfigError("pipeline.retrieval_k must be at least 1")
	}
	if p.RegressionTopK < 1 {
		return NewConfigError("pipeline.regression_top_k must be at least 1")
	}
	if p.CollectionPrefix == "" || p.HistoryCollection == "" {
		return NewConfigError("pipeline collection names must not be empty")
	}

	if err := oneOf("llm.provider", c.LLM.Provider, "anthropic", "gemini", "none"); err != nil {
		return err
	}
	if c.LLM.Retries < 0 {
		return NewConfigError("llm.retries must not be negative")
	}
	if err := oneOf("embedding.provider", c.Embedding.Provider, "gemini", "none"); err != nil {
		return err
	}
	if err := oneOf("vector.backend", c.Vector.Backend, "memory", "falkordb"); err != nil {
		return err
	}
	if c.Vector.Backend == "falkordb" && c.Embedding.Provider == "gemini" && c.Vector.FalkorDB.Dimension < 1 {
		return NewConfigError("vector.falkordb.dimension must be set for gemini embeddings")
	}
	if err := oneOf("object_store.backend", c.ObjectStore.Backend, "memory", "s3"); err != nil {
		return err
	}
	if c.ObjectStore.Bucket == "" {
		return NewConfigError("object_store.bucket must not be empty")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}
	if c.Rules.Watch && c.Rules.Path == "" {
		return NewConfigError("rules.path must be set when rules.watch is enabled")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return NewConfigError(fmt.Sprintf("%s must be one of %v, got %q", key, allowed, value))
}

// ConfigError is a validation failure.
type ConfigError struct {
	message string
}

// NewConfigError creates a ConfigError.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

func (e *ConfigError) Error() string {
	return e.message
}
