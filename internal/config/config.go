// Package config loads certquiz configuration from YAML with environment
// overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all certquiz configuration.
type Config struct {
	// LLM completion provider
	LLM LLMConfig `yaml:"llm"`

	// Embedding provider
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Corpus storage
	Corpus CorpusConfig `yaml:"corpus"`

	// Hybrid retrieval tuning
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Generation pipeline tuning
	Generation GenerationConfig `yaml:"generation"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // genai, openai
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"` // openai-compatible endpoints only
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // genai, ollama
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
}

// CorpusConfig configures the SQLite corpus store.
type CorpusConfig struct {
	DatabasePath string `yaml:"database_path"`
	BusyTimeout  string `yaml:"busy_timeout"`
}

// RetrievalConfig tunes the hybrid retriever.
type RetrievalConfig struct {
	VectorWeight        float64 `yaml:"vector_weight"`
	KeywordWeight       float64 `yaml:"keyword_weight"`
	RRFConstant         int     `yaml:"rrf_constant"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// GenerationConfig tunes the question generation pipeline.
type GenerationConfig struct {
	MaxCriticIterations int     `yaml:"max_critic_iterations"`
	MinCriticScore      int     `yaml:"min_critic_score"`
	MaxTotalAttempts    int     `yaml:"max_total_attempts"`
	MaxFacts            int     `yaml:"max_facts"`
	DedupeThreshold     float64 `yaml:"dedupe_threshold"`
	MultiSelectQuota    float64 `yaml:"multi_select_quota"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:   "genai",
			Model:      "gemini-2.5-flash",
			Timeout:    "120s",
			MaxRetries: 3,
		},
		Embedding: EmbeddingConfig{
			Provider:       "genai",
			Model:          "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
		},
		Corpus: CorpusConfig{
			DatabasePath: ".certquiz/corpus.db",
			BusyTimeout:  "5s",
		},
		Retrieval: RetrievalConfig{
			VectorWeight:        0.5,
			KeywordWeight:       0.5,
			RRFConstant:         60,
			SimilarityThreshold: 0.7,
		},
		Generation: GenerationConfig{
			MaxCriticIterations: 2,
			MinCriticScore:      7,
			MaxTotalAttempts:    15,
			MaxFacts:            6,
			DedupeThreshold:     0.85,
			MultiSelectQuota:    0.2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, merges it over defaults, and applies
// environment overrides. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides fills secrets from the environment. Env values win over
// file values so keys never need to live in the YAML.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CERTQUIZ_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("CERTQUIZ_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	// Shared Gemini key covers both providers when nothing more specific is set.
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		if c.LLM.Provider == "genai" && c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
		if c.Embedding.Provider == "genai" && c.Embedding.APIKey == "" {
			c.Embedding.APIKey = v
		}
	}
	if v := os.Getenv("CERTQUIZ_DB_PATH"); v != "" {
		c.Corpus.DatabasePath = v
	}
}

func (c *Config) validate() error {
	if c.Generation.MinCriticScore < 1 || c.Generation.MinCriticScore > 10 {
		return fmt.Errorf("generation.min_critic_score must be in [1,10], got %d", c.Generation.MinCriticScore)
	}
	if c.Generation.MultiSelectQuota < 0 || c.Generation.MultiSelectQuota > 1 {
		return fmt.Errorf("generation.multi_select_quota must be in [0,1], got %v", c.Generation.MultiSelectQuota)
	}
	if c.Retrieval.RRFConstant <= 0 {
		return fmt.Errorf("retrieval.rrf_constant must be positive, got %d", c.Retrieval.RRFConstant)
	}
	return nil
}

// LLMTimeout parses the LLM timeout string, falling back to two minutes.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// CorpusBusyTimeout parses the SQLite busy timeout, falling back to 5s.
func (c *Config) CorpusBusyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Corpus.BusyTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
