// Package config loads the lettera configuration file and applies
// environment overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "LETTERA_CONFIG"
	openAIKeyEnv  = "OPENAI_API_KEY"
	jinaKeyEnv    = "JINA_API_KEY"
	geminiKeyEnv  = "GOOGLE_API_KEY"
	dbPathEnv     = "LETTERA_DB"
)

// Config is the persistent application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Generate  GenerateConfig  `yaml:"generate"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Quality   QualityConfig   `yaml:"quality"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

// DatabaseConfig describes the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "openai" or "jina"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
	Dim      int    `yaml:"dim"`
}

// GenerateConfig selects and configures the generative provider.
type GenerateConfig struct {
	Provider    string  `yaml:"provider"` // "openai" or "gemini"
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"apiKey"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
}

// ChunkingConfig holds the chunk boundary tunables.
type ChunkingConfig struct {
	TargetSize int `yaml:"targetSize"`
	MinSize    int `yaml:"minSize"`
	Overlap    int `yaml:"overlap"`
}

// RetrievalConfig holds the hybrid search tunables.
// The 0.7/0.3 split is a starting point, not a settled truth.
type RetrievalConfig struct {
	VectorWeight  float64 `yaml:"vectorWeight"`
	KeywordWeight float64 `yaml:"keywordWeight"`
	TopK          int     `yaml:"topK"`
}

// QualityConfig holds the publisher score signal weights.
type QualityConfig struct {
	CitationWeight   float64 `yaml:"citationWeight"`
	SubscriberWeight float64 `yaml:"subscriberWeight"`
	RecWeight        float64 `yaml:"recWeight"`
	RelevanceWeight  float64 `yaml:"relevanceWeight"`
	PlatformWeight   float64 `yaml:"platformWeight"`
	FreshnessWeight  float64 `yaml:"freshnessWeight"`
	MinChunkLength   int     `yaml:"minChunkLength"`
}

// IngestConfig holds batching and pacing settings for the pipeline.
type IngestConfig struct {
	BatchSize     int     `yaml:"batchSize"`
	MinBatchSize  int     `yaml:"minBatchSize"`
	CallsPerSec   float64 `yaml:"callsPerSec"`
	RetryAttempts int     `yaml:"retryAttempts"`
	TimeoutSecs   int     `yaml:"timeoutSecs"`
}

// Default returns the baseline configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(home, ".lettera", "lettera.db"),
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
			Dim:      1536,
		},
		Generate: GenerateConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   2048,
		},
		Chunking: ChunkingConfig{
			TargetSize: 800,
			MinSize:    200,
			Overlap:    100,
		},
		Retrieval: RetrievalConfig{
			VectorWeight:  0.7,
			KeywordWeight: 0.3,
			TopK:          10,
		},
		Quality: QualityConfig{
			CitationWeight:   0.30,
			SubscriberWeight: 0.25,
			RecWeight:        0.15,
			RelevanceWeight:  0.20,
			PlatformWeight:   0.05,
			FreshnessWeight:  0.05,
			MinChunkLength:   50,
		},
		Ingest: IngestConfig{
			BatchSize:     100,
			MinBatchSize:  5,
			CallsPerSec:   2,
			RetryAttempts: 3,
			TimeoutSecs:   60,
		},
	}
}

// Load reads the config file named by LETTERA_CONFIG (or the given path),
// falling back to defaults when absent, then applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(configPathEnv)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv fills credentials and the database path from the environment.
// Environment values win over file values so keys never need to live on disk.
func (c *Config) applyEnv() {
	if key := os.Getenv(openAIKeyEnv); key != "" {
		if c.Embedding.Provider == "openai" {
			c.Embedding.APIKey = key
		}
		if c.Generate.Provider == "openai" {
			c.Generate.APIKey = key
		}
	}
	if key := os.Getenv(jinaKeyEnv); key != "" && c.Embedding.Provider == "jina" {
		c.Embedding.APIKey = key
	}
	if key := os.Getenv(geminiKeyEnv); key != "" && c.Generate.Provider == "gemini" {
		c.Generate.APIKey = key
	}
	if path := os.Getenv(dbPathEnv); path != "" {
		c.Database.Path = path
	}
}

// ValidateEmbedding fails fast when the embedding collaborator is required
// but not configured. Called at client construction, not at first request.
func (c *Config) ValidateEmbedding() error {
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("config: no embedding API key configured; set %s (or %s for the jina provider)", openAIKeyEnv, jinaKeyEnv)
	}
	return nil
}

// ValidateGenerate fails fast when the generative collaborator is required
// but not configured.
func (c *Config) ValidateGenerate() error {
	if c.Generate.APIKey == "" {
		return fmt.Errorf("config: no generative API key configured; set %s (or %s for the gemini provider)", openAIKeyEnv, geminiKeyEnv)
	}
	return nil
}
