package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/inkstream/lettera/internal/brain"
	"github.com/inkstream/lettera/internal/chunk"
	"github.com/inkstream/lettera/internal/config"
	"github.com/inkstream/lettera/internal/embed"
	"github.com/inkstream/lettera/internal/logging"
	"github.com/inkstream/lettera/internal/store"
)

// loadConfig loads configuration and initializes logging, or fatals.
func loadConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}
	if err := logging.Init(); err != nil {
		// Logging to a file is best-effort; fall back to stderr.
		logging.InitTo(os.Stderr)
	}
	return cfg
}

// openDB opens the store at the configured path, creating the data
// directory if needed, or fatals.
func openDB(cfg *config.Config) *store.Store {
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			log.Fatalf("lettera: create data directory: %v", err)
		}
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("lettera: open database: %v", err)
	}
	st.SetBatchFloor(cfg.Ingest.MinBatchSize)
	return st
}

// newEmbedder constructs the configured embedding client, failing fast
// on a missing credential.
func newEmbedder(cfg *config.Config) embed.BatchEmbedder {
	if err := cfg.ValidateEmbedding(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	switch cfg.Embedding.Provider {
	case "jina":
		return embed.NewJinaEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dim, cfg.Ingest.CallsPerSec)
	default:
		return embed.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dim, cfg.Ingest.CallsPerSec)
	}
}

// newProvider constructs the configured generative client, failing fast
// on a missing credential.
func newProvider(cfg *config.Config) brain.Provider {
	if err := cfg.ValidateGenerate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	switch cfg.Generate.Provider {
	case "gemini":
		return brain.NewGeminiProvider(cfg.Generate.APIKey, cfg.Generate.Model)
	default:
		return brain.NewOpenAIProvider(cfg.Generate.APIKey, cfg.Generate.Model)
	}
}

// chunkOptions maps config to chunker options.
func chunkOptions(cfg *config.Config) chunk.Options {
	return chunk.Options{
		TargetSize: cfg.Chunking.TargetSize,
		MinSize:    cfg.Chunking.MinSize,
		Overlap:    cfg.Chunking.Overlap,
	}
}
