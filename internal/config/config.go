// Package config provides configuration for the recall memory engine. It
// loads settings from environment variables with the RECALL_ prefix, with an
// optional YAML file overlay, and provides sensible defaults for everything.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the recall engine and its collaborators.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Memory    MemoryConfig    `yaml:"memory"`
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	// Path is the SQLite database path (default: ./recall.db).
	Path string `yaml:"path"`
}

// EmbeddingConfig contains embedding/summarization provider configuration.
type EmbeddingConfig struct {
	// Provider selects the capability backend: ollama or mock (default: ollama).
	Provider string `yaml:"provider"`

	// BaseURL is the Ollama API URL (default: http://localhost:11434).
	BaseURL string `yaml:"base_url"`

	// EmbedModel is the embedding model name (default: nomic-embed-text).
	EmbedModel string `yaml:"embed_model"`

	// SummaryModel is the digest model name (default: qwen2.5:7b).
	SummaryModel string `yaml:"summary_model"`

	// Dimension is the expected embedding dimension (default: 768).
	Dimension int `yaml:"dimension"`
}

// MemoryConfig contains the engine's scoring and retrieval knobs.
type MemoryConfig struct {
	// RecencyHalfLifeDays parameterizes the recency-bias decay (default: 7).
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`

	// DriftProbability is the chance of injecting one tangential
	// high-importance memory into retrieval results (default: 0.1).
	DriftProbability float64 `yaml:"drift_probability"`

	// NeighborThreshold is the minimum edge weight for graph neighbors to
	// join the retrieval candidate pool (default: 0.3).
	NeighborThreshold float64 `yaml:"neighbor_threshold"`

	// SimilarityThreshold is the minimum cosine for association linking
	// (default: 0.3).
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// RetrievalLimit is the default result limit (default: 6).
	RetrievalLimit int `yaml:"retrieval_limit"`

	// SleepWindow is the daily consolidation window as "HH:MM-HH:MM",
	// which may wrap past midnight (default: "23:00-06:00").
	SleepWindow string `yaml:"sleep_window"`
}

// Load builds a Config from environment variables and defaults.
func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			Path: getEnv("RECALL_DB_PATH", "./recall.db"),
		},
		Embedding: EmbeddingConfig{
			Provider:     getEnv("RECALL_EMBEDDING_PROVIDER", "ollama"),
			BaseURL:      getEnv("RECALL_OLLAMA_URL", "http://localhost:11434"),
			EmbedModel:   getEnv("RECALL_EMBED_MODEL", "nomic-embed-text"),
			SummaryModel: getEnv("RECALL_SUMMARY_MODEL", "qwen2.5:7b"),
			Dimension:    getEnvInt("RECALL_EMBED_DIMENSION", 768),
		},
		Memory: MemoryConfig{
			RecencyHalfLifeDays: getEnvFloat("RECALL_RECENCY_HALF_LIFE_DAYS", 7),
			DriftProbability:    getEnvFloat("RECALL_DRIFT_PROBABILITY", 0.1),
			NeighborThreshold:   getEnvFloat("RECALL_NEIGHBOR_THRESHOLD", 0.3),
			SimilarityThreshold: getEnvFloat("RECALL_SIMILARITY_THRESHOLD", 0.3),
			RetrievalLimit:      getEnvInt("RECALL_RETRIEVAL_LIMIT", 6),
			SleepWindow:         getEnv("RECALL_SLEEP_WINDOW", "23:00-06:00"),
		},
	}
}

// LoadFile loads Load()'s result and overlays it with values from a YAML
// file. File values win over environment variables.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value, also used when the variable cannot be parsed.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value, also used when the variable cannot be parsed.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
