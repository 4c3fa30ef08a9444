package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port    string
	DataDir string

	// Upload limits
	MaxUploadBytes int64

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Embedding provider (OpenAI-compatible)
	EmbedBaseURL     string
	EmbedAPIKey      string
	EmbedModel       string
	EmbedDimension   int
	EmbedBatchSize   int
	EmbedConcurrency int
	EmbedTimeout     time.Duration

	// Reranker (Cohere-compatible; optional — empty key disables reranking)
	RerankBaseURL string
	RerankAPIKey  string
	RerankModel   string
	RerankTimeout time.Duration

	// Answer generation (Anthropic)
	AnthropicAPIKey string
	AnthropicModel  string
	GenerateTimeout time.Duration

	// Retrieval
	RetrieveTopK int
	RRFConstant  int
	RerankTopN   int

	// Bounded retries for transient provider failures
	MaxRetries int

	// CORS allowed origin for the browser client
	CORSOrigin string
}

func Load() Config {
	return Config{
		Port:    envOr("PORT", "8080"),
		DataDir: envOr("DATA_DIR", "./data"),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10485760), // 10MB

		ChunkSize:    envInt("CHUNK_SIZE", 400),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 60),

		EmbedBaseURL:     envOr("EMBED_BASE_URL", "https://api.openai.com/v1"),
		EmbedAPIKey:      os.Getenv("EMBED_API_KEY"),
		EmbedModel:       envOr("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDimension:   envInt("EMBED_DIMENSION", 1536),
		EmbedBatchSize:   envInt("EMBED_BATCH_SIZE", 64),
		EmbedConcurrency: envInt("EMBED_CONCURRENCY", 4),
		EmbedTimeout:     envDuration("EMBED_TIMEOUT", 60*time.Second),

		RerankBaseURL: envOr("RERANK_BASE_URL", "https://api.cohere.ai"),
		RerankAPIKey:  os.Getenv("RERANK_API_KEY"),
		RerankModel:   envOr("RERANK_MODEL", "rerank-english-v3.0"),
		RerankTimeout: envDuration("RERANK_TIMEOUT", 15*time.Second),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		GenerateTimeout: envDuration("GENERATE_TIMEOUT", 60*time.Second),

		RetrieveTopK: envInt("RETRIEVE_TOP_K", 20),
		RRFConstant:  envInt("RRF_CONSTANT", 60),
		RerankTopN:   envInt("RERANK_TOP_N", 5),

		MaxRetries: envInt("MAX_RETRIES", 3),

		CORSOrigin: envOr("CORS_ORIGIN", "*"),
	}
}

func (c Config) Validate() error {
	if c.EmbedAPIKey == "" {
		return fmt.Errorf("EMBED_API_KEY is required")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.EmbedDimension <= 0 {
		return fmt.Errorf("EMBED_DIMENSION must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be non-negative and less than CHUNK_SIZE")
	}
	return nil
}

// IndexPath returns the path of the BoltDB index file.
func (c Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.db")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
