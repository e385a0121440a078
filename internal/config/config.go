package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Tokenizer names accepted by TOKENIZER.
const (
	TokenizerTiktoken = "tiktoken"
	TokenizerEstimate = "estimate"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Storage
	StorePath string `yaml:"store_path"`

	// Embeddings (disabled when no OpenAI key is set)
	OpenAIAPIKey         string `yaml:"openai_api_key"`
	OpenAIBaseURL        string `yaml:"openai_base_url"`
	EmbeddingModel       string `yaml:"embedding_model"`
	EmbedBatchSize       int    `yaml:"embed_batch_size"`
	EmbedTokensPerMinute int    `yaml:"embed_tokens_per_minute"`

	// Retries of rate-limited or failed embedding batches
	EmbedMaxRetries int           `yaml:"embed_max_retries"`
	EmbedRetryBase  time.Duration `yaml:"embed_retry_base"`
	EmbedRetryMax   time.Duration `yaml:"embed_retry_max"`

	// Worker pool
	WorkerCount        int `yaml:"worker_count"`
	MaxQueueSize       int `yaml:"max_queue_size"`
	MaxConcurrentEmbed int `yaml:"max_concurrent_embed"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Chunking defaults
	ChunkSize      int     `yaml:"chunk_size"`
	OverlapRatio   float64 `yaml:"overlap_ratio"`
	Tokenizer      string  `yaml:"tokenizer"`
	TokenizerModel string  `yaml:"tokenizer_model"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:     "8090",
		LogLevel: "info",

		StorePath: "docchunk.db",

		EmbeddingModel:       "text-embedding-3-small",
		EmbedBatchSize:       64,
		EmbedTokensPerMinute: 1_000_000,
		EmbedMaxRetries:      3,
		EmbedRetryBase:       1 * time.Second,
		EmbedRetryMax:        30 * time.Second,

		WorkerCount:        4,
		MaxQueueSize:       100,
		MaxConcurrentEmbed: 4,

		MaxUploadBytes: 52428800, // 50MB

		ChunkSize:      512,
		OverlapRatio:   0.1,
		Tokenizer:      TokenizerTiktoken,
		TokenizerModel: "text-embedding-3-small",

		JobTTL: 1 * time.Hour,

		PDFFallbackPdftotext: true,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any), and environment variables, in that order.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.APIKey = envOr("DOCCHUNK_API_KEY", cfg.APIKey)
	cfg.StorePath = envOr("STORE_PATH", cfg.StorePath)

	cfg.OpenAIAPIKey = envOr("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOr("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.EmbeddingModel = envOr("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbedBatchSize = envInt("EMBED_BATCH_SIZE", cfg.EmbedBatchSize)
	cfg.EmbedTokensPerMinute = envInt("EMBED_TOKENS_PER_MINUTE", cfg.EmbedTokensPerMinute)
	cfg.EmbedMaxRetries = envInt("EMBED_MAX_RETRIES", cfg.EmbedMaxRetries)
	cfg.EmbedRetryBase = envDuration("EMBED_RETRY_BASE", cfg.EmbedRetryBase)
	cfg.EmbedRetryMax = envDuration("EMBED_RETRY_MAX", cfg.EmbedRetryMax)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.MaxConcurrentEmbed = envInt("MAX_CONCURRENT_EMBED", cfg.MaxConcurrentEmbed)

	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.ChunkSize = envInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.OverlapRatio = envFloat("OVERLAP_RATIO", cfg.OverlapRatio)
	cfg.Tokenizer = envOr("TOKENIZER", cfg.Tokenizer)
	cfg.TokenizerModel = envOr("TOKENIZER_MODEL", cfg.TokenizerModel)

	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)

	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	cfg.clamp()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// clamp replaces non-positive sizing values with defaults.
func (c *Config) clamp() {
	d := Defaults()
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.MaxConcurrentEmbed <= 0 {
		c.MaxConcurrentEmbed = d.MaxConcurrentEmbed
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = d.EmbedBatchSize
	}
	if c.EmbedTokensPerMinute <= 0 {
		c.EmbedTokensPerMinute = d.EmbedTokensPerMinute
	}
	if c.EmbedMaxRetries < 0 {
		c.EmbedMaxRetries = d.EmbedMaxRetries
	}
	if c.EmbedRetryBase <= 0 {
		c.EmbedRetryBase = d.EmbedRetryBase
	}
	if c.EmbedRetryMax < c.EmbedRetryBase {
		c.EmbedRetryMax = max(d.EmbedRetryMax, c.EmbedRetryBase)
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
}

// EmbeddingsEnabled reports whether chunks should be embedded.
func (c Config) EmbeddingsEnabled() bool {
	return c.OpenAIAPIKey != ""
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("DOCCHUNK_API_KEY is required")
	}
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		return fmt.Errorf("OVERLAP_RATIO must be in [0, 1), got %v", c.OverlapRatio)
	}
	switch c.Tokenizer {
	case TokenizerTiktoken, TokenizerEstimate:
	default:
		return fmt.Errorf("TOKENIZER must be %q or %q, got %q", TokenizerTiktoken, TokenizerEstimate, c.Tokenizer)
	}
	return nil
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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
