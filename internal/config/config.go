// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all kernel configuration.
type Config struct {
	// Server settings. The kernel service binds loopback only.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Storage settings.
	DBPath string // path to the SQLite database file.

	// Optional bearer-token guard, used only if the loopback port is
	// exposed beyond 127.0.0.1. Empty disables the auth middleware.
	KernelToken string

	// Embedding provider settings, used by Fact/Lesson/Memory retrieval.
	EmbeddingProvider   string // "auto", "openai", "ollama", or "noop"
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaURL           string
	OllamaModel         string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Qdrant vector search settings (optional; nil Searcher if QdrantURL is empty).
	QdrantURL          string
	QdrantAPIKey       string
	QdrantCollection   string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	// CORS settings.
	CORSAllowedOrigins []string

	// Rate limiting, keyed per hook source, applied to every route.
	RateLimitRPS   float64
	RateLimitBurst int

	// Operational settings.
	LogLevel                string
	IntegrityProofInterval  time.Duration // how often the integrity loop verifies the chain's first 1000 blocks.
	WorkerPoolSize          int           // bounded worker pool for Store writes.
	EventBufferSize         int
	EventFlushTimeout       time.Duration
	MaxRequestBodyBytes     int64
	PerceiveTimeout         time.Duration // per-call timeout for POST /perceive.
	HealthTimeout           time.Duration // per-call timeout for GET /health.
	ExternalModelTimeout    time.Duration // per-call timeout for DELIBERATE-level external model consultation.
	StoreOpTimeout          time.Duration // default timeout for a single Store operation.
	GuidanceStaleness       time.Duration // readers ignore guidance.json older than this.
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if any environment variable contains an unparseable value
// or the loaded config fails Validate (e.g. an out-of-range port or a
// non-positive size). Missing variables use sensible defaults.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		DBPath:             envStr("CYNIC_DB_PATH", defaultDBPath()),
		KernelToken:        envStr("CYNIC_KERNEL_TOKEN", ""),
		EmbeddingProvider:  envStr("CYNIC_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:       envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:     envStr("CYNIC_EMBEDDING_MODEL", "text-embedding-3-small"),
		OllamaURL:          envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:        envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		OTELEndpoint:       envStr("CYNIC_OTEL_ENDPOINT", ""),
		ServiceName:        envStr("OTEL_SERVICE_NAME", "cynic-kernel"),
		QdrantURL:          envStr("CYNIC_QDRANT_URL", ""),
		QdrantAPIKey:       envStr("CYNIC_QDRANT_API_KEY", ""),
		QdrantCollection:   envStr("CYNIC_QDRANT_COLLECTION", "cynic_memory"),
		LogLevel:           envStr("CYNIC_LOG_LEVEL", "info"),
		CORSAllowedOrigins: envStrSlice("CYNIC_CORS_ALLOWED_ORIGINS", nil),
	}

	// Integer fields.
	cfg.Port, errs = collectInt(errs, "CYNIC_PORT", 8765)
	cfg.EmbeddingDimensions, errs = collectInt(errs, "CYNIC_EMBEDDING_DIMENSIONS", 1024)
	cfg.OutboxBatchSize, errs = collectInt(errs, "CYNIC_OUTBOX_BATCH_SIZE", 100)
	cfg.EventBufferSize, errs = collectInt(errs, "CYNIC_EVENT_BUFFER_SIZE", 1000)
	cfg.WorkerPoolSize, errs = collectInt(errs, "CYNIC_WORKER_POOL_SIZE", 4)
	cfg.RateLimitBurst, errs = collectInt(errs, "CYNIC_RATE_LIMIT_BURST", 50)

	cfg.RateLimitRPS, errs = collectFloat(errs, "CYNIC_RATE_LIMIT_RPS", 20)

	var maxReqBody int
	maxReqBody, errs = collectInt(errs, "CYNIC_MAX_REQUEST_BODY_BYTES", 1*1024*1024)
	cfg.MaxRequestBodyBytes = int64(maxReqBody)

	// Boolean fields.
	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	// Duration fields.
	cfg.ReadTimeout, errs = collectDuration(errs, "CYNIC_READ_TIMEOUT", 30*time.Second)
	cfg.WriteTimeout, errs = collectDuration(errs, "CYNIC_WRITE_TIMEOUT", 30*time.Second)
	cfg.OutboxPollInterval, errs = collectDuration(errs, "CYNIC_OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.IntegrityProofInterval, errs = collectDuration(errs, "CYNIC_INTEGRITY_PROOF_INTERVAL", 5*time.Minute)
	cfg.EventFlushTimeout, errs = collectDuration(errs, "CYNIC_EVENT_FLUSH_TIMEOUT", 100*time.Millisecond)
	cfg.PerceiveTimeout, errs = collectDuration(errs, "CYNIC_PERCEIVE_TIMEOUT", 800*time.Millisecond)
	cfg.HealthTimeout, errs = collectDuration(errs, "CYNIC_HEALTH_TIMEOUT", 1*time.Second)
	cfg.ExternalModelTimeout, errs = collectDuration(errs, "CYNIC_EXTERNAL_MODEL_TIMEOUT", 8*time.Second)
	cfg.StoreOpTimeout, errs = collectDuration(errs, "CYNIC_STORE_OP_TIMEOUT", 2*time.Second)
	cfg.GuidanceStaleness, errs = collectDuration(errs, "CYNIC_GUIDANCE_STALENESS", 24*time.Hour)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// defaultDBPath returns ~/.cynic/cynic.db, falling back to a relative path
// if the home directory cannot be resolved.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cynic/cynic.db"
	}
	return home + "/.cynic/cynic.db"
}

// collectInt parses an int env var, appending any error to the accumulator.
func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectFloat parses a float env var, appending any error to the accumulator.
func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v, err := envFloat(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectBool parses a bool env var, appending any error to the accumulator.
func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectDuration parses a duration env var, appending any error to the accumulator.
func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	var errs []error

	if c.DBPath == "" {
		errs = append(errs, errors.New("config: CYNIC_DB_PATH is required"))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("config: CYNIC_EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("config: CYNIC_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.New("config: CYNIC_PORT must be between 1 and 65535"))
	}
	if c.WorkerPoolSize <= 0 {
		errs = append(errs, errors.New("config: CYNIC_WORKER_POOL_SIZE must be positive"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("config: CYNIC_READ_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("config: CYNIC_WRITE_TIMEOUT must be positive"))
	}
	if c.EventFlushTimeout <= 0 {
		errs = append(errs, errors.New("config: CYNIC_EVENT_FLUSH_TIMEOUT must be positive"))
	}
	if c.EventBufferSize <= 0 {
		errs = append(errs, errors.New("config: CYNIC_EVENT_BUFFER_SIZE must be positive"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("config: CYNIC_OUTBOX_POLL_INTERVAL must be positive"))
	}
	if c.IntegrityProofInterval <= 0 {
		errs = append(errs, errors.New("config: CYNIC_INTEGRITY_PROOF_INTERVAL must be positive"))
	}
	if c.PerceiveTimeout <= 0 {
		errs = append(errs, errors.New("config: CYNIC_PERCEIVE_TIMEOUT must be positive"))
	}
	if c.HealthTimeout <= 0 {
		errs = append(errs, errors.New("config: CYNIC_HEALTH_TIMEOUT must be positive"))
	}
	if c.ExternalModelTimeout <= 0 {
		errs = append(errs, errors.New("config: CYNIC_EXTERNAL_MODEL_TIMEOUT must be positive"))
	}
	if c.StoreOpTimeout <= 0 {
		errs = append(errs, errors.New("config: CYNIC_STORE_OP_TIMEOUT must be positive"))
	}
	if c.GuidanceStaleness <= 0 {
		errs = append(errs, errors.New("config: CYNIC_GUIDANCE_STALENESS must be positive"))
	}
	if c.RateLimitRPS <= 0 {
		errs = append(errs, errors.New("config: CYNIC_RATE_LIMIT_RPS must be positive"))
	}
	if c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("config: CYNIC_RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

// envStrSlice reads a comma-separated env var into a string slice.
// Returns fallback if the env var is empty or unset.
func envStrSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
