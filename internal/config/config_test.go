package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvStrSliceParsesAndTrims(t *testing.T) {
	t.Setenv("TEST_SLICE", "https://a.example.com, https://b.example.com")
	got := envStrSlice("TEST_SLICE", nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(got), got)
	}
	if got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("unexpected entries: %v", got)
	}
}

func TestEnvStrSliceFallback(t *testing.T) {
	got := envStrSlice("TEST_SLICE_MISSING", []string{"x"})
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected fallback [x], got %v", got)
	}
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	t.Setenv("CYNIC_PORT", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid CYNIC_PORT")
	}
	if got := err.Error(); !contains(got, "CYNIC_PORT") || !contains(got, "abc") {
		t.Fatalf("error should mention CYNIC_PORT and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("CYNIC_PORT", "abc")
	t.Setenv("CYNIC_EMBEDDING_DIMENSIONS", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "CYNIC_PORT") {
		t.Fatalf("error should mention CYNIC_PORT, got: %s", got)
	}
	if !contains(got, "CYNIC_EMBEDDING_DIMENSIONS") {
		t.Fatalf("error should mention CYNIC_EMBEDDING_DIMENSIONS, got: %s", got)
	}
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	t.Setenv("CYNIC_PORT", "70000")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail for out-of-range port")
	}
	if !contains(err.Error(), "CYNIC_PORT must be between") {
		t.Fatalf("unexpected error: %s", err.Error())
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8765 {
		t.Fatalf("expected default port 8765, got %d", cfg.Port)
	}
	if cfg.KernelToken != "" {
		t.Fatal("expected KernelToken empty by default")
	}
	if cfg.WorkerPoolSize != 4 {
		t.Fatalf("expected default WorkerPoolSize 4, got %d", cfg.WorkerPoolSize)
	}
	if cfg.GuidanceStaleness != 24*time.Hour {
		t.Fatalf("expected default GuidanceStaleness 24h, got %s", cfg.GuidanceStaleness)
	}
	if cfg.PerceiveTimeout != 800*time.Millisecond {
		t.Fatalf("expected default PerceiveTimeout 800ms, got %s", cfg.PerceiveTimeout)
	}
	if cfg.HealthTimeout != 1*time.Second {
		t.Fatalf("expected default HealthTimeout 1s, got %s", cfg.HealthTimeout)
	}
	if cfg.ExternalModelTimeout != 8*time.Second {
		t.Fatalf("expected default ExternalModelTimeout 8s, got %s", cfg.ExternalModelTimeout)
	}
	if cfg.StoreOpTimeout != 2*time.Second {
		t.Fatalf("expected default StoreOpTimeout 2s, got %s", cfg.StoreOpTimeout)
	}
	if cfg.DBPath == "" {
		t.Fatal("expected a non-empty default DBPath")
	}
	if cfg.RateLimitRPS != 20 {
		t.Fatalf("expected default RateLimitRPS 20, got %v", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst != 50 {
		t.Fatalf("expected default RateLimitBurst 50, got %d", cfg.RateLimitBurst)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestLoad_KernelTokenOptional(t *testing.T) {
	t.Run("empty by default disables auth", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed, got: %v", err)
		}
		if cfg.KernelToken != "" {
			t.Fatal("expected empty KernelToken by default")
		}
	})

	t.Run("set token is honored", func(t *testing.T) {
		t.Setenv("CYNIC_KERNEL_TOKEN", "s3cr3t")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed, got: %v", err)
		}
		if cfg.KernelToken != "s3cr3t" {
			t.Fatalf("expected KernelToken %q, got %q", "s3cr3t", cfg.KernelToken)
		}
	})
}

func TestLoad_OTELEndpointParsing(t *testing.T) {
	endpoint := "https://otel.example.com:4317"
	t.Setenv("CYNIC_OTEL_ENDPOINT", endpoint)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.OTELEndpoint != endpoint {
		t.Fatalf("expected OTELEndpoint %q, got %q", endpoint, cfg.OTELEndpoint)
	}
}

func TestLoad_EmbeddingProviderSelection(t *testing.T) {
	t.Setenv("CYNIC_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", "http://localhost:11434")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.EmbeddingProvider != "ollama" {
		t.Fatalf("expected EmbeddingProvider %q, got %q", "ollama", cfg.EmbeddingProvider)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Fatalf("expected OllamaURL %q, got %q", "http://localhost:11434", cfg.OllamaURL)
	}
}

func TestLoad_QdrantURLValidation(t *testing.T) {
	t.Run("explicit URL", func(t *testing.T) {
		qdrantURL := "https://qdrant.example.com:6334"
		t.Setenv("CYNIC_QDRANT_URL", qdrantURL)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed, got: %v", err)
		}
		if cfg.QdrantURL != qdrantURL {
			t.Fatalf("expected QdrantURL %q, got %q", qdrantURL, cfg.QdrantURL)
		}
	})

	t.Run("empty default", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed, got: %v", err)
		}
		if cfg.QdrantURL != "" {
			t.Fatalf("expected empty QdrantURL by default, got %q", cfg.QdrantURL)
		}
	})
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("CYNIC_PORT", "9090")
	t.Setenv("CYNIC_DB_PATH", "/tmp/cynic-test.db")
	t.Setenv("CYNIC_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("OTEL_SERVICE_NAME", "cynic-test")
	t.Setenv("CYNIC_LOG_LEVEL", "debug")
	t.Setenv("CYNIC_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("CYNIC_WORKER_POOL_SIZE", "8")
	t.Setenv("CYNIC_PERCEIVE_TIMEOUT", "500ms")
	t.Setenv("CYNIC_HEALTH_TIMEOUT", "2s")
	t.Setenv("CYNIC_EXTERNAL_MODEL_TIMEOUT", "15s")
	t.Setenv("CYNIC_STORE_OP_TIMEOUT", "3s")
	t.Setenv("CYNIC_GUIDANCE_STALENESS", "12h")
	t.Setenv("CYNIC_INTEGRITY_PROOF_INTERVAL", "10m")
	t.Setenv("CYNIC_EVENT_BUFFER_SIZE", "2000")
	t.Setenv("CYNIC_RATE_LIMIT_RPS", "5.5")
	t.Setenv("CYNIC_RATE_LIMIT_BURST", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}

	if cfg.Port != 9090 {
		t.Fatalf("expected Port 9090, got %d", cfg.Port)
	}
	if cfg.DBPath != "/tmp/cynic-test.db" {
		t.Fatalf("expected DBPath %q, got %q", "/tmp/cynic-test.db", cfg.DBPath)
	}
	if cfg.EmbeddingDimensions != 768 {
		t.Fatalf("expected EmbeddingDimensions 768, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.ServiceName != "cynic-test" {
		t.Fatalf("expected ServiceName %q, got %q", "cynic-test", cfg.ServiceName)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel %q, got %q", "debug", cfg.LogLevel)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %d", len(cfg.CORSAllowedOrigins))
	}
	if cfg.CORSAllowedOrigins[0] != "https://a.example.com" {
		t.Fatalf("expected first CORS origin %q, got %q", "https://a.example.com", cfg.CORSAllowedOrigins[0])
	}
	if cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("expected second CORS origin %q, got %q", "https://b.example.com", cfg.CORSAllowedOrigins[1])
	}
	if cfg.WorkerPoolSize != 8 {
		t.Fatalf("expected WorkerPoolSize 8, got %d", cfg.WorkerPoolSize)
	}
	if cfg.PerceiveTimeout != 500*time.Millisecond {
		t.Fatalf("expected PerceiveTimeout 500ms, got %s", cfg.PerceiveTimeout)
	}
	if cfg.HealthTimeout != 2*time.Second {
		t.Fatalf("expected HealthTimeout 2s, got %s", cfg.HealthTimeout)
	}
	if cfg.ExternalModelTimeout != 15*time.Second {
		t.Fatalf("expected ExternalModelTimeout 15s, got %s", cfg.ExternalModelTimeout)
	}
	if cfg.StoreOpTimeout != 3*time.Second {
		t.Fatalf("expected StoreOpTimeout 3s, got %s", cfg.StoreOpTimeout)
	}
	if cfg.GuidanceStaleness != 12*time.Hour {
		t.Fatalf("expected GuidanceStaleness 12h, got %s", cfg.GuidanceStaleness)
	}
	if cfg.IntegrityProofInterval != 10*time.Minute {
		t.Fatalf("expected IntegrityProofInterval 10m, got %s", cfg.IntegrityProofInterval)
	}
	if cfg.EventBufferSize != 2000 {
		t.Fatalf("expected EventBufferSize 2000, got %d", cfg.EventBufferSize)
	}
	if cfg.RateLimitRPS != 5.5 {
		t.Fatalf("expected RateLimitRPS 5.5, got %v", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst != 10 {
		t.Fatalf("expected RateLimitBurst 10, got %d", cfg.RateLimitBurst)
	}
}
