package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/akashi/internal/chain"
	"github.com/ashita-ai/akashi/internal/config"
	"github.com/ashita-ai/akashi/internal/embedding"
	"github.com/ashita-ai/akashi/internal/harmonic"
	"github.com/ashita-ai/akashi/internal/judge"
	"github.com/ashita-ai/akashi/internal/learn"
	"github.com/ashita-ai/akashi/internal/mcp"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/orchestrator"
	"github.com/ashita-ai/akashi/internal/search"
	"github.com/ashita-ai/akashi/internal/server"
	"github.com/ashita-ai/akashi/internal/storage"
	"github.com/ashita-ai/akashi/internal/telemetry"
	"github.com/ashita-ai/akashi/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

// localUserID is the kernel's single local principal. There is no
// multi-tenant org concept at this layer (see internal/mcp).
const localUserID = "local"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := parseLogLevel(os.Getenv("CYNIC_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production deployments won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("cynic kernel starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	stateDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	db, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Boot selects COLD/WARM/SAFE and assembles the session's injected
	// context. The daemon's own process lifetime is the "session" here:
	// Boot runs once at startup, Sleep once at graceful shutdown.
	orch := orchestrator.New(db, logger)
	orch.StateDir = stateDir
	sess, err := orch.Boot(ctx, localUserID)
	if err != nil {
		return fmt.Errorf("orchestrator: boot: %w", err)
	}
	logger.Info("session booted",
		"mode", sess.Mode, "tier", sess.Tier, "degraded", sess.Degraded,
		"facts", len(sess.Facts), "patterns", len(sess.Patterns),
		"tasks", len(sess.Tasks), "goals", len(sess.Goals),
		"notifications", len(sess.Notifications))

	learner := newLearner(ctx, db, logger)

	loop := &harmonic.Loop{Store: db, Learner: learner, Suggestions: harmonic.NewSuggestionTracker(0)}

	j := &judge.Judge{Patterns: db}

	c := chain.New(db, logger)

	// Optional Qdrant-backed Fact/Lesson search, disabled (nil Searcher)
	// when no CYNIC_QDRANT_URL is configured.
	var searcher search.Searcher
	if cfg.QdrantURL != "" {
		qdrantIndex, err := search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		defer func() { _ = qdrantIndex.Close() }()
		if err := qdrantIndex.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}
		searcher = qdrantIndex
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no CYNIC_QDRANT_URL)")
	}

	embedder := newEmbeddingProvider(cfg, logger)

	mcpSrv := mcp.New(db, localUserID, logger, version).WithSearch(embedder, searcher)

	guidancePath := filepath.Join(stateDir, "guidance.json")

	srv, err := server.New(server.Config{
		DB:                   db,
		Judge:                j,
		Chain:                c,
		Loop:                 loop,
		Logger:               logger,
		MCPServer:            mcpSrv.MCPServer(),
		Addr:                 fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		KernelToken:          cfg.KernelToken,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		RateLimitRPS:         cfg.RateLimitRPS,
		RateLimitBurst:       cfg.RateLimitBurst,
		ReadTimeout:          cfg.ReadTimeout,
		WriteTimeout:         cfg.WriteTimeout,
		PerceiveTimeout:      cfg.PerceiveTimeout,
		HealthTimeout:        cfg.HealthTimeout,
		ExternalModelTimeout: cfg.ExternalModelTimeout,
		WorkerPoolSize:       cfg.WorkerPoolSize,
		GuidancePath:         guidancePath,
		GuidanceStaleness:    cfg.GuidanceStaleness,
	})
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	go learningCycleLoop(ctx, loop, db, logger)
	go chainSealLoop(ctx, c, logger)
	go integrityProofLoop(ctx, c, logger, cfg.IntegrityProofInterval)
	go escoreRetentionLoop(ctx, db, logger)
	go suggestionSweepLoop(ctx, loop, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("cynic kernel shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	sleepCtx, sleepCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sleepCancel()
	handoff := model.Handoff{
		SessionEndTime: time.Now().UTC(),
		DurationMS:     time.Since(sess.StartedAt).Milliseconds(),
		PromptCount:    0,
		Summary:        fmt.Sprintf("%s session over %s", sess.Mode, time.Since(sess.StartedAt).Round(time.Second)),
	}
	if err := orch.Sleep(sleepCtx, sess, handoff, nil); err != nil {
		logger.Error("orchestrator sleep error", "error", err)
	}

	logger.Info("cynic kernel stopped")
	return nil
}

// newLearner rebuilds the Learner's in-memory Q-Table and Thompson
// posteriors from their last persisted state, so a WARM or COLD restart
// picks up exactly where the previous process left off.
func newLearner(ctx context.Context, db *storage.DB, logger *slog.Logger) *learn.Learner {
	l := learn.New()

	entries, err := db.ListAllQTableEntries(ctx)
	if err != nil {
		logger.Warn("learner: failed to restore q-table, starting empty", "error", err)
	} else {
		l.QTable.Restore(entries)
	}

	for _, kind := range []model.ArmKind{model.ArmPattern, model.ArmHeuristic, model.ArmDog} {
		arms, err := db.ListArms(ctx, kind)
		if err != nil {
			logger.Warn("learner: failed to restore arms", "kind", kind, "error", err)
			continue
		}
		l.Sampler.Restore(arms)
	}

	return l
}

// newEmbeddingProvider selects an embedding provider based on
// CYNIC_EMBEDDING_PROVIDER ("ollama", "openai", "noop", or "auto").
// Auto mode tries Ollama first (embeddings stay on-device, no external API
// cost), falls back to OpenAI if a key is present, else noop.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when CYNIC_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		if err != nil {
			logger.Error("openai provider init failed", "error", err)
			return embedding.NewNoopProvider(dims)
		}
		return p

	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)

	case "noop":
		logger.Info("embedding provider: noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)

	default: // "auto"
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
			if err != nil {
				logger.Error("openai provider init failed", "error", err)
				return embedding.NewNoopProvider(dims)
			}
			return p
		}
		logger.Warn("no embedding provider available, using noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

// ollamaReachable checks whether a local Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
