// Package server implements the kernel's loopback HTTP service: the only
// network-facing surface of the Cynic kernel. Hooks POST observations to
// /perceive and read back guidance; /feedback closes the loop; /health and
// /stats expose operational state.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/akashi/internal/auth"
	"github.com/ashita-ai/akashi/internal/chain"
	"github.com/ashita-ai/akashi/internal/harmonic"
	"github.com/ashita-ai/akashi/internal/judge"
	"github.com/ashita-ai/akashi/internal/ratelimit"
	"github.com/ashita-ai/akashi/internal/storage"
)

// Server is the kernel's HTTP server. It binds loopback-only by
// convention of the address passed to New's http.Server — Start does not
// enforce this itself, since tests dial 127.0.0.1 explicitly.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
	limiter    ratelimit.Limiter
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config holds all dependencies and tuning knobs for a Server.
type Config struct {
	// Required dependencies.
	DB     *storage.DB
	Judge  *judge.Judge
	Chain  *chain.Chain
	Loop   *harmonic.Loop
	Logger *slog.Logger

	// MCPServer, if non-nil, is mounted at /mcp over the StreamableHTTP
	// transport, alongside the hook-facing /perceive surface — so an
	// MCP-compatible host can recall and extend kernel memory directly.
	MCPServer *mcpserver.MCPServer

	// Addr is the bind address, e.g. "127.0.0.1:8765".
	Addr string

	// KernelToken, if non-empty, requires a matching bearer token on every
	// request except /health. Empty disables the auth middleware — the
	// expected configuration when the kernel is loopback-only.
	KernelToken string

	CORSAllowedOrigins []string

	// RateLimitRPS/RateLimitBurst configure the token bucket guarding
	// every route, keyed by hook source. Either <= 0 disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PerceiveTimeout      time.Duration
	HealthTimeout        time.Duration
	ExternalModelTimeout time.Duration

	WorkerPoolSize    int
	GuidancePath      string // path to write guidance.json; empty disables writing.
	GuidanceStaleness time.Duration
}

// New builds a Server with the full middleware chain wired: recovery at
// the outermost layer (catches panics from everything inside, including
// later middleware), then rate limiting, auth, logging, tracing, request
// ID, security headers, and CORS, with the mux innermost. Matches the
// onion order a request actually traverses: outer middleware sees the
// request first and the response last.
func New(cfg Config) (*Server, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("server: DB is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("server: Judge is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}

	pool := newWorkerPool(cfg.WorkerPoolSize, cfg.Logger)

	h := &Handlers{
		db:                cfg.DB,
		judge:             cfg.Judge,
		chain:             cfg.Chain,
		loop:              cfg.Loop,
		logger:            cfg.Logger,
		pool:              pool,
		guidancePath:      cfg.GuidancePath,
		guidanceStaleness: cfg.GuidanceStaleness,
		perceiveTimeout:   cfg.PerceiveTimeout,
		healthTimeout:     cfg.HealthTimeout,
		startedAt:         time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /perceive", h.HandlePerceive)
	mux.HandleFunc("POST /feedback", h.HandleFeedback)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /guidance", h.HandleGuidance)
	mux.HandleFunc("GET /stats/judgments", h.HandleStatsJudgments)
	mux.HandleFunc("GET /stats/cycles", h.HandleStatsCycles)

	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	rateLimitRule := ratelimit.Rule{Name: "perceive", RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}

	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSAllowedOrigins)(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = tracingMiddleware(handler)
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = authMiddleware(auth.NewGuard(cfg.KernelToken))(handler)
	handler = ratelimit.Middleware(limiter, rateLimitRule, ratelimit.SourceKeyFunc, requestIDHeader)(handler)
	handler = recoveryMiddleware(cfg.Logger)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
		limiter:  limiter,
	}, nil
}

// Start begins serving and blocks until the server stops or an error
// occurs other than http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("server: listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen and serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and drains the worker pool.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if s.limiter != nil {
		_ = s.limiter.Close()
	}
	s.handlers.pool.Close()
	return nil
}
