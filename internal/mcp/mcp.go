// Package mcp exposes the kernel's durable memory (Facts, Lessons, Tasks,
// Goals) and recent judgment history through the Model Context Protocol,
// so any MCP-compatible host can recall and extend a user's Cynic state
// without going through the HTTP hook surface.
package mcp

import (
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/akashi/internal/embedding"
	"github.com/ashita-ai/akashi/internal/search"
	"github.com/ashita-ai/akashi/internal/storage"
)

// serverInstructions is sent to every MCP client during the initialize
// handshake, so a connected agent knows the recall/remember workflow
// without per-project configuration.
const serverInstructions = `You have access to the Cynic kernel's durable memory.

WORKFLOW:

1. BEFORE acting on a nontrivial request: call cynic_recall with a subject
   to surface facts and lessons learned from prior sessions. Use them to
   avoid repeating past mistakes.

2. AFTER learning something durable (a user preference, a correction, a
   working approach): call cynic_remember (short, reusable facts) or
   cynic_lesson (a distilled "what worked / what didn't" writeup).

3. Track multi-step work with cynic_task and longer-lived objectives with
   cynic_goal. cynic_recent surfaces the kernel's own recent judgments and
   any pending notifications for this user.

Be selective. Facts and lessons are injected into every future session up
to a budget — store what will matter later, not every detail of this one.`

// Server wraps the MCP server with the kernel's storage layer.
type Server struct {
	mcpServer     *mcpserver.MCPServer
	db            *storage.DB
	userID        string
	logger        *slog.Logger
	recallTracker *recallTracker

	// embedder and searcher are both optional (nil when no embedding
	// provider/Qdrant is configured). cynic_recall falls back to plain
	// substring matching over Facts/Lessons when either is nil; remember/
	// lesson simply skip vector indexing.
	embedder embedding.Provider
	searcher search.Searcher
}

// New creates and configures an MCP server over db, scoped to userID (the
// kernel's single local principal — there is no multi-tenant org concept
// at this layer).
func New(db *storage.DB, userID string, logger *slog.Logger, version string) *Server {
	if userID == "" {
		userID = "local"
	}
	s := &Server{
		db:            db,
		userID:        userID,
		logger:        logger,
		recallTracker: newRecallTracker(time.Hour),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"cynic",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// WithSearch attaches a vector embedding provider and search index,
// enabling cynic_recall to rank by semantic similarity instead of plain
// substring matching, and cynic_remember/cynic_lesson to index new
// memory for later recall. Either argument may be nil, which leaves
// semantic search disabled.
func (s *Server) WithSearch(embedder embedding.Provider, searcher search.Searcher) *Server {
	s.embedder = embedder
	s.searcher = searcher
	return s
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}
