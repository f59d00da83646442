package mcp

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/storage"
	"github.com/ashita-ai/akashi/migrations"
)

const testUserID = "test-user"

// newTestServer opens a fresh SQLite-backed kernel store in a temp
// directory and wraps it in an MCP Server, mirroring how cmd/cynicd
// boots the kernel.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cynic.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := storage.New(context.Background(), path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.RunMigrations(context.Background(), migrations.FS))

	return New(db, testUserID, logger, "test")
}
