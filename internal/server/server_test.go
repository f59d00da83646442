package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/chain"
	"github.com/ashita-ai/akashi/internal/harmonic"
	"github.com/ashita-ai/akashi/internal/judge"
	"github.com/ashita-ai/akashi/internal/learn"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/storage"
	"github.com/ashita-ai/akashi/migrations"
)

func newTestServer(t *testing.T, token string) (*Server, *storage.DB) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()
	db, err := storage.New(context.Background(), filepath.Join(dir, "cynic.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), migrations.FS))

	j := &judge.Judge{Patterns: db, RiskValidator: judge.NoopRiskValidator{}}
	c := chain.New(db, logger)
	loop := &harmonic.Loop{Store: db, Learner: learn.New()}

	srv, err := New(Config{
		DB:                   db,
		Judge:                j,
		Chain:                c,
		Loop:                 loop,
		Logger:               logger,
		Addr:                 "127.0.0.1:0",
		KernelToken:          token,
		GuidancePath:         filepath.Join(dir, "guidance.json"),
		GuidanceStaleness:    time.Hour,
		PerceiveTimeout:      2 * time.Second,
		HealthTimeout:        time.Second,
		WorkerPoolSize:       2,
	})
	require.NoError(t, err)
	return srv, db
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlePerceive_RespondsSynchronouslyAndPersistsAsync(t *testing.T) {
	srv, db := newTestServer(t, "")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/perceive", model.RawHookEvent{
		Source: model.SourcePostToolUse,
		Data:   map[string]any{"tool_name": "Edit", "file_path": "main.go"},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Eventually(t, func() bool {
		found, err := db.FindJudgments(context.Background(), storage.FindJudgmentsOpts{Limit: 10})
		return err == nil && len(found) == 1
	}, time.Second, 10*time.Millisecond, "judgment should be persisted asynchronously")
}

func TestHandlePerceive_RejectsMissingSource(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/perceive", model.RawHookEvent{
		Data: map[string]any{},
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleFeedback_ExplicitRatingAccepted(t *testing.T) {
	srv, db := newTestServer(t, "")

	jd, err := db.CreateJudgment(context.Background(), model.Judgment{
		ItemType: "code_change", ItemContent: "c", ItemHash: "h1",
		Verdict: model.VerdictHowl, AxiomScores: map[model.Axiom]float64{},
	})
	require.NoError(t, err)

	rating := 5
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/feedback", map[string]any{
		"judgment_id": jd.JudgmentID,
		"rating":      rating,
	}, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleFeedback_RejectsEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/feedback", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth_AlwaysReachableWithoutToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret-token")
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestAuthMiddleware_RejectsMissingOrWrongToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret-token")

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/stats/cycles", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/stats/cycles", nil, "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/stats/cycles", nil, "secret-token")
	assert.NotEqual(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleGuidance_NotFoundBeforeAnyJudgment(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/guidance", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStatsJudgments_EmptySessionReturnsZeroStats(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/stats/judgments?session_id=none", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
