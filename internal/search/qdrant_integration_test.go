package search

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	tcqdrant "github.com/testcontainers/testcontainers-go/modules/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain spins up a single ephemeral Qdrant container shared by every
// test in this file. It is the only container-backed test in this tree;
// storage tests open a temporary SQLite file instead.
var sharedIndex *QdrantIndex

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcqdrant.Run(ctx, "qdrant/qdrant:v1.12.4")
	if err != nil {
		// No local Docker daemon: skip the whole suite rather than fail CI
		// environments that don't run containers.
		os.Exit(0)
	}
	defer func() { _ = container.Terminate(ctx) }()

	grpcEndpoint, err := container.GRPCEndpoint(ctx)
	if err != nil {
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sharedIndex, err = NewQdrantIndex(QdrantConfig{
		URL:        "http://" + grpcEndpoint,
		Collection: "kernel_memory_test",
		Dims:       4,
	}, logger)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = sharedIndex.Close() }()

	if err := sharedIndex.EnsureCollection(ctx); err != nil {
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func TestQdrantIndex_Healthy(t *testing.T) {
	if sharedIndex == nil {
		t.Skip("no qdrant container available")
	}
	require.NoError(t, sharedIndex.Healthy(context.Background()))
}

func TestQdrantIndex_UpsertSearchDeleteRoundTrip(t *testing.T) {
	if sharedIndex == nil {
		t.Skip("no qdrant container available")
	}
	ctx := context.Background()

	points := []Point{
		{ID: "fct_aaa", UserID: "user-1", Kind: ItemKindFact, Embedding: []float32{1, 0, 0, 0}},
		{ID: "fct_bbb", UserID: "user-1", Kind: ItemKindFact, Embedding: []float32{0, 1, 0, 0}},
		{ID: "fct_ccc", UserID: "user-2", Kind: ItemKindFact, Embedding: []float32{1, 0, 0, 0}},
	}
	require.NoError(t, sharedIndex.Upsert(ctx, points))

	results, err := sharedIndex.Search(ctx, "user-1", []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, "fct_ccc", r.ItemID, "search must not leak another user's points")
	}

	var foundAAA bool
	for _, r := range results {
		if r.ItemID == "fct_aaa" {
			foundAAA = true
		}
	}
	assert.True(t, foundAAA, "closest point for user-1 should be fct_aaa")

	require.NoError(t, sharedIndex.DeleteByIDs(ctx, []string{"fct_aaa", "fct_bbb"}))

	results, err = sharedIndex.Search(ctx, "user-1", []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQdrantIndex_EnsureCollectionIsIdempotent(t *testing.T) {
	if sharedIndex == nil {
		t.Skip("no qdrant container available")
	}
	require.NoError(t, sharedIndex.EnsureCollection(context.Background()))
}
