// Package search provides optional vector similarity search over a user's
// Lessons and Facts, backed by Qdrant. When CYNIC_QDRANT_URL is unset the
// kernel has no Searcher configured and cynic_recall falls back to the
// substring matching already built into internal/mcp.
package search

import (
	"context"
	"math"
	"sort"
	"time"
)

// Result holds a memory item's ID and its raw similarity score from the
// search index. The caller hydrates the full Fact or Lesson from storage
// (source of truth).
type Result struct {
	ItemID string
	Kind   ItemKind
	Score  float32
}

// ItemKind distinguishes the memory item families indexed in the same
// Qdrant collection.
type ItemKind string

const (
	ItemKindFact   ItemKind = "fact"
	ItemKindLesson ItemKind = "lesson"
	ItemKindMemory ItemKind = "memory"
)

// Searcher is the interface for vector search indexes. Implementations
// must be safe for concurrent use.
type Searcher interface {
	// Search returns item IDs matching the query vector, scoped to userID.
	Search(ctx context.Context, userID string, embedding []float32, limit int) ([]Result, error)
	// Upsert indexes or re-indexes a batch of points.
	Upsert(ctx context.Context, points []Point) error
	// Healthy returns nil if the search index is reachable.
	Healthy(ctx context.Context) error
}

// Scored pairs a Result with the fields ReScore needs to weight it.
type Scored struct {
	Result
	Confidence float64
	Relevance  float64
	CreatedAt  time.Time
}

// ReScore adjusts raw similarity scores by confidence, stored relevance,
// and recency, sorts descending, and truncates to limit. Grounded on the
// same shape as a retrieval-score ranking: similarity carries most of the
// weight, confidence/relevance nudge it, and older memories decay.
func ReScore(scored []Scored, limit int) []Scored {
	now := time.Now()
	out := make([]Scored, len(scored))
	copy(out, scored)

	for i := range out {
		ageDays := math.Max(0, now.Sub(out[i].CreatedAt).Hours()/24.0)
		recencyDecay := 1.0 / (1.0 + ageDays/90.0)
		weight := 0.5 + 0.25*out[i].Confidence + 0.25*out[i].Relevance
		out[i].Score = float32(math.Min(float64(out[i].Score)*weight*recencyDecay, 1.0))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
