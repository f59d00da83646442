package learn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/model"
)

func TestVelocity_ClassifiesDirection(t *testing.T) {
	now := time.Now()
	prev := now.Add(-time.Hour)

	_, dir := Velocity(0.2, 0.5, prev, now)
	assert.Equal(t, model.TrendUp, dir)

	_, dir = Velocity(0.5, 0.2, prev, now)
	assert.Equal(t, model.TrendDown, dir)

	_, dir = Velocity(0.5, 0.5, prev, now)
	assert.Equal(t, model.TrendStable, dir)
}

type fakePatternStore struct {
	patterns []model.Pattern
	similar  map[string][]string
	merged   map[string]string
}

func (f *fakePatternStore) ListActivePatterns(ctx context.Context, patternType string) ([]model.Pattern, error) {
	return f.patterns, nil
}

func (f *fakePatternStore) FindSimilarPatternKeys(ctx context.Context, patternType, key string, limit int) ([]string, error) {
	return f.similar[key], nil
}

func (f *fakePatternStore) MergePattern(ctx context.Context, patternID, parentID string, at time.Time) error {
	if f.merged == nil {
		f.merged = make(map[string]string)
	}
	f.merged[patternID] = parentID
	return nil
}

func TestMergeCandidates_MergesYoungerIntoOlder(t *testing.T) {
	store := &fakePatternStore{
		patterns: []model.Pattern{
			{PatternID: "pat_a", PatternKey: "go:nil_deref", OccurrenceCount: 20},
			{PatternID: "pat_b", PatternKey: "go:nil_dereference", OccurrenceCount: 3},
		},
		similar: map[string][]string{
			"go:nil_deref":       {"go:nil_dereference"},
			"go:nil_dereference": {"go:nil_deref"},
		},
	}

	n, err := MergeCandidates(context.Background(), store, "error", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "pat_a", store.merged["pat_b"])
}

func TestMergeCandidates_NoDuplicateMergeForMutualCandidates(t *testing.T) {
	store := &fakePatternStore{
		patterns: []model.Pattern{
			{PatternID: "pat_a", PatternKey: "a", OccurrenceCount: 5},
			{PatternID: "pat_b", PatternKey: "b", OccurrenceCount: 5},
		},
		similar: map[string][]string{
			"a": {"b"},
			"b": {"a"},
		},
	}
	n, err := MergeCandidates(context.Background(), store, "t", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "mutual candidates must only merge once")
}
