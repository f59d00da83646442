package learn

import (
	"context"
	"sort"
	"time"

	"github.com/ashita-ai/akashi/internal/model"
)

// mergeSimilarityFloor is the trigram-match floor above which two active
// patterns of the same type are considered merge candidates — applied
// to pattern keys via FTS5 rank rather than cosine similarity over
// embeddings, so it is enforced by the caller's use of
// PatternStore.FindSimilarPatternKeys (limit, not a numeric threshold) rather than
// compared directly in this package.
const mergeSimilarityFloor = 0.8

// Velocity computes a pattern's trend velocity (delta confidence over
// elapsed time) and the resulting TrendDirection, given the pattern's
// confidence before this occurrence.
func Velocity(prevConfidence, newConfidence float64, prevSeen, now time.Time) (float64, model.TrendDirection) {
	elapsed := now.Sub(prevSeen).Hours()
	if elapsed <= 0 {
		elapsed = 1
	}
	delta := newConfidence - prevConfidence
	velocity := delta / elapsed

	switch {
	case velocity > 0.001:
		return velocity, model.TrendUp
	case velocity < -0.001:
		return velocity, model.TrendDown
	default:
		return velocity, model.TrendStable
	}
}

// PatternStore is the subset of storage.DB the merge-candidate scan
// needs: list active patterns, find keys textually similar to one, and
// merge a source pattern into a target.
type PatternStore interface {
	ListActivePatterns(ctx context.Context, patternType string) ([]model.Pattern, error)
	FindSimilarPatternKeys(ctx context.Context, patternType, key string, limit int) ([]string, error)
	MergePattern(ctx context.Context, patternID, parentID string, at time.Time) error
}

// pairSeen tracks (type, key) pairs already evaluated within one merge
// scan, so that when pattern A finds B as a candidate and B also finds A,
// only one merge decision is made per pair.
type pairSeen struct {
	seen map[[2]string]bool
}

func newPairSeen() *pairSeen {
	return &pairSeen{seen: make(map[[2]string]bool)}
}

func normalizePatternPair(a, b string) [2]string {
	if a > b {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

// checkAndMark returns true if the pair was already evaluated this scan.
func (p *pairSeen) checkAndMark(a, b string) bool {
	key := normalizePatternPair(a, b)
	if p.seen[key] {
		return true
	}
	p.seen[key] = true
	return false
}

// MergeCandidates scans all active patterns of patternType for pairs
// whose keys FindSimilarPatternKeys surfaces, and merges the younger
// (lower occurrence_count) pattern into the older on each first-seen
// match. Returns the number of merges performed.
func MergeCandidates(ctx context.Context, store PatternStore, patternType string, now time.Time) (int, error) {
	patterns, err := store.ListActivePatterns(ctx, patternType)
	if err != nil {
		return 0, err
	}
	// Deterministic order so concurrent runs (if ever parallelized) would
	// converge on the same merge direction.
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].PatternKey < patterns[j].PatternKey })

	byKey := make(map[string]model.Pattern, len(patterns))
	for _, p := range patterns {
		byKey[p.PatternKey] = p
	}

	seen := newPairSeen()
	merged := 0
	for _, p := range patterns {
		similar, err := store.FindSimilarPatternKeys(ctx, patternType, p.PatternKey, 5)
		if err != nil {
			return merged, err
		}
		for _, candidateKey := range similar {
			if seen.checkAndMark(p.PatternKey, candidateKey) {
				continue
			}
			cand, ok := byKey[candidateKey]
			if !ok {
				continue
			}
			source, target := p, cand
			if source.OccurrenceCount > target.OccurrenceCount {
				source, target = target, source
			}
			if err := store.MergePattern(ctx, source.PatternID, target.PatternID, now); err != nil {
				return merged, err
			}
			merged++
		}
	}
	return merged, nil
}
