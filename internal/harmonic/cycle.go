package harmonic

import (
	"context"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/learn"
	"github.com/ashita-ai/akashi/internal/model"
)

// FeedbackSweepLimit bounds how much unapplied feedback one learning
// cycle consumes, so a backlog cannot make a single cycle unbounded.
const FeedbackSweepLimit = 500

// RunLearningCycle sweeps unapplied feedback in FIFO order, applies each
// to the Q-Table and its arm, merges similar patterns, recomputes each
// active pattern's weight_modifier and threshold_delta from its trend,
// sweeps patterns for promotion and demotion, and writes one LearningCycle
// audit row. It does not change the Judge's per-axiom WeightModifiers. Safe to call with no
// unapplied feedback (writes a zero-delta cycle row).
func (l *Loop) RunLearningCycle(ctx context.Context, learningRate float64) (model.LearningCycle, error) {
	start := l.now()

	feedback, err := l.Store.FindUnappliedFeedback(ctx, FeedbackSweepLimit)
	if err != nil {
		return model.LearningCycle{}, fmt.Errorf("harmonic: find unapplied feedback: %w", err)
	}

	var appliedIDs []string
	var weightDeltaSum, thresholdDeltaSum float64
	weightUpdates := 0

	for _, f := range feedback {
		if f.StateKey != nil && f.Arm != nil {
			entry, err := l.Store.GetQTableEntry(ctx, *f.StateKey, *f.Arm)
			if err != nil {
				return model.LearningCycle{}, fmt.Errorf("harmonic: load qtable entry: %w", err)
			}
			// Each judgment is a one-shot (state, action) choice, not a multi-step
			// trajectory, so the bootstrap target is the state's own current
			// value rather than a successor state's.
			nextMax := l.Learner.QTable.Value(*f.StateKey, *f.Arm)
			updated := l.Learner.QTable.Update(*f.StateKey, *f.Arm, f.Reward, learningRate, nextMax)
			if updated.Value != entry.Value {
				weightDeltaSum += updated.Value - entry.Value
				weightUpdates++
			}
			if err := l.Store.UpsertQTableEntry(ctx, updated, start); err != nil {
				return model.LearningCycle{}, fmt.Errorf("harmonic: persist qtable entry: %w", err)
			}

			arm := l.Learner.Sampler.Record(model.ArmHeuristic, *f.Arm, f.RewardSign() >= 0)
			if err := l.Store.UpsertArm(ctx, arm, start); err != nil {
				return model.LearningCycle{}, fmt.Errorf("harmonic: persist arm: %w", err)
			}
		}
		appliedIDs = append(appliedIDs, f.FeedbackID)
	}

	if len(appliedIDs) > 0 {
		if err := l.Store.MarkFeedbackApplied(ctx, appliedIDs); err != nil {
			return model.LearningCycle{}, fmt.Errorf("harmonic: mark feedback applied: %w", err)
		}
	}

	merged, err := l.mergePatterns(ctx, start)
	if err != nil {
		return model.LearningCycle{}, fmt.Errorf("harmonic: merge patterns: %w", err)
	}

	patternsUpdated, thresholdDeltaTotal, promotions, demotions, err := l.sweepPatterns(ctx, start)
	if err != nil {
		return model.LearningCycle{}, fmt.Errorf("harmonic: sweep patterns: %w", err)
	}
	thresholdDeltaSum += thresholdDeltaTotal

	avgWeightDelta := 0.0
	if weightUpdates > 0 {
		avgWeightDelta = weightDeltaSum / float64(weightUpdates)
	}
	avgThresholdDelta := 0.0
	if patternsUpdated > 0 {
		avgThresholdDelta = thresholdDeltaSum / float64(patternsUpdated)
	}

	cycle := model.LearningCycle{
		FeedbackApplied:   len(appliedIDs),
		PatternsUpdated:   patternsUpdated,
		PatternsMerged:    merged,
		WeightsUpdated:    weightUpdates,
		ThresholdsUpdated: patternsUpdated,
		AvgWeightDelta:    avgWeightDelta,
		AvgThresholdDelta: avgThresholdDelta,
		Promotions:        promotions,
		Demotions:         demotions,
		DurationMS:        l.now().Sub(start).Milliseconds(),
		CreatedAt:         start,
	}
	created, err := l.Store.CreateLearningCycle(ctx, cycle)
	if err != nil {
		return model.LearningCycle{}, fmt.Errorf("harmonic: write learning cycle: %w", err)
	}

	l.resetCycleCounter()
	return created, nil
}

// mergePatterns runs the merge-candidate scan once per distinct pattern
// type present, since similarity search is scoped within a type. Returns
// the total number of merges performed across all types.
func (l *Loop) mergePatterns(ctx context.Context, now time.Time) (int, error) {
	all, err := l.Store.ListActivePatterns(ctx, "")
	if err != nil {
		return 0, err
	}
	types := make(map[string]bool)
	for _, p := range all {
		types[p.PatternType] = true
	}

	total := 0
	for patternType := range types {
		n, err := learn.MergeCandidates(ctx, l.Store, patternType, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// weightModifierStep and thresholdDeltaStep bound how far one learning
// cycle may move a pattern's weight_modifier / threshold_delta, so a
// single noisy cycle cannot whipsaw the Judge's weighting.
const (
	weightModifierStep = 0.05
	thresholdDeltaStep = 1.0
)

// sweepPatterns recomputes weight_modifier and threshold_delta for every
// active pattern from its trend, and promotes/demotes per the outcome
// ratio floors. Returns (patternsUpdated, summedThresholdDelta, promotions, demotions).
func (l *Loop) sweepPatterns(ctx context.Context, now time.Time) (int, float64, int, int, error) {
	patterns, err := l.Store.ListActivePatterns(ctx, "")
	if err != nil {
		return 0, 0, 0, 0, err
	}

	updated := 0
	var thresholdDeltaSum float64
	promotions, demotions := 0, 0

	for _, p := range patterns {
		weightStep := weightModifierStep
		thresholdStep := thresholdDeltaStep
		switch p.TrendDirection {
		case model.TrendUp:
			// no-op: step signs below already favor up-trending patterns
		case model.TrendDown:
			weightStep, thresholdStep = -weightStep, -thresholdStep
		default:
			weightStep, thresholdStep = 0, 0
		}

		newWeight := model.ClampWeightModifier(p.WeightModifier + weightStep)
		newThreshold := p.ThresholdDelta + thresholdStep
		if newWeight != p.WeightModifier || newThreshold != p.ThresholdDelta {
			if err := l.Store.SetPatternWeightModifier(ctx, p.PatternID, newWeight, newThreshold); err != nil {
				return updated, thresholdDeltaSum, promotions, demotions, err
			}
			thresholdDeltaSum += newThreshold - p.ThresholdDelta
			updated++
		}

		arm, err := l.Store.GetArm(ctx, string(model.ArmPattern)+":"+p.PatternKey)
		if err != nil {
			return updated, thresholdDeltaSum, promotions, demotions, err
		}
		outcomeRatio := arm.ExpectedValue()

		switch {
		case !p.IsHeuristic() && p.EligibleForPromotion() && outcomeRatio >= model.PromotionOutcomeRatioFloor:
			if err := l.Store.PromotePattern(ctx, p.PatternID, now); err != nil {
				return updated, thresholdDeltaSum, promotions, demotions, err
			}
			promotions++
		case p.IsHeuristic() && outcomeRatio < model.DemotionOutcomeRatioCeiling:
			if err := l.Store.DemotePattern(ctx, p.PatternID); err != nil {
				return updated, thresholdDeltaSum, promotions, demotions, err
			}
			demotions++
		}
	}

	return updated, thresholdDeltaSum, promotions, demotions, nil
}
