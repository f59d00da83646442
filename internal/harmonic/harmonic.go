// Package harmonic drives the Harmonic Loop: routing explicit and
// implicit feedback into the Learner, sweeping unapplied feedback into
// periodic learning cycles, and promoting or demoting patterns into
// heuristics.
package harmonic

import (
	"context"
	"time"

	"github.com/ashita-ai/akashi/internal/learn"
	"github.com/ashita-ai/akashi/internal/model"
)

// PostToolEventsPerCycle is the number of PostToolUse events between
// automatic learning-cycle sweeps, outside of the session-end trigger.
const PostToolEventsPerCycle = 20

// Store is the persistence surface the Harmonic Loop needs. A subset of
// storage.DB's methods, named here so the loop can be tested against a
// fake.
type Store interface {
	CreateFeedback(ctx context.Context, f model.Feedback) (model.Feedback, error)
	FindUnappliedFeedback(ctx context.Context, limit int) ([]model.Feedback, error)
	MarkFeedbackApplied(ctx context.Context, feedbackIDs []string) error
	CreateLearningCycle(ctx context.Context, c model.LearningCycle) (model.LearningCycle, error)
	GetQTableEntry(ctx context.Context, stateKey, action string) (model.QTableEntry, error)
	UpsertQTableEntry(ctx context.Context, e model.QTableEntry, now time.Time) error
	GetArm(ctx context.Context, armID string) (model.Arm, error)
	UpsertArm(ctx context.Context, a model.Arm, now time.Time) error
	ListActivePatterns(ctx context.Context, patternType string) ([]model.Pattern, error)
	FindSimilarPatternKeys(ctx context.Context, patternType, key string, limit int) ([]string, error)
	MergePattern(ctx context.Context, patternID, parentID string, at time.Time) error
	SetPatternWeightModifier(ctx context.Context, patternID string, weightModifier, thresholdDelta float64) error
	PromotePattern(ctx context.Context, patternID string, at time.Time) error
	DemotePattern(ctx context.Context, patternID string) error
}

// Loop owns the Learner's in-memory state and drives cycles against
// Store. PostToolEventCount is bumped by the caller on every PostToolUse
// observation; CycleDue checks it against PostToolEventsPerCycle.
type Loop struct {
	Store       Store
	Learner     *learn.Learner
	Now         func() time.Time
	Suggestions *SuggestionTracker

	postToolEventCount int
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// RecordPostToolEvent bumps the post-tool event counter used to decide
// when an automatic learning cycle is due.
func (l *Loop) RecordPostToolEvent() {
	l.postToolEventCount++
}

// CycleDue reports whether enough PostToolUse events have accumulated to
// trigger an automatic learning cycle.
func (l *Loop) CycleDue() bool {
	return l.postToolEventCount >= PostToolEventsPerCycle
}

// resetCycleCounter clears the post-tool event counter after a cycle runs.
func (l *Loop) resetCycleCounter() {
	l.postToolEventCount = 0
}
