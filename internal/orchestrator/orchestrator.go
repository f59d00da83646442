// Package orchestrator drives session lifecycle for the Cynic kernel:
// boot mode selection (COLD/WARM/SAFE), experience-based context
// compression, and the sleep-time aggregation that prepares the next
// awakening's handoff. Grounded on the startup sequencing of a
// single-process main (config, storage, services, background loops,
// graceful shutdown) pulled up one level into a reusable Boot/Sleep pair.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/storage"
)

// MaxWarmPatterns caps how many patterns a WARM boot loads, ranked by
// confidence then recency.
const MaxWarmPatterns = 100

// Store is the persistence surface the orchestrator needs. A subset of
// storage.DB's methods, named here so Boot/Sleep can be tested against a
// fake without a real SQLite file.
type Store interface {
	Ping(ctx context.Context) error
	CountSessions(ctx context.Context, userID string) (int, error)
	GetUserLearningProfile(ctx context.Context, userID string) (model.UserLearningProfile, error)
	UpsertUserLearningProfile(ctx context.Context, p model.UserLearningProfile, now time.Time) error
	ListActivePatterns(ctx context.Context, patternType string) ([]model.Pattern, error)
	FindFactsByUser(ctx context.Context, userID string, limit int) ([]model.Fact, error)
	FindGoalsByUser(ctx context.Context, userID string) ([]model.Goal, error)
	FindTasksByUser(ctx context.Context, userID string, status *model.TaskStatus) ([]model.Task, error)
	FindPendingNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	FindLatestSessionSnapshot(ctx context.Context, userID string) (model.SessionSnapshot, error)
	CreateSessionSnapshot(ctx context.Context, s model.SessionSnapshot) error
	EndSessionSnapshot(ctx context.Context, sessionID string, endedAt time.Time, promptCount, judgmentCount int, handoff model.Handoff) error
	CreatePsychologySnapshot(ctx context.Context, s model.PsychologySnapshot) (model.PsychologySnapshot, error)
}

// Orchestrator owns the boot/sleep lifecycle for one kernel process.
type Orchestrator struct {
	Store Store
	Now   func() time.Time

	// StateDir is the kernel's local state directory (e.g. ~/.cynic).
	// HandoffPath(StateDir) is written at Sleep and consulted at Boot as
	// a SAFE-mode fallback when the Store can't be reached. Empty
	// disables file-based handoff entirely.
	StateDir string

	logger logger
}

// logger is the minimal slog surface used here, named locally so this
// package doesn't need to import log/slog just for one Warn call.
type logger interface {
	Warn(msg string, args ...any)
}

// New builds an Orchestrator backed by store. log may be nil.
func New(store Store, log logger) *Orchestrator {
	return &Orchestrator{Store: store, logger: log}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) warn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

// Session is the live state handed back from Boot and threaded through a
// session's lifetime into Sleep.
type Session struct {
	SessionID string
	UserID    string
	Mode      model.BootMode
	Degraded  bool
	Tier      model.ExperienceTier
	StartedAt time.Time

	Profile         model.UserLearningProfile
	Patterns        []model.Pattern
	Facts           []model.Fact
	Goals           []model.Goal
	Tasks           []model.Task
	Notifications   []model.Notification
	PreviousHandoff *model.Handoff

	// Banner shaping, derived from Tier.
	FactLimit             int
	ReflectionLimit       int
	OmitIdentityAndAxioms bool

	promptCount   int
	judgmentCount int
}

// RecordPrompt bumps the session's prompt counter, written to the
// session's end-of-session snapshot row at Sleep (the profile has no
// prompt count).
func (s *Session) RecordPrompt() {
	s.promptCount++
}

// RecordJudgment bumps the session's judgment counter, merged into the
// profile at Sleep.
func (s *Session) RecordJudgment() {
	s.judgmentCount++
}

// Boot selects a boot mode and assembles the context the host assistant
// injects into its session banner. A Store that fails to respond to Ping
// degrades to SAFE: local-only operation, no persistence, no
// cross-session context.
func (o *Orchestrator) Boot(ctx context.Context, userID string) (*Session, error) {
	now := o.now()
	sess := &Session{
		SessionID: idgen.New(idgen.PrefixSession),
		UserID:    userID,
		StartedAt: now,
	}

	if err := o.Store.Ping(ctx); err != nil {
		o.warn("orchestrator: store unavailable, booting SAFE", "error", err)
		sess.Mode = model.BootSafe
		sess.Degraded = true
		sess.Tier = model.TierNew
		applyTierLimits(sess)
		if h, ok, ferr := ReadHandoffFile(HandoffPath(o.StateDir)); ferr == nil && ok {
			sess.PreviousHandoff = &h
		}
		return sess, nil
	}

	sessionCount, err := o.Store.CountSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: count sessions: %w", err)
	}
	sess.Tier = model.ExperienceTierFor(sessionCount)
	applyTierLimits(sess)

	if sessionCount == 0 {
		sess.Mode = model.BootCold
	} else {
		sess.Mode = model.BootWarm
	}

	profile, err := o.Store.GetUserLearningProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: get learning profile: %w", err)
	}
	sess.Profile = profile

	facts, err := o.Store.FindFactsByUser(ctx, userID, sess.FactLimit)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: find facts: %w", err)
	}
	sess.Facts = facts

	goals, err := o.Store.FindGoalsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: find goals: %w", err)
	}
	sess.Goals = goals

	tasks, err := o.Store.FindTasksByUser(ctx, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: find tasks: %w", err)
	}
	sess.Tasks = tasks

	notifications, err := o.Store.FindPendingNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: find notifications: %w", err)
	}
	sess.Notifications = notifications

	if sess.Mode == model.BootWarm {
		patterns, err := o.Store.ListActivePatterns(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("orchestrator: list patterns: %w", err)
		}
		sess.Patterns = topPatterns(patterns, MaxWarmPatterns, now)

		prev, err := o.Store.FindLatestSessionSnapshot(ctx, userID)
		if err != nil && err != storage.ErrNotFound {
			return nil, fmt.Errorf("orchestrator: find latest session: %w", err)
		}
		if err == nil {
			sess.PreviousHandoff = prev.Handoff
		}
	}

	if err := o.Store.CreateSessionSnapshot(ctx, model.SessionSnapshot{
		SessionID: sess.SessionID,
		UserID:    userID,
		BootMode:  sess.Mode,
		Degraded:  sess.Degraded,
		StartedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("orchestrator: create session snapshot: %w", err)
	}

	return sess, nil
}

// applyTierLimits fills the banner-shaping fields from a session's tier.
func applyTierLimits(s *Session) {
	s.FactLimit = model.FactInjectionLimit(s.Tier)
	s.ReflectionLimit = model.ReflectionLimit(s.Tier)
	s.OmitIdentityAndAxioms = model.OmitIdentityAndAxioms(s.Tier)
}

// topPatterns ranks patterns by confidence, tie-broken by recency, and
// returns at most limit. Patterns already come from the Store with
// merged ones excluded.
func topPatterns(patterns []model.Pattern, limit int, now time.Time) []model.Pattern {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Confidence != patterns[j].Confidence {
			return patterns[i].Confidence > patterns[j].Confidence
		}
		return patterns[i].LastSeenAt.After(patterns[j].LastSeenAt)
	})
	if len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns
}
