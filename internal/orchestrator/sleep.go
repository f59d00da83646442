package orchestrator

import (
	"context"
	"fmt"

	"github.com/ashita-ai/akashi/internal/model"
)

// Sleep closes out a session: merges counters into the user profile,
// appends a psychology snapshot if one is supplied, persists the
// SessionSnapshot's end-of-session row, and writes the handoff file for
// the next awakening. Sleep writes no pattern rows, and nothing on the
// session's judgment path upserts a pattern either.
//
// A SAFE-mode session (sess.Degraded) skips all Store writes and only
// writes the handoff file, since there is no profile row to merge into.
func (o *Orchestrator) Sleep(ctx context.Context, sess *Session, handoff model.Handoff, psych *model.PsychologySnapshot) error {
	now := o.now()

	if sess.Degraded {
		return WriteHandoffFile(HandoffPath(o.StateDir), handoff)
	}

	profile := sess.Profile
	profile.UserID = sess.UserID
	profile.SessionCount++
	profile.JudgmentCount += sess.judgmentCount
	if err := o.Store.UpsertUserLearningProfile(ctx, profile, now); err != nil {
		return fmt.Errorf("orchestrator: upsert learning profile: %w", err)
	}

	if psych != nil {
		p := *psych
		p.UserID = sess.UserID
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.DeriveComposites()
		if _, err := o.Store.CreatePsychologySnapshot(ctx, p); err != nil {
			return fmt.Errorf("orchestrator: create psychology snapshot: %w", err)
		}
	}

	if err := o.Store.EndSessionSnapshot(ctx, sess.SessionID, now, sess.promptCount, sess.judgmentCount, handoff); err != nil {
		return fmt.Errorf("orchestrator: end session snapshot: %w", err)
	}

	return WriteHandoffFile(HandoffPath(o.StateDir), handoff)
}
