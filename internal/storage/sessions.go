package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/model"
)

// CreateSessionSnapshot records the start of a host session.
func (db *DB) CreateSessionSnapshot(ctx context.Context, s model.SessionSnapshot) error {
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO session_snapshots (session_id, user_id, boot_mode, degraded, started_at, prompt_count, judgment_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.SessionID, s.UserID, s.BootMode, s.Degraded, s.StartedAt.Format(time.RFC3339Nano), s.PromptCount, s.JudgmentCount)
		if err != nil {
			return fmt.Errorf("storage: create session snapshot: %w", err)
		}
		return nil
	})
}

// EndSessionSnapshot closes out a session with final counters and the
// handoff summary written for the next awakening.
func (db *DB) EndSessionSnapshot(ctx context.Context, sessionID string, endedAt time.Time, promptCount, judgmentCount int, handoff model.Handoff) error {
	handoffJSON, err := jsonEncode(handoff)
	if err != nil {
		return fmt.Errorf("storage: encode handoff: %w", err)
	}
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE session_snapshots SET ended_at = ?, prompt_count = ?, judgment_count = ?, handoff = ?
			 WHERE session_id = ?`,
			endedAt.Format(time.RFC3339Nano), promptCount, judgmentCount, handoffJSON, sessionID)
		if err != nil {
			return fmt.Errorf("storage: end session snapshot: %w", err)
		}
		return nil
	})
}

// FindLatestSessionSnapshot returns a user's most recent session, used by
// the Session Orchestrator to decide COLD vs WARM boot and to load the
// previous session's handoff.
func (db *DB) FindLatestSessionSnapshot(ctx context.Context, userID string) (model.SessionSnapshot, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT session_id, user_id, boot_mode, degraded, started_at, ended_at, prompt_count, judgment_count, handoff
		 FROM session_snapshots WHERE user_id = ? ORDER BY started_at DESC LIMIT 1`, userID)

	var s model.SessionSnapshot
	var startedAt string
	var endedAt, handoffJSON sql.NullString
	err := row.Scan(&s.SessionID, &s.UserID, &s.BootMode, &s.Degraded, &startedAt, &endedAt,
		&s.PromptCount, &s.JudgmentCount, &handoffJSON)
	if err == sql.ErrNoRows {
		return model.SessionSnapshot{}, ErrNotFound
	}
	if err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("storage: find latest session snapshot: %w", err)
	}
	s.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("storage: parse started_at: %w", err)
	}
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return model.SessionSnapshot{}, fmt.Errorf("storage: parse ended_at: %w", err)
		}
		s.EndedAt = &t
	}
	if handoffJSON.Valid {
		h, err := jsonDecode[model.Handoff](handoffJSON.String)
		if err != nil {
			return model.SessionSnapshot{}, fmt.Errorf("storage: decode handoff: %w", err)
		}
		s.Handoff = &h
	}
	return s, nil
}

// CountSessions returns how many session rows a user has, ended or not,
// feeding ExperienceTierFor.
func (db *DB) CountSessions(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_snapshots WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count sessions: %w", err)
	}
	return n, nil
}
