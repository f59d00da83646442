package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
)

// CreatePsychologySnapshot appends an advisory trend point. Composites
// (Burnout, Flow) are expected to already be derived by the caller via
// model.PsychologySnapshot.DeriveComposites.
func (db *DB) CreatePsychologySnapshot(ctx context.Context, s model.PsychologySnapshot) (model.PsychologySnapshot, error) {
	if s.SnapshotID == "" {
		s.SnapshotID = idgen.New(idgen.PrefixSnapshot)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	err := db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO psychology_snapshots
			 (snapshot_id, user_id, energy, focus, creativity, frustration, burnout, flow, work_done, error_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.SnapshotID, s.UserID, s.Energy, s.Focus, s.Creativity, s.Frustration,
			s.Burnout, s.Flow, s.WorkDone, s.ErrorCount, s.CreatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return model.PsychologySnapshot{}, fmt.Errorf("storage: create psychology snapshot: %w", err)
	}
	return s, nil
}

// FindPsychologyHistory returns a user's snapshots newest-first, bounded
// by limit, for the orchestrator's sleep-time trend summary.
func (db *DB) FindPsychologyHistory(ctx context.Context, userID string, limit int) ([]model.PsychologySnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT snapshot_id, user_id, energy, focus, creativity, frustration, burnout, flow, work_done, error_count, created_at
		 FROM psychology_snapshots WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: find psychology history: %w", err)
	}
	defer rows.Close()

	var out []model.PsychologySnapshot
	for rows.Next() {
		s, err := scanPsychologySnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan psychology snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanPsychologySnapshot(row rowScanner) (model.PsychologySnapshot, error) {
	var s model.PsychologySnapshot
	var createdAt string
	err := row.Scan(&s.SnapshotID, &s.UserID, &s.Energy, &s.Focus, &s.Creativity, &s.Frustration,
		&s.Burnout, &s.Flow, &s.WorkDone, &s.ErrorCount, &createdAt)
	if err != nil {
		return model.PsychologySnapshot{}, err
	}
	s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.PsychologySnapshot{}, fmt.Errorf("parse created_at: %w", err)
	}
	return s, nil
}
