package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
)

// CreateEScoreSnapshot records a point-in-time experience score.
func (db *DB) CreateEScoreSnapshot(ctx context.Context, s model.EScoreSnapshot) (model.EScoreSnapshot, error) {
	if s.SnapshotID == "" {
		s.SnapshotID = idgen.New(idgen.PrefixSnapshot)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	dims, err := jsonEncode(s.Dimensions)
	if err != nil {
		return model.EScoreSnapshot{}, fmt.Errorf("storage: encode escore dimensions: %w", err)
	}

	err = db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO escore_snapshots (snapshot_id, user_id, e_score, dimensions, trigger_event, delta, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.SnapshotID, s.UserID, s.EScore, dims, s.TriggerEvent, s.Delta, s.CreatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return model.EScoreSnapshot{}, fmt.Errorf("storage: create escore snapshot: %w", err)
	}
	return s, nil
}

// FindEScoreHistory returns a user's snapshots newest-first, bounded by
// limit, for trend display and the orchestrator's handoff summary.
func (db *DB) FindEScoreHistory(ctx context.Context, userID string, limit int) ([]model.EScoreSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT snapshot_id, user_id, e_score, dimensions, trigger_event, delta, created_at
		 FROM escore_snapshots WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: find escore history: %w", err)
	}
	defer rows.Close()

	var out []model.EScoreSnapshot
	for rows.Next() {
		s, err := scanEScoreSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan escore snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanEScoreSnapshot(row rowScanner) (model.EScoreSnapshot, error) {
	var s model.EScoreSnapshot
	var dims, createdAt string
	if err := row.Scan(&s.SnapshotID, &s.UserID, &s.EScore, &dims, &s.TriggerEvent, &s.Delta, &createdAt); err != nil {
		return model.EScoreSnapshot{}, err
	}
	var err error
	s.Dimensions, err = jsonDecode[[7]float64](dims)
	if err != nil {
		return model.EScoreSnapshot{}, fmt.Errorf("decode dimensions: %w", err)
	}
	s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.EScoreSnapshot{}, fmt.Errorf("parse created_at: %w", err)
	}
	return s, nil
}

// CleanupEScoreHistory prunes snapshots per the 24h/7d/365d retention
// schedule: within the last 24h every snapshot is kept; between 24h and 7d
// only the earliest snapshot per calendar day survives (daily/midnight
// resolution); between 7d and 365d only the earliest snapshot per
// Sunday-starting week survives (weekly/Sunday-midnight resolution);
// anything older than 365d is deleted outright.
func (db *DB) CleanupEScoreHistory(ctx context.Context, now time.Time) error {
	dayAgo := now.Add(-24 * time.Hour).Format(time.RFC3339Nano)
	weekAgo := now.Add(-7 * 24 * time.Hour).Format(time.RFC3339Nano)
	yearAgo := now.Add(-365 * 24 * time.Hour).Format(time.RFC3339Nano)

	return db.withWriteRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage: begin escore cleanup tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		// Daily tier: between 7d and 24h ago, keep only the earliest
		// snapshot per (user_id, calendar day bucket).
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM escore_snapshots
			WHERE created_at < ? AND created_at >= ?
			AND snapshot_id NOT IN (
				SELECT snapshot_id FROM (
					SELECT snapshot_id, ROW_NUMBER() OVER (
						PARTITION BY user_id, strftime('%Y-%m-%d', created_at)
						ORDER BY created_at ASC
					) AS rn
					FROM escore_snapshots
					WHERE created_at < ? AND created_at >= ?
				) WHERE rn = 1
			)`, dayAgo, weekAgo, dayAgo, weekAgo); err != nil {
			return fmt.Errorf("storage: prune daily escore tier: %w", err)
		}

		// Weekly tier: between 365d and 7d ago, keep only the earliest
		// snapshot per (user_id, Sunday-starting week bucket). strftime
		// '%w' is the day-of-week (0=Sunday), so subtracting it from the
		// date lands on that week's Sunday.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM escore_snapshots
			WHERE created_at < ? AND created_at >= ?
			AND snapshot_id NOT IN (
				SELECT snapshot_id FROM (
					SELECT snapshot_id, ROW_NUMBER() OVER (
						PARTITION BY user_id, date(created_at, '-' || strftime('%w', created_at) || ' days')
						ORDER BY created_at ASC
					) AS rn
					FROM escore_snapshots
					WHERE created_at < ? AND created_at >= ?
				) WHERE rn = 1
			)`, weekAgo, yearAgo, weekAgo, yearAgo); err != nil {
			return fmt.Errorf("storage: prune weekly escore tier: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM escore_snapshots WHERE created_at < ?`, yearAgo); err != nil {
			return fmt.Errorf("storage: prune expired escore tier: %w", err)
		}

		return tx.Commit()
	})
}
