package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
)

// CreateFeedback inserts a feedback row (explicit or implicit), unapplied
// until the next learning-cycle sweep picks it up.
func (db *DB) CreateFeedback(ctx context.Context, f model.Feedback) (model.Feedback, error) {
	if f.FeedbackID == "" {
		f.FeedbackID = idgen.New(idgen.PrefixFeedback)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	sourceContext, err := jsonEncode(f.SourceContext)
	if err != nil {
		return model.Feedback{}, fmt.Errorf("storage: encode source context: %w", err)
	}

	err = db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO feedback (feedback_id, judgment_id, source_type, rating, outcome, implicit_kind,
			 actual_score, reason, source_context, confidence, reward, state_key, arm, applied, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			f.FeedbackID, f.JudgmentID, f.SourceType, f.Rating, f.Outcome, f.ImplicitKind,
			f.ActualScore, f.Reason, nullIfEmpty(sourceContext), f.Confidence, f.Reward, f.StateKey, f.Arm,
			f.CreatedAt.Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return model.Feedback{}, fmt.Errorf("storage: create feedback: %w", err)
	}
	return f, nil
}

// FindUnappliedFeedback returns unapplied feedback rows oldest-first, for
// the learning cycle sweep to consume in FIFO order.
func (db *DB) FindUnappliedFeedback(ctx context.Context, limit int) ([]model.Feedback, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT feedback_id, judgment_id, source_type, rating, outcome, implicit_kind, actual_score, reason,
		 source_context, confidence, reward, state_key, arm, applied, created_at
		 FROM feedback WHERE applied = 0 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: find unapplied feedback: %w", err)
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFeedback(row rowScanner) (model.Feedback, error) {
	var f model.Feedback
	var sourceContext sql.NullString
	var createdAt string
	if err := row.Scan(&f.FeedbackID, &f.JudgmentID, &f.SourceType, &f.Rating, &f.Outcome, &f.ImplicitKind,
		&f.ActualScore, &f.Reason, &sourceContext, &f.Confidence, &f.Reward, &f.StateKey, &f.Arm, &f.Applied, &createdAt); err != nil {
		return model.Feedback{}, err
	}
	var err error
	if sourceContext.Valid {
		f.SourceContext, err = jsonDecode[map[string]any](sourceContext.String)
		if err != nil {
			return model.Feedback{}, fmt.Errorf("decode source context: %w", err)
		}
	}
	f.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Feedback{}, fmt.Errorf("parse created_at: %w", err)
	}
	return f, nil
}

// MarkFeedbackApplied flags feedback rows as consumed by a learning
// cycle, so subsequent sweeps don't reprocess them.
func (db *DB) MarkFeedbackApplied(ctx context.Context, feedbackIDs []string) error {
	return db.withWriteRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage: begin mark applied tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, id := range feedbackIDs {
			if _, err := tx.ExecContext(ctx, `UPDATE feedback SET applied = 1 WHERE feedback_id = ?`, id); err != nil {
				return fmt.Errorf("storage: mark feedback %s applied: %w", id, err)
			}
		}
		return tx.Commit()
	})
}
