package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/model"
)

// GetUserLearningProfile returns a user's learning profile, or a
// freshly-initialized one (learning rate at the floor) if none exists.
func (db *DB) GetUserLearningProfile(ctx context.Context, userID string) (model.UserLearningProfile, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT user_id, learning_rate, session_count, judgment_count, feedback_count,
		 preferred_dimensions, judgment_patterns_by_hour, judgment_patterns_by_type,
		 feedback_bias, escore_feedback_correlation, created_at, updated_at
		 FROM user_learning_profiles WHERE user_id = ?`, userID)

	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		now := time.Now().UTC()
		return model.UserLearningProfile{
			UserID: userID, LearningRate: model.LearningRateMin, CreatedAt: now, UpdatedAt: now,
		}, nil
	}
	if err != nil {
		return model.UserLearningProfile{}, fmt.Errorf("storage: get user learning profile: %w", err)
	}
	return p, nil
}

func scanProfile(row rowScanner) (model.UserLearningProfile, error) {
	var p model.UserLearningProfile
	var preferredDims, byHour, byType sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&p.UserID, &p.LearningRate, &p.SessionCount, &p.JudgmentCount, &p.FeedbackCount,
		&preferredDims, &byHour, &byType, &p.FeedbackBias, &p.EscoreFeedbackCorrelation, &createdAt, &updatedAt)
	if err != nil {
		return model.UserLearningProfile{}, err
	}
	if preferredDims.Valid {
		p.PreferredDimensions, err = jsonDecode[[]string](preferredDims.String)
		if err != nil {
			return model.UserLearningProfile{}, fmt.Errorf("decode preferred dimensions: %w", err)
		}
	}
	if byHour.Valid {
		p.JudgmentPatternsByHour, err = jsonDecode[map[int]int](byHour.String)
		if err != nil {
			return model.UserLearningProfile{}, fmt.Errorf("decode judgment patterns by hour: %w", err)
		}
	}
	if byType.Valid {
		p.JudgmentPatternsByType, err = jsonDecode[map[string]int](byType.String)
		if err != nil {
			return model.UserLearningProfile{}, fmt.Errorf("decode judgment patterns by type: %w", err)
		}
	}
	p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.UserLearningProfile{}, err
	}
	p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return model.UserLearningProfile{}, err
	}
	return p, nil
}

// UpsertUserLearningProfile persists a user's learning profile, updating
// updated_at to now.
func (db *DB) UpsertUserLearningProfile(ctx context.Context, p model.UserLearningProfile, now time.Time) error {
	preferredDims, err := jsonEncode(p.PreferredDimensions)
	if err != nil {
		return fmt.Errorf("storage: encode preferred dimensions: %w", err)
	}
	byHour, err := jsonEncode(p.JudgmentPatternsByHour)
	if err != nil {
		return fmt.Errorf("storage: encode judgment patterns by hour: %w", err)
	}
	byType, err := jsonEncode(p.JudgmentPatternsByType)
	if err != nil {
		return fmt.Errorf("storage: encode judgment patterns by type: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}

	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO user_learning_profiles (user_id, learning_rate, session_count, judgment_count, feedback_count,
			 preferred_dimensions, judgment_patterns_by_hour, judgment_patterns_by_type,
			 feedback_bias, escore_feedback_correlation, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
			   learning_rate = excluded.learning_rate, session_count = excluded.session_count,
			   judgment_count = excluded.judgment_count, feedback_count = excluded.feedback_count,
			   preferred_dimensions = excluded.preferred_dimensions,
			   judgment_patterns_by_hour = excluded.judgment_patterns_by_hour,
			   judgment_patterns_by_type = excluded.judgment_patterns_by_type,
			   feedback_bias = excluded.feedback_bias,
			   escore_feedback_correlation = excluded.escore_feedback_correlation,
			   updated_at = excluded.updated_at`,
			p.UserID, p.LearningRate, p.SessionCount, p.JudgmentCount, p.FeedbackCount,
			nullIfEmpty(preferredDims), nullIfEmpty(byHour), nullIfEmpty(byType),
			p.FeedbackBias, p.EscoreFeedbackCorrelation,
			p.CreatedAt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("storage: upsert user learning profile: %w", err)
		}
		return nil
	})
}
