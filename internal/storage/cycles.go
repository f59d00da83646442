package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
)

// CreateLearningCycle inserts the immutable audit record for one
// Harmonic Loop sweep.
func (db *DB) CreateLearningCycle(ctx context.Context, c model.LearningCycle) (model.LearningCycle, error) {
	if c.CycleID == "" {
		c.CycleID = idgen.New(idgen.PrefixLearningCycle)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	err := db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO learning_cycles (cycle_id, feedback_applied, patterns_updated, patterns_merged,
			 weights_updated, thresholds_updated, avg_weight_delta, avg_threshold_delta, promotions, demotions,
			 duration_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.CycleID, c.FeedbackApplied, c.PatternsUpdated, c.PatternsMerged, c.WeightsUpdated,
			c.ThresholdsUpdated, c.AvgWeightDelta, c.AvgThresholdDelta, c.Promotions, c.Demotions,
			c.DurationMS, c.CreatedAt.Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return model.LearningCycle{}, fmt.Errorf("storage: create learning cycle: %w", err)
	}
	return c, nil
}

// FindLatestLearningCycle returns the most recent learning cycle, or
// ErrNotFound if the loop has never run.
func (db *DB) FindLatestLearningCycle(ctx context.Context) (model.LearningCycle, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT cycle_id, feedback_applied, patterns_updated, patterns_merged, weights_updated,
		 thresholds_updated, avg_weight_delta, avg_threshold_delta, promotions, demotions, duration_ms, created_at
		 FROM learning_cycles ORDER BY created_at DESC LIMIT 1`)
	var c model.LearningCycle
	var createdAt string
	err := row.Scan(&c.CycleID, &c.FeedbackApplied, &c.PatternsUpdated, &c.PatternsMerged, &c.WeightsUpdated,
		&c.ThresholdsUpdated, &c.AvgWeightDelta, &c.AvgThresholdDelta, &c.Promotions, &c.Demotions,
		&c.DurationMS, &createdAt)
	if err == sql.ErrNoRows {
		return model.LearningCycle{}, ErrNotFound
	}
	if err != nil {
		return model.LearningCycle{}, fmt.Errorf("storage: find latest learning cycle: %w", err)
	}
	c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.LearningCycle{}, fmt.Errorf("storage: parse learning cycle created_at: %w", err)
	}
	return c, nil
}
