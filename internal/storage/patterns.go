package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/model"
)

// UpsertPattern records one more occurrence of (patternType, patternKey).
// A new pattern starts at the given confidence; an existing active
// pattern's confidence merges as max(existing, confidence) per spec's
// "confidence merges as max" rule, and occurrence_count increments.
func (db *DB) UpsertPattern(ctx context.Context, patternType, patternKey string, confidence float64, now time.Time) (model.Pattern, error) {
	var out model.Pattern
	err := db.withWriteRetry(ctx, func() error {
		existing, err := db.findActivePattern(ctx, patternType, patternKey)
		if err != nil {
			return err
		}
		if existing == nil {
			if confidence > model.MaxConfidence {
				confidence = model.MaxConfidence
			}
			id := "pat_" + patternType + ":" + patternKey + ":" + now.Format("20060102150405.000000000")
			p := model.Pattern{
				PatternID: id, PatternType: patternType, PatternKey: patternKey,
				OccurrenceCount: 1, Confidence: confidence, TrendDirection: model.TrendStable,
				FirstSeenAt: now, LastSeenAt: now,
			}
			if _, err := db.conn.ExecContext(ctx,
				`INSERT INTO patterns (pattern_id, pattern_type, pattern_key, occurrence_count, confidence,
				 strength, weight_modifier, threshold_delta, trend_direction, trend_velocity, first_seen_at, last_seen_at)
				 VALUES (?, ?, ?, 1, ?, 0, 1.0, 0, 'stable', 0, ?, ?)`,
				p.PatternID, p.PatternType, p.PatternKey, p.Confidence,
				p.FirstSeenAt.Format(time.RFC3339Nano), p.LastSeenAt.Format(time.RFC3339Nano),
			); err != nil {
				return fmt.Errorf("storage: insert pattern: %w", err)
			}
			out = p
			return nil
		}

		merged := *existing
		merged.OccurrenceCount++
		if confidence > merged.Confidence {
			merged.Confidence = confidence
		}
		if merged.Confidence > model.MaxConfidence {
			merged.Confidence = model.MaxConfidence
		}
		merged.LastSeenAt = now
		if _, err := db.conn.ExecContext(ctx,
			`UPDATE patterns SET occurrence_count = ?, confidence = ?, last_seen_at = ? WHERE pattern_id = ?`,
			merged.OccurrenceCount, merged.Confidence, merged.LastSeenAt.Format(time.RFC3339Nano), merged.PatternID,
		); err != nil {
			return fmt.Errorf("storage: update pattern: %w", err)
		}
		out = merged
		return nil
	})
	return out, err
}

func (db *DB) findActivePattern(ctx context.Context, patternType, patternKey string) (*model.Pattern, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT pattern_id, pattern_type, pattern_key, occurrence_count, confidence, strength,
		 weight_modifier, threshold_delta, trend_direction, trend_velocity, promoted_at, merged_at, parent_id,
		 first_seen_at, last_seen_at
		 FROM patterns WHERE pattern_type = ? AND pattern_key = ? AND merged_at IS NULL`, patternType, patternKey)
	p, err := scanPattern(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: find active pattern: %w", err)
	}
	return &p, nil
}

func scanPattern(row rowScanner) (model.Pattern, error) {
	var p model.Pattern
	var promotedAt, mergedAt, parentID sql.NullString
	var firstSeen, lastSeen string
	err := row.Scan(&p.PatternID, &p.PatternType, &p.PatternKey, &p.OccurrenceCount, &p.Confidence,
		&p.Strength, &p.WeightModifier, &p.ThresholdDelta, &p.TrendDirection, &p.TrendVelocity,
		&promotedAt, &mergedAt, &parentID, &firstSeen, &lastSeen)
	if err != nil {
		return model.Pattern{}, err
	}
	if promotedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, promotedAt.String)
		if err != nil {
			return model.Pattern{}, err
		}
		p.PromotedAt = &t
	}
	if mergedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, mergedAt.String)
		if err != nil {
			return model.Pattern{}, err
		}
		p.MergedAt = &t
	}
	if parentID.Valid {
		p.ParentID = &parentID.String
	}
	p.FirstSeenAt, err = time.Parse(time.RFC3339Nano, firstSeen)
	if err != nil {
		return model.Pattern{}, err
	}
	p.LastSeenAt, err = time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return model.Pattern{}, err
	}
	return p, nil
}

// ListActivePatterns returns all non-merged patterns, optionally filtered
// by type.
func (db *DB) ListActivePatterns(ctx context.Context, patternType string) ([]model.Pattern, error) {
	query := `SELECT pattern_id, pattern_type, pattern_key, occurrence_count, confidence, strength,
	 weight_modifier, threshold_delta, trend_direction, trend_velocity, promoted_at, merged_at, parent_id,
	 first_seen_at, last_seen_at
	 FROM patterns WHERE merged_at IS NULL`
	var args []any
	if patternType != "" {
		query += " AND pattern_type = ?"
		args = append(args, patternType)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list active patterns: %w", err)
	}
	defer rows.Close()

	var out []model.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// BestMatchConfidence implements judge.PatternLookup: the highest
// confidence among active patterns of taskType whose key equals
// patternKey, or 0 if none match.
func (db *DB) BestMatchConfidence(taskType, patternKey string) float64 {
	var confidence sql.NullFloat64
	_ = db.conn.QueryRow(
		`SELECT MAX(confidence) FROM patterns WHERE pattern_type = ? AND pattern_key = ? AND merged_at IS NULL`,
		taskType, patternKey,
	).Scan(&confidence)
	return confidence.Float64
}

// SetPatternWeightModifier updates the learning-cycle-derived weight
// modifier and threshold delta for a pattern.
func (db *DB) SetPatternWeightModifier(ctx context.Context, patternID string, weightModifier, thresholdDelta float64) error {
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE patterns SET weight_modifier = ?, threshold_delta = ? WHERE pattern_id = ?`,
			weightModifier, thresholdDelta, patternID)
		if err != nil {
			return fmt.Errorf("storage: set pattern weight modifier: %w", err)
		}
		return nil
	})
}

// PromotePattern sets promoted_at, graduating a pattern from observed to
// trusted heuristic.
func (db *DB) PromotePattern(ctx context.Context, patternID string, at time.Time) error {
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE patterns SET promoted_at = ? WHERE pattern_id = ? AND promoted_at IS NULL`,
			at.Format(time.RFC3339Nano), patternID)
		if err != nil {
			return fmt.Errorf("storage: promote pattern: %w", err)
		}
		return nil
	})
}

// DemotePattern clears promoted_at, returning a heuristic to observed
// status.
func (db *DB) DemotePattern(ctx context.Context, patternID string) error {
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE patterns SET promoted_at = NULL WHERE pattern_id = ?`, patternID)
		if err != nil {
			return fmt.Errorf("storage: demote pattern: %w", err)
		}
		return nil
	})
}

// MergePattern marks a pattern merged into parentID, excluding it from
// active queries.
func (db *DB) MergePattern(ctx context.Context, patternID, parentID string, at time.Time) error {
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE patterns SET merged_at = ?, parent_id = ? WHERE pattern_id = ?`,
			at.Format(time.RFC3339Nano), parentID, patternID)
		if err != nil {
			return fmt.Errorf("storage: merge pattern: %w", err)
		}
		return nil
	})
}

// FindSimilarPatternKeys uses the patterns_fts trigram-tokenized index to
// find active pattern keys textually close to key, for merge-candidate
// detection in the learning cycle's pattern-evolution pass.
func (db *DB) FindSimilarPatternKeys(ctx context.Context, patternType, key string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT p.pattern_key FROM patterns_fts f
		JOIN patterns p ON p.rowid = f.rowid
		WHERE patterns_fts MATCH ? AND p.pattern_type = ? AND p.merged_at IS NULL AND p.pattern_key != ?
		ORDER BY rank LIMIT ?`,
		ftsQuery(key), patternType, key, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: find similar pattern keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("storage: scan similar pattern key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// ftsQuery escapes a raw string for use as an FTS5 MATCH query by quoting
// it, so punctuation in pattern keys (e.g. "go:test_fail") does not break
// the query syntax.
func ftsQuery(s string) string {
	return `"` + s + `"`
}
