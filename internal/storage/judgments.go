package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/model"
)

// CreateJudgment inserts a judgment. Dedup: if a judgment with the same
// item_hash already exists for the session, the existing row is returned
// unchanged instead of inserting a duplicate (spec's "identical item
// submitted twice in one session" edge case).
func (db *DB) CreateJudgment(ctx context.Context, jd model.Judgment) (model.Judgment, error) {
	if existing, ok, err := db.findJudgmentByHash(ctx, jd.ItemHash, jd.SessionID); err != nil {
		return model.Judgment{}, err
	} else if ok {
		return existing, nil
	}

	axiomScores, err := jsonEncode(jd.AxiomScores)
	if err != nil {
		return model.Judgment{}, fmt.Errorf("storage: encode axiom scores: %w", err)
	}
	dimensionScores, err := jsonEncode(jd.DimensionScores)
	if err != nil {
		return model.Judgment{}, fmt.Errorf("storage: encode dimension scores: %w", err)
	}
	weaknesses, err := jsonEncode(jd.Weaknesses)
	if err != nil {
		return model.Judgment{}, fmt.Errorf("storage: encode weaknesses: %w", err)
	}
	context, err := jsonEncode(jd.Context)
	if err != nil {
		return model.Judgment{}, fmt.Errorf("storage: encode context: %w", err)
	}
	failedAxioms, err := jsonEncode(jd.FailedAxioms)
	if err != nil {
		return model.Judgment{}, fmt.Errorf("storage: encode failed axioms: %w", err)
	}

	if jd.CreatedAt.IsZero() {
		jd.CreatedAt = time.Now().UTC()
	}

	err = db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO judgments (judgment_id, user_id, session_id, item_type, item_content, item_hash,
			 q_score, confidence, verdict, axiom_scores, dimension_scores, weaknesses, context,
			 refined, original_q, final_q, improvement, failed_axioms,
			 block_hash, block_number, prev_hash, persistence_skipped, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			jd.JudgmentID, jd.UserID, jd.SessionID, jd.ItemType, jd.ItemContent, jd.ItemHash,
			jd.QScore, jd.Confidence, jd.Verdict, axiomScores, nullIfEmpty(dimensionScores), nullIfEmpty(weaknesses), nullIfEmpty(context),
			jd.Refined, nullIfZeroRefined(jd), jd.FinalQ, jd.Improvement, nullIfEmpty(failedAxioms),
			jd.BlockHash, jd.BlockNumber, jd.PrevHash, jd.PersistenceSkipped, jd.CreatedAt.Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return model.Judgment{}, fmt.Errorf("storage: create judgment: %w", err)
	}
	return jd, nil
}

// nullIfEmpty converts an empty-JSON-string sentinel to a NULL-friendly value.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZeroRefined(jd model.Judgment) any {
	if !jd.Refined {
		return nil
	}
	return jd.OriginalQ
}

func (db *DB) findJudgmentByHash(ctx context.Context, hash string, sessionID *string) (model.Judgment, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT judgment_id FROM judgments WHERE item_hash = ? AND session_id IS ? LIMIT 1`,
		hash, sessionID)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return model.Judgment{}, false, nil
		}
		return model.Judgment{}, false, fmt.Errorf("storage: find judgment by hash: %w", err)
	}
	jd, err := db.GetJudgment(ctx, id)
	return jd, err == nil, err
}

// GetJudgment retrieves a judgment by ID.
func (db *DB) GetJudgment(ctx context.Context, id string) (model.Judgment, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT judgment_id, user_id, session_id, item_type, item_content, item_hash,
		 q_score, confidence, verdict, axiom_scores, dimension_scores, weaknesses, context,
		 refined, original_q, final_q, improvement, failed_axioms,
		 block_hash, block_number, prev_hash, persistence_skipped, created_at
		 FROM judgments WHERE judgment_id = ?`, id)
	jd, err := scanJudgment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Judgment{}, fmt.Errorf("storage: judgment %s: %w", id, ErrNotFound)
		}
		return model.Judgment{}, fmt.Errorf("storage: get judgment: %w", err)
	}
	return jd, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJudgment(row rowScanner) (model.Judgment, error) {
	var jd model.Judgment
	var axiomScores, dimensionScores, weaknesses, ctxStr, failedAxioms sql.NullString
	var createdAt string
	var originalQ sql.NullFloat64

	err := row.Scan(
		&jd.JudgmentID, &jd.UserID, &jd.SessionID, &jd.ItemType, &jd.ItemContent, &jd.ItemHash,
		&jd.QScore, &jd.Confidence, &jd.Verdict, &axiomScores, &dimensionScores, &weaknesses, &ctxStr,
		&jd.Refined, &originalQ, &jd.FinalQ, &jd.Improvement, &failedAxioms,
		&jd.BlockHash, &jd.BlockNumber, &jd.PrevHash, &jd.PersistenceSkipped, &createdAt,
	)
	if err != nil {
		return model.Judgment{}, err
	}

	jd.AxiomScores, err = jsonDecode[map[model.Axiom]float64](axiomScores.String)
	if err != nil {
		return model.Judgment{}, fmt.Errorf("decode axiom scores: %w", err)
	}
	if dimensionScores.Valid {
		jd.DimensionScores, err = jsonDecode[map[string]float64](dimensionScores.String)
		if err != nil {
			return model.Judgment{}, fmt.Errorf("decode dimension scores: %w", err)
		}
	}
	if weaknesses.Valid {
		jd.Weaknesses, err = jsonDecode[[]string](weaknesses.String)
		if err != nil {
			return model.Judgment{}, fmt.Errorf("decode weaknesses: %w", err)
		}
	}
	if ctxStr.Valid {
		jd.Context, err = jsonDecode[map[string]any](ctxStr.String)
		if err != nil {
			return model.Judgment{}, fmt.Errorf("decode context: %w", err)
		}
	}
	if failedAxioms.Valid {
		jd.FailedAxioms, err = jsonDecode[[]model.Axiom](failedAxioms.String)
		if err != nil {
			return model.Judgment{}, fmt.Errorf("decode failed axioms: %w", err)
		}
	}
	if originalQ.Valid {
		jd.OriginalQ = originalQ.Float64
	}
	jd.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Judgment{}, fmt.Errorf("parse created_at: %w", err)
	}
	return jd, nil
}

// FindJudgmentsOpts filters FindJudgments.
type FindJudgmentsOpts struct {
	SessionID    *string
	UserID       *string
	Verdict      *model.Verdict
	UnlinkedOnly bool // block_number IS NULL
	Limit        int
	oldestFirst  bool // set internally by FindOrphanJudgments
}

// FindJudgments returns judgments matching opts, newest first.
func (db *DB) FindJudgments(ctx context.Context, opts FindJudgmentsOpts) ([]model.Judgment, error) {
	query := `SELECT judgment_id, user_id, session_id, item_type, item_content, item_hash,
	 q_score, confidence, verdict, axiom_scores, dimension_scores, weaknesses, context,
	 refined, original_q, final_q, improvement, failed_axioms,
	 block_hash, block_number, prev_hash, persistence_skipped, created_at
	 FROM judgments WHERE 1=1`
	var args []any
	if opts.SessionID != nil {
		query += " AND session_id = ?"
		args = append(args, *opts.SessionID)
	}
	if opts.UserID != nil {
		query += " AND user_id = ?"
		args = append(args, *opts.UserID)
	}
	if opts.Verdict != nil {
		query += " AND verdict = ?"
		args = append(args, *opts.Verdict)
	}
	if opts.UnlinkedOnly {
		query += " AND block_number IS NULL"
	}
	if opts.oldestFirst {
		query += " ORDER BY created_at ASC"
	} else {
		query += " ORDER BY created_at DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: find judgments: %w", err)
	}
	defer rows.Close()

	var out []model.Judgment
	for rows.Next() {
		jd, err := scanJudgment(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan judgment: %w", err)
		}
		out = append(out, jd)
	}
	return out, rows.Err()
}

// JudgmentStats summarizes the judgment history for a session or user,
// used to render /stats and the session-end handoff.
type JudgmentStats struct {
	Total         int
	ByVerdict     map[model.Verdict]int
	MeanQScore    float64
	MeanConfidence float64
}

// GetStats computes aggregate judgment statistics for a session.
func (db *DB) GetStats(ctx context.Context, sessionID string) (JudgmentStats, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT verdict, q_score, confidence FROM judgments WHERE session_id = ?`, sessionID)
	if err != nil {
		return JudgmentStats{}, fmt.Errorf("storage: get stats: %w", err)
	}
	defer rows.Close()

	stats := JudgmentStats{ByVerdict: map[model.Verdict]int{}}
	var sumQ, sumC float64
	for rows.Next() {
		var v model.Verdict
		var q, c float64
		if err := rows.Scan(&v, &q, &c); err != nil {
			return JudgmentStats{}, fmt.Errorf("storage: scan stats row: %w", err)
		}
		stats.Total++
		stats.ByVerdict[v]++
		sumQ += q
		sumC += c
	}
	if err := rows.Err(); err != nil {
		return JudgmentStats{}, err
	}
	if stats.Total > 0 {
		stats.MeanQScore = sumQ / float64(stats.Total)
		stats.MeanConfidence = sumC / float64(stats.Total)
	}
	return stats, nil
}

// LinkJudgmentsToBlock sets block linkage columns on the given judgments.
// Implements chain.Store.
func (db *DB) LinkJudgmentsToBlock(ctx context.Context, ids []string, blockHash string, blockNumber int64, prevHash string) error {
	return db.withWriteRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage: begin link tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE judgments SET block_hash = ?, block_number = ?, prev_hash = ? WHERE judgment_id = ?`,
				blockHash, blockNumber, prevHash, id,
			); err != nil {
				return fmt.Errorf("storage: link judgment %s: %w", id, err)
			}
		}
		return tx.Commit()
	})
}

// FindOrphanJudgments returns up to limit judgments with no block linkage,
// oldest first (so AdoptOrphans seals them in creation order). Implements
// chain.Store.
func (db *DB) FindOrphanJudgments(ctx context.Context, limit int) ([]model.Judgment, error) {
	return db.FindJudgments(ctx, FindJudgmentsOpts{UnlinkedOnly: true, Limit: limit, oldestFirst: true})
}
