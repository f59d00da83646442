package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
)

// CreateFact inserts a durable, user-scoped fact. embedding is optional —
// pass nil when vector search is not configured for this deployment.
func (db *DB) CreateFact(ctx context.Context, f model.Fact, embedding *pgvector.Vector) (model.Fact, error) {
	if f.FactID == "" {
		f.FactID = idgen.New(idgen.PrefixFact)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	tags, err := jsonEncode(f.Tags)
	if err != nil {
		return model.Fact{}, fmt.Errorf("storage: encode tags: %w", err)
	}

	var vecBytes []byte
	if embedding != nil {
		vecBytes = encodeVector(*embedding)
	}

	err = db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO facts (fact_id, user_id, fact_type, subject, content, confidence, relevance, tags, access_count, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			f.FactID, f.UserID, f.FactType, f.Subject, f.Content, f.Confidence, f.Relevance,
			nullIfEmpty(tags), vecBytes, f.CreatedAt.Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return model.Fact{}, fmt.Errorf("storage: create fact: %w", err)
	}
	return f, nil
}

// FindFactsByUser returns a user's facts ordered by retrieval score
// (relevance * confidence) descending, capped at limit.
func (db *DB) FindFactsByUser(ctx context.Context, userID string, limit int) ([]model.Fact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT fact_id, user_id, fact_type, subject, content, confidence, relevance, tags, access_count, created_at
		 FROM facts WHERE user_id = ? ORDER BY (relevance * confidence) DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: find facts by user: %w", err)
	}
	defer rows.Close()

	var out []model.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFact(row rowScanner) (model.Fact, error) {
	var f model.Fact
	var tags sql.NullString
	var createdAt string
	if err := row.Scan(&f.FactID, &f.UserID, &f.FactType, &f.Subject, &f.Content,
		&f.Confidence, &f.Relevance, &tags, &f.AccessCount, &createdAt); err != nil {
		return model.Fact{}, err
	}
	var err error
	if tags.Valid {
		f.Tags, err = jsonDecode[[]string](tags.String)
		if err != nil {
			return model.Fact{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	f.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Fact{}, fmt.Errorf("parse created_at: %w", err)
	}
	return f, nil
}

// RecordFactAccess increments access_count and bumps relevance toward 1.0
// by 10% of the remaining gap, per spec's "access reinforces relevance"
// rule — access is a noisy positive signal, so it nudges rather than sets.
func (db *DB) RecordFactAccess(ctx context.Context, factID string) error {
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE facts SET access_count = access_count + 1, relevance = relevance + (1.0 - relevance) * 0.1
			 WHERE fact_id = ?`, factID)
		if err != nil {
			return fmt.Errorf("storage: record fact access: %w", err)
		}
		return nil
	})
}

// EncodeVector serializes a pgvector.Vector to its little-endian float32
// wire form for BLOB storage: it reads the floats through pgvector-go's
// slice accessor and packs the bytes by hand. Exported so callers outside this
// package (internal/mcp, preparing a Lesson/Memory embedding before
// calling CreateLesson/CreateMemory) can produce the same on-disk form.
func EncodeVector(v pgvector.Vector) []byte {
	slice := v.Slice()
	buf := make([]byte, 4*len(slice))
	for i, f := range slice {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func encodeVector(v pgvector.Vector) []byte {
	return EncodeVector(v)
}
