package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/model"
)

// CreateBlock inserts a block. Implements chain.Store. A block number
// collision (a concurrent writer already sealed this number) is treated
// as success-by-another-writer, matching the Chain's documented no-op
// behavior on a losing race.
func (db *DB) CreateBlock(ctx context.Context, b model.Block) error {
	ids, err := jsonEncode(b.JudgmentIDs)
	if err != nil {
		return fmt.Errorf("storage: encode judgment ids: %w", err)
	}
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO blocks (block_number, block_hash, prev_hash, merkle_root, judgment_count, judgment_ids, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(block_number) DO NOTHING`,
			b.BlockNumber, b.BlockHash, b.PrevHash, b.MerkleRoot, b.JudgmentCount, ids, b.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("storage: create block: %w", err)
		}
		return nil
	})
}

// GetHeadBlock returns the highest-numbered block, or nil if the chain is
// empty (genesis has not been sealed yet). Implements chain.Store.
func (db *DB) GetHeadBlock(ctx context.Context) (*model.Block, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT block_number, block_hash, prev_hash, merkle_root, judgment_count, judgment_ids, timestamp
		 FROM blocks ORDER BY block_number DESC LIMIT 1`)
	b, err := scanBlock(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: get head block: %w", err)
	}
	return &b, nil
}

// FindBlockByNumber returns a block by number, or nil if it doesn't exist.
// Implements chain.Store.
func (db *DB) FindBlockByNumber(ctx context.Context, number int64) (*model.Block, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT block_number, block_hash, prev_hash, merkle_root, judgment_count, judgment_ids, timestamp
		 FROM blocks WHERE block_number = ?`, number)
	b, err := scanBlock(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: find block by number: %w", err)
	}
	return &b, nil
}

// FindBlocksSince returns up to limit blocks with block_number >= number,
// ascending. Implements chain.Store.
func (db *DB) FindBlocksSince(ctx context.Context, number int64, limit int) ([]model.Block, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT block_number, block_hash, prev_hash, merkle_root, judgment_count, judgment_ids, timestamp
		 FROM blocks WHERE block_number >= ? ORDER BY block_number ASC LIMIT ?`, number, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: find blocks since: %w", err)
	}
	defer rows.Close()

	var out []model.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBlock(row rowScanner) (model.Block, error) {
	var b model.Block
	var ids, ts string
	if err := row.Scan(&b.BlockNumber, &b.BlockHash, &b.PrevHash, &b.MerkleRoot, &b.JudgmentCount, &ids, &ts); err != nil {
		return model.Block{}, err
	}
	var err error
	b.JudgmentIDs, err = jsonDecode[[]string](ids)
	if err != nil {
		return model.Block{}, fmt.Errorf("decode judgment ids: %w", err)
	}
	b.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return model.Block{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return b, nil
}
