package storage

import (
	"context"
	"fmt"
)

// tablesToTruncate lists every table covered by TruncateAll, in an order
// that respects no foreign keys (none are declared) but keeps the ledger
// tables first for readability.
var tablesToTruncate = []string{
	"judgments",
	"blocks",
	"patterns",
	"patterns_fts",
	"facts",
	"feedback",
	"arms",
	"qtable_entries",
	"user_learning_profiles",
	"learning_cycles",
	"session_snapshots",
	"escore_snapshots",
	"tasks",
	"goals",
	"notifications",
	"lessons",
	"collaborator_decisions",
	"memories",
	"psychology_snapshots",
}

// TruncateAll implements chain.Resetter: it deletes every row from every
// kernel table. Ids are random (see idgen), not autoincrement, so there is
// no sequence counter to reset. Irreversible; gated by chain.Reset's
// confirm-phrase check.
func (db *DB) TruncateAll(ctx context.Context) error {
	return db.withWriteRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage: begin truncate tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, table := range tablesToTruncate {
			if table == "patterns_fts" {
				// external-content FTS5 table: 'delete-all' special command.
				if _, err := tx.ExecContext(ctx, `INSERT INTO patterns_fts(patterns_fts) VALUES('delete-all')`); err != nil {
					return fmt.Errorf("storage: truncate patterns_fts: %w", err)
				}
				continue
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
				return fmt.Errorf("storage: truncate %s: %w", table, err)
			}
		}
		return tx.Commit()
	})
}
