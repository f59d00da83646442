package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/model"
)

// GetArm returns a Thompson-sampled arm by ID, or the Beta(1,1) prior if
// it has never been persisted.
func (db *DB) GetArm(ctx context.Context, armID string) (model.Arm, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT arm_id, kind, label, alpha, beta, updated_at FROM arms WHERE arm_id = ?`, armID)
	var a model.Arm
	var updatedAt string
	err := row.Scan(&a.ArmID, &a.Kind, &a.Label, &a.Alpha, &a.Beta, &updatedAt)
	if err == sql.ErrNoRows {
		kind, label := splitArmID(armID)
		return model.NewArm(kind, label), nil
	}
	if err != nil {
		return model.Arm{}, fmt.Errorf("storage: get arm: %w", err)
	}
	a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return model.Arm{}, fmt.Errorf("storage: parse arm updated_at: %w", err)
	}
	return a, nil
}

func splitArmID(armID string) (model.ArmKind, string) {
	for i := 0; i < len(armID); i++ {
		if armID[i] == ':' {
			return model.ArmKind(armID[:i]), armID[i+1:]
		}
	}
	return model.ArmPattern, armID
}

// UpsertArm persists an arm's current (alpha, beta) posterior.
func (db *DB) UpsertArm(ctx context.Context, a model.Arm, now time.Time) error {
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO arms (arm_id, kind, label, alpha, beta, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(arm_id) DO UPDATE SET alpha = excluded.alpha, beta = excluded.beta, updated_at = excluded.updated_at`,
			a.ArmID, a.Kind, a.Label, a.Alpha, a.Beta, now.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("storage: upsert arm: %w", err)
		}
		return nil
	})
}

// ListArms returns all persisted arms of a given kind, used to reload the
// Thompson sampler's posteriors at WARM boot.
func (db *DB) ListArms(ctx context.Context, kind model.ArmKind) ([]model.Arm, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT arm_id, kind, label, alpha, beta, updated_at FROM arms WHERE kind = ?`, kind)
	if err != nil {
		return nil, fmt.Errorf("storage: list arms: %w", err)
	}
	defer rows.Close()

	var out []model.Arm
	for rows.Next() {
		var a model.Arm
		var updatedAt string
		if err := rows.Scan(&a.ArmID, &a.Kind, &a.Label, &a.Alpha, &a.Beta, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan arm: %w", err)
		}
		a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("storage: parse arm updated_at: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetQTableEntry returns the persisted Q-value for (stateKey, action), or
// a zero-value entry if it has never been written.
func (db *DB) GetQTableEntry(ctx context.Context, stateKey, action string) (model.QTableEntry, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT state_key, action, value, episodes, updated_at FROM qtable_entries WHERE state_key = ? AND action = ?`,
		stateKey, action)
	var e model.QTableEntry
	var updatedAt string
	err := row.Scan(&e.StateKey, &e.Action, &e.Value, &e.Episodes, &updatedAt)
	if err == sql.ErrNoRows {
		return model.QTableEntry{StateKey: stateKey, Action: action}, nil
	}
	if err != nil {
		return model.QTableEntry{}, fmt.Errorf("storage: get qtable entry: %w", err)
	}
	e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return model.QTableEntry{}, fmt.Errorf("storage: parse qtable entry updated_at: %w", err)
	}
	return e, nil
}

// UpsertQTableEntry persists a TD(0)-updated Q-value.
func (db *DB) UpsertQTableEntry(ctx context.Context, e model.QTableEntry, now time.Time) error {
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO qtable_entries (state_key, action, value, episodes, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(state_key, action) DO UPDATE SET value = excluded.value, episodes = excluded.episodes, updated_at = excluded.updated_at`,
			e.StateKey, e.Action, e.Value, e.Episodes, now.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("storage: upsert qtable entry: %w", err)
		}
		return nil
	})
}

// ListAllQTableEntries returns every persisted Q-Table row across all
// state keys, used to fully reload the Learner's in-memory table at
// process startup (as opposed to ListQTableEntries, which scopes to one
// state).
func (db *DB) ListAllQTableEntries(ctx context.Context) ([]model.QTableEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT state_key, action, value, episodes, updated_at FROM qtable_entries`)
	if err != nil {
		return nil, fmt.Errorf("storage: list all qtable entries: %w", err)
	}
	defer rows.Close()

	var out []model.QTableEntry
	for rows.Next() {
		var e model.QTableEntry
		var updatedAt string
		if err := rows.Scan(&e.StateKey, &e.Action, &e.Value, &e.Episodes, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan qtable entry: %w", err)
		}
		e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("storage: parse qtable entry updated_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListQTableEntries returns every persisted Q-Table row for stateKey.
// Startup reload uses ListAllQTableEntries instead.
func (db *DB) ListQTableEntries(ctx context.Context, stateKey string) ([]model.QTableEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT state_key, action, value, episodes, updated_at FROM qtable_entries WHERE state_key = ?`, stateKey)
	if err != nil {
		return nil, fmt.Errorf("storage: list qtable entries: %w", err)
	}
	defer rows.Close()

	var out []model.QTableEntry
	for rows.Next() {
		var e model.QTableEntry
		var updatedAt string
		if err := rows.Scan(&e.StateKey, &e.Action, &e.Value, &e.Episodes, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan qtable entry: %w", err)
		}
		e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("storage: parse qtable entry updated_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
