package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
)

// CreateTask inserts a new task in TaskStatusOpen.
func (db *DB) CreateTask(ctx context.Context, t model.Task, now time.Time) (model.Task, error) {
	if t.TaskID == "" {
		t.TaskID = idgen.New(idgen.PrefixTask)
	}
	if t.Status == "" {
		t.Status = model.TaskStatusOpen
	}
	t.CreatedAt, t.UpdatedAt = now, now

	err := db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO tasks (task_id, user_id, title, detail, status, goal_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.TaskID, t.UserID, t.Title, nullIfEmpty(t.Detail), t.Status, t.GoalID,
			t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return model.Task{}, fmt.Errorf("storage: create task: %w", err)
	}
	return t, nil
}

// UpdateTaskStatus writes a task's status as given. Neither this method
// nor its caller in internal/mcp checks the open -> in_progress ->
// {done, abandoned} order, so any transition is accepted.
func (db *DB) UpdateTaskStatus(ctx context.Context, taskID string, status model.TaskStatus, now time.Time) error {
	return db.withWriteRetry(ctx, func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE task_id = ?`,
			status, now.Format(time.RFC3339Nano), taskID)
		if err != nil {
			return fmt.Errorf("storage: update task status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// FindTasksByUser returns a user's tasks, optionally filtered by status.
func (db *DB) FindTasksByUser(ctx context.Context, userID string, status *model.TaskStatus) ([]model.Task, error) {
	query := `SELECT task_id, user_id, title, detail, status, goal_id, created_at, updated_at FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: find tasks by user: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (model.Task, error) {
	var t model.Task
	var detail, goalID sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&t.TaskID, &t.UserID, &t.Title, &detail, &t.Status, &goalID, &createdAt, &updatedAt); err != nil {
		return model.Task{}, err
	}
	t.Detail = detail.String
	if goalID.Valid {
		t.GoalID = &goalID.String
	}
	var err error
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Task{}, err
	}
	t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// CreateGoal inserts a new goal in GoalStatusActive.
func (db *DB) CreateGoal(ctx context.Context, g model.Goal, now time.Time) (model.Goal, error) {
	if g.GoalID == "" {
		g.GoalID = idgen.New(idgen.PrefixGoal)
	}
	if g.Status == "" {
		g.Status = model.GoalStatusActive
	}
	g.CreatedAt, g.UpdatedAt = now, now

	err := db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO goals (goal_id, user_id, title, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			g.GoalID, g.UserID, g.Title, g.Status, g.CreatedAt.Format(time.RFC3339Nano), g.UpdatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return model.Goal{}, fmt.Errorf("storage: create goal: %w", err)
	}
	return g, nil
}

// UpdateGoalStatus sets a goal's terminal or active status.
func (db *DB) UpdateGoalStatus(ctx context.Context, goalID string, status model.GoalStatus, now time.Time) error {
	return db.withWriteRetry(ctx, func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE goals SET status = ?, updated_at = ? WHERE goal_id = ?`, status, now.Format(time.RFC3339Nano), goalID)
		if err != nil {
			return fmt.Errorf("storage: update goal status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// FindGoalsByUser returns all of a user's goals, newest first.
func (db *DB) FindGoalsByUser(ctx context.Context, userID string) ([]model.Goal, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT goal_id, user_id, title, status, created_at, updated_at FROM goals WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: find goals by user: %w", err)
	}
	defer rows.Close()

	var out []model.Goal
	for rows.Next() {
		var g model.Goal
		var createdAt, updatedAt string
		if err := rows.Scan(&g.GoalID, &g.UserID, &g.Title, &g.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan goal: %w", err)
		}
		g.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		g.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CreateNotification inserts a pending notification.
func (db *DB) CreateNotification(ctx context.Context, n model.Notification, now time.Time) (model.Notification, error) {
	if n.NotificationID == "" {
		n.NotificationID = idgen.New(idgen.PrefixNotification)
	}
	if n.Status == "" {
		n.Status = model.NotificationStatusPending
	}
	n.CreatedAt = now

	err := db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO notifications (notification_id, user_id, message, status, created_at) VALUES (?, ?, ?, ?, ?)`,
			n.NotificationID, n.UserID, n.Message, n.Status, n.CreatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return model.Notification{}, fmt.Errorf("storage: create notification: %w", err)
	}
	return n, nil
}

// FindPendingNotifications returns a user's pending notifications, surfaced
// by the Session Orchestrator at boot.
func (db *DB) FindPendingNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT notification_id, user_id, message, status, created_at FROM notifications
		 WHERE user_id = ? AND status = ? ORDER BY created_at ASC`, userID, model.NotificationStatusPending)
	if err != nil {
		return nil, fmt.Errorf("storage: find pending notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var createdAt string
		if err := rows.Scan(&n.NotificationID, &n.UserID, &n.Message, &n.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan notification: %w", err)
		}
		n.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationSeen transitions a notification out of pending.
func (db *DB) MarkNotificationSeen(ctx context.Context, notificationID string) error {
	return db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE notifications SET status = ? WHERE notification_id = ?`, model.NotificationStatusSeen, notificationID)
		if err != nil {
			return fmt.Errorf("storage: mark notification seen: %w", err)
		}
		return nil
	})
}

// CreateLesson inserts a distilled lesson, with an optional embedding for
// vector similarity search.
func (db *DB) CreateLesson(ctx context.Context, l model.Lesson, embedding []byte, now time.Time) (model.Lesson, error) {
	if l.LessonID == "" {
		l.LessonID = idgen.New(idgen.PrefixLesson)
	}
	l.CreatedAt = now
	l.HasVector = embedding != nil
	tags, err := jsonEncode(l.Tags)
	if err != nil {
		return model.Lesson{}, fmt.Errorf("storage: encode lesson tags: %w", err)
	}

	err = db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO lessons (lesson_id, user_id, title, body, tags, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.LessonID, l.UserID, l.Title, l.Body, nullIfEmpty(tags), embedding, l.CreatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return model.Lesson{}, fmt.Errorf("storage: create lesson: %w", err)
	}
	return l, nil
}

// FindLessonsByUser returns a user's lessons newest first.
func (db *DB) FindLessonsByUser(ctx context.Context, userID string, limit int) ([]model.Lesson, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT lesson_id, user_id, title, body, tags, embedding, created_at FROM lessons
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: find lessons by user: %w", err)
	}
	defer rows.Close()

	var out []model.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan lesson: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLesson(row rowScanner) (model.Lesson, error) {
	var l model.Lesson
	var tags sql.NullString
	var embedding []byte
	var createdAt string
	if err := row.Scan(&l.LessonID, &l.UserID, &l.Title, &l.Body, &tags, &embedding, &createdAt); err != nil {
		return model.Lesson{}, err
	}
	l.HasVector = embedding != nil
	var err error
	if tags.Valid {
		l.Tags, err = jsonDecode[[]string](tags.String)
		if err != nil {
			return model.Lesson{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	l.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Lesson{}, err
	}
	return l, nil
}

// CreateCollaboratorDecision inserts a host-assistant-facing decision
// record in DecisionStatusProposed.
func (db *DB) CreateCollaboratorDecision(ctx context.Context, d model.CollaboratorDecision, now time.Time) (model.CollaboratorDecision, error) {
	if d.DecisionID == "" {
		d.DecisionID = idgen.New(idgen.PrefixDecision)
	}
	if d.Status == "" {
		d.Status = model.DecisionStatusProposed
	}
	d.CreatedAt = now

	err := db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO collaborator_decisions (decision_id, user_id, summary, status, created_at) VALUES (?, ?, ?, ?, ?)`,
			d.DecisionID, d.UserID, d.Summary, d.Status, d.CreatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return model.CollaboratorDecision{}, fmt.Errorf("storage: create collaborator decision: %w", err)
	}
	return d, nil
}

// UpdateCollaboratorDecisionStatus resolves a proposed decision.
func (db *DB) UpdateCollaboratorDecisionStatus(ctx context.Context, decisionID string, status model.DecisionStatus) error {
	return db.withWriteRetry(ctx, func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE collaborator_decisions SET status = ? WHERE decision_id = ?`, status, decisionID)
		if err != nil {
			return fmt.Errorf("storage: update collaborator decision status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateMemory inserts a free-form remembered note, with an optional
// embedding for vector similarity search.
func (db *DB) CreateMemory(ctx context.Context, m model.Memory, embedding []byte, now time.Time) (model.Memory, error) {
	if m.MemoryID == "" {
		m.MemoryID = idgen.New(idgen.PrefixMemory)
	}
	m.CreatedAt = now
	m.HasVector = embedding != nil

	err := db.withWriteRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO memories (memory_id, user_id, content, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
			m.MemoryID, m.UserID, m.Content, embedding, m.CreatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return model.Memory{}, fmt.Errorf("storage: create memory: %w", err)
	}
	return m, nil
}

// FindMemoriesByUser returns a user's memories newest first.
func (db *DB) FindMemoriesByUser(ctx context.Context, userID string, limit int) ([]model.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT memory_id, user_id, content, embedding, created_at FROM memories
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: find memories by user: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		var m model.Memory
		var embedding []byte
		var createdAt string
		if err := rows.Scan(&m.MemoryID, &m.UserID, &m.Content, &embedding, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan memory: %w", err)
		}
		m.HasVector = embedding != nil
		m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
