package model

import "time"

// This file defines the collaborator entities named in the data model
// (Task / Goal / Notification / Lesson / Decision / Memory): standard
// CRUD rows with status enums, full-text search, and (Lesson) an optional
// vector column for similarity retrieval. Orphan feedback referencing
// these is allowed — none of them require a Judgment to exist.

// Status enums shared by the collaborator entities.
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusAbandoned  TaskStatus = "abandoned"
)

// Task is a unit of work the host assistant is tracking on behalf of the
// user. Its status normally moves open -> in_progress -> {done, abandoned};
// storage does not check that order, so a move back to open is accepted.
type Task struct {
	TaskID    string     `json:"task_id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Detail    string     `json:"detail,omitempty"`
	Status    TaskStatus `json:"status"`
	GoalID    *string    `json:"goal_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusAchieved  GoalStatus = "achieved"
	GoalStatusAbandoned GoalStatus = "abandoned"
)

// Goal is a longer-lived objective a Task may belong to.
type Goal struct {
	GoalID    string     `json:"goal_id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Status    GoalStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSeen    NotificationStatus = "seen"
	NotificationStatusDismissed NotificationStatus = "dismissed"
)

// Notification is a pending item surfaced to the user at session start
// (e.g. "3 patterns were promoted to heuristics since last session").
type Notification struct {
	NotificationID string             `json:"notification_id"`
	UserID         string             `json:"user_id"`
	Message        string             `json:"message"`
	Status         NotificationStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Lesson is a distilled, retrievable piece of learned guidance with an
// optional embedding for vector similarity search (see internal/search).
type Lesson struct {
	LessonID   string    `json:"lesson_id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Tags       []string  `json:"tags,omitempty"`
	HasVector  bool      `json:"has_vector"`
	CreatedAt  time.Time `json:"created_at"`
}

type DecisionStatus string

const (
	DecisionStatusProposed DecisionStatus = "proposed"
	DecisionStatusAccepted DecisionStatus = "accepted"
	DecisionStatusRejected DecisionStatus = "rejected"
)

// CollaboratorDecision is a host-assistant-facing decision record,
// distinct from the RL-internal state; named with the Collaborator
// prefix to avoid colliding with a future trace-style Decision type.
type CollaboratorDecision struct {
	DecisionID string         `json:"decision_id"`
	UserID     string         `json:"user_id"`
	Summary    string         `json:"summary"`
	Status     DecisionStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Memory is a free-form remembered note, searchable by full text and
// optionally by vector similarity alongside Lesson and Fact.
type Memory struct {
	MemoryID  string    `json:"memory_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	HasVector bool      `json:"has_vector"`
	CreatedAt time.Time `json:"created_at"`
}
