package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/storage"
)

func (s *Server) registerTools() {
	// cynic_recall — surface facts and lessons relevant to a subject.
	s.mcpServer.AddTool(
		mcplib.NewTool("cynic_recall",
			mcplib.WithDescription(`Recall facts and lessons the kernel has learned about a subject.

WHEN TO USE: BEFORE acting on a nontrivial request. Facts are short,
reusable statements ("user prefers tabs over spaces"); lessons are longer
writeups of what worked or failed in a prior session.

EXAMPLE: before touching the auth module, call cynic_recall with
subject="auth" to see if a prior session already ran into a gotcha here.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("subject",
				mcplib.Description("What you're about to work on. Matched against fact subjects and lesson titles/tags; omit to get the user's highest-scoring facts overall."),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of facts and lessons to return, each"),
				mcplib.Min(1),
				mcplib.Max(50),
				mcplib.DefaultNumber(10),
			),
		),
		s.handleRecall,
	)

	// cynic_remember — store a short, reusable fact.
	s.mcpServer.AddTool(
		mcplib.NewTool("cynic_remember",
			mcplib.WithDescription(`Store a short, reusable fact about the user or their project.

IMPORTANT: call cynic_recall first so you don't store a duplicate of
something already known.

WHEN TO USE: after learning a durable preference, constraint, or
correction — something worth injecting into every future session, not a
one-off detail of this conversation.

EXAMPLE: fact_type="preference", subject="testing", content="user wants
table-driven tests, not testify suites"`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("fact_type",
				mcplib.Description(`Category: "preference", "constraint", "correction", or similar. Any string is accepted.`),
				mcplib.Required(),
			),
			mcplib.WithString("subject",
				mcplib.Description("Short topic this fact is about, used for later recall matching"),
				mcplib.Required(),
			),
			mcplib.WithString("content",
				mcplib.Description("The fact itself, stated plainly"),
				mcplib.Required(),
			),
			mcplib.WithNumber("confidence",
				mcplib.Description("How certain this fact is (0.0-1.0)"),
				mcplib.Min(0),
				mcplib.Max(1),
				mcplib.DefaultNumber(0.8),
			),
			mcplib.WithString("tags",
				mcplib.Description("Comma-separated tags for recall matching"),
			),
		),
		s.handleRemember,
	)

	// cynic_lesson — store a distilled writeup of what worked or failed.
	s.mcpServer.AddTool(
		mcplib.NewTool("cynic_lesson",
			mcplib.WithDescription(`Store a distilled lesson: what was tried, what happened, what to do
differently next time.

WHEN TO USE: at the end of a session that hit a nontrivial problem, or
when a multi-step approach turned out to be wrong and you want future
sessions to skip straight to what works.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("title",
				mcplib.Description("Short summary, e.g. 'retry storms under connection pool exhaustion'"),
				mcplib.Required(),
			),
			mcplib.WithString("body",
				mcplib.Description("The full lesson: context, what happened, the fix or the rule to follow next time"),
				mcplib.Required(),
			),
			mcplib.WithString("tags",
				mcplib.Description("Comma-separated tags for recall matching"),
			),
		),
		s.handleLesson,
	)

	// cynic_task — create or advance a tracked unit of work.
	s.mcpServer.AddTool(
		mcplib.NewTool("cynic_task",
			mcplib.WithDescription(`Create a task, or advance an existing one's status.

The usual order is open -> in_progress -> {done, abandoned}; the status is stored as given and the order is not checked.
Omit task_id to create a new task; pass it with a status to advance one.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("task_id",
				mcplib.Description("Existing task to update. Omit to create a new task."),
			),
			mcplib.WithString("title",
				mcplib.Description("Required when creating a new task"),
			),
			mcplib.WithString("detail",
				mcplib.Description("Optional longer description"),
			),
			mcplib.WithString("status",
				mcplib.Description(`One of "open", "in_progress", "done", "abandoned". Required when updating.`),
			),
			mcplib.WithString("goal_id",
				mcplib.Description("Optional goal this task belongs to"),
			),
		),
		s.handleTask,
	)

	// cynic_goal — create or advance a longer-lived objective.
	s.mcpServer.AddTool(
		mcplib.NewTool("cynic_goal",
			mcplib.WithDescription(`Create a goal, or resolve an existing one as achieved or abandoned.

Omit goal_id to create a new goal; pass it with a status to resolve one.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("goal_id",
				mcplib.Description("Existing goal to update. Omit to create a new goal."),
			),
			mcplib.WithString("title",
				mcplib.Description("Required when creating a new goal"),
			),
			mcplib.WithString("status",
				mcplib.Description(`One of "active", "achieved", "abandoned". Required when updating.`),
			),
		),
		s.handleGoal,
	)

	// cynic_recent — recent judgments and pending notifications.
	s.mcpServer.AddTool(
		mcplib.NewTool("cynic_recent",
			mcplib.WithDescription(`See the kernel's own recent judgments and any pending notifications
(e.g. "3 patterns were promoted to heuristics since last session").`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("session_id",
				mcplib.Description("Optional: limit judgments to this session"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of judgments to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(10),
			),
		),
		s.handleRecent,
	)
}

func (s *Server) handleRecall(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	subject := strings.TrimSpace(request.GetString("subject", ""))
	limit := request.GetInt("limit", 10)

	if subject != "" {
		s.recallTracker.Record(subject)
	}

	facts, err := s.db.FindFactsByUser(ctx, s.userID, 200)
	if err != nil {
		return errorResult(fmt.Sprintf("recall facts failed: %v", err)), nil
	}
	lessons, err := s.db.FindLessonsByUser(ctx, s.userID, 200)
	if err != nil {
		return errorResult(fmt.Sprintf("recall lessons failed: %v", err)), nil
	}

	if rankedFacts, rankedLessons, ok := s.semanticRecall(ctx, subject, facts, lessons, limit); ok {
		facts, lessons = rankedFacts, rankedLessons
	} else {
		facts = filterFacts(facts, subject, limit)
		lessons = filterLessons(lessons, subject, limit)
	}

	for _, f := range facts {
		_ = s.db.RecordFactAccess(ctx, f.FactID)
	}

	result := map[string]any{
		"facts":   facts,
		"lessons": lessons,
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	return textResult(string(data)), nil
}

// filterFacts keeps facts whose subject or tags match query (substring,
// case-insensitive), or all of them if query is empty, already sorted by
// retrieval score since FindFactsByUser orders that way. Caps at limit.
func filterFacts(facts []model.Fact, query string, limit int) []model.Fact {
	if query != "" {
		q := strings.ToLower(query)
		var kept []model.Fact
		for _, f := range facts {
			if strings.Contains(strings.ToLower(f.Subject), q) || tagsMatch(f.Tags, q) {
				kept = append(kept, f)
			}
		}
		facts = kept
	}
	if limit > 0 && len(facts) > limit {
		facts = facts[:limit]
	}
	return facts
}

func filterLessons(lessons []model.Lesson, query string, limit int) []model.Lesson {
	if query != "" {
		q := strings.ToLower(query)
		var kept []model.Lesson
		for _, l := range lessons {
			if strings.Contains(strings.ToLower(l.Title), q) || tagsMatch(l.Tags, q) {
				kept = append(kept, l)
			}
		}
		lessons = kept
	}
	if limit > 0 && len(lessons) > limit {
		lessons = lessons[:limit]
	}
	return lessons
}

func tagsMatch(tags []string, q string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Server) handleRemember(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	factType := request.GetString("fact_type", "")
	subject := request.GetString("subject", "")
	content := request.GetString("content", "")
	if factType == "" || subject == "" || content == "" {
		return errorResult("fact_type, subject, and content are required"), nil
	}
	confidence := request.GetFloat("confidence", 0.8)
	tags := splitTags(request.GetString("tags", ""))

	f, err := s.db.CreateFact(ctx, model.Fact{
		UserID:     s.userID,
		FactType:   factType,
		Subject:    subject,
		Content:    content,
		Confidence: confidence,
		Relevance:  1.0,
		Tags:       tags,
	}, nil)
	if err != nil {
		return errorResult(fmt.Sprintf("remember failed: %v", err)), nil
	}
	s.indexFact(ctx, f)

	warning := ""
	if !s.recallTracker.WasRecalled(subject) {
		warning = " (note: cynic_recall wasn't called for this subject first — check it wasn't already known)"
	}

	data, _ := json.MarshalIndent(f, "", "  ")
	return textResult(string(data) + warning), nil
}

func (s *Server) handleLesson(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	title := request.GetString("title", "")
	body := request.GetString("body", "")
	if title == "" || body == "" {
		return errorResult("title and body are required"), nil
	}
	tags := splitTags(request.GetString("tags", ""))
	now := time.Now().UTC()

	draft := model.Lesson{
		LessonID:  idgen.New(idgen.PrefixLesson),
		UserID:    s.userID,
		Title:     title,
		Body:      body,
		Tags:      tags,
		CreatedAt: now,
	}
	embedding := s.indexLesson(ctx, draft)

	l, err := s.db.CreateLesson(ctx, draft, embedding, now)
	if err != nil {
		return errorResult(fmt.Sprintf("lesson failed: %v", err)), nil
	}
	data, _ := json.MarshalIndent(l, "", "  ")
	return textResult(string(data)), nil
}

func (s *Server) handleTask(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	now := time.Now().UTC()
	taskID := request.GetString("task_id", "")

	if taskID == "" {
		title := request.GetString("title", "")
		if title == "" {
			return errorResult("title is required to create a task"), nil
		}
		var goalID *string
		if g := request.GetString("goal_id", ""); g != "" {
			goalID = &g
		}
		t, err := s.db.CreateTask(ctx, model.Task{
			UserID: s.userID,
			Title:  title,
			Detail: request.GetString("detail", ""),
			GoalID: goalID,
		}, now)
		if err != nil {
			return errorResult(fmt.Sprintf("create task failed: %v", err)), nil
		}
		data, _ := json.MarshalIndent(t, "", "  ")
		return textResult(string(data)), nil
	}

	status := model.TaskStatus(request.GetString("status", ""))
	if status == "" {
		return errorResult("status is required to update a task"), nil
	}
	if err := s.db.UpdateTaskStatus(ctx, taskID, status, now); err != nil {
		return errorResult(fmt.Sprintf("update task failed: %v", err)), nil
	}
	return textResult(fmt.Sprintf(`{"task_id":%q,"status":%q}`, taskID, status)), nil
}

func (s *Server) handleGoal(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	now := time.Now().UTC()
	goalID := request.GetString("goal_id", "")

	if goalID == "" {
		title := request.GetString("title", "")
		if title == "" {
			return errorResult("title is required to create a goal"), nil
		}
		g, err := s.db.CreateGoal(ctx, model.Goal{UserID: s.userID, Title: title}, now)
		if err != nil {
			return errorResult(fmt.Sprintf("create goal failed: %v", err)), nil
		}
		data, _ := json.MarshalIndent(g, "", "  ")
		return textResult(string(data)), nil
	}

	status := model.GoalStatus(request.GetString("status", ""))
	if status == "" {
		return errorResult("status is required to update a goal"), nil
	}
	if err := s.db.UpdateGoalStatus(ctx, goalID, status, now); err != nil {
		return errorResult(fmt.Sprintf("update goal failed: %v", err)), nil
	}
	return textResult(fmt.Sprintf(`{"goal_id":%q,"status":%q}`, goalID, status)), nil
}

func (s *Server) handleRecent(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	limit := request.GetInt("limit", 10)

	opts := storage.FindJudgmentsOpts{Limit: limit}
	if sessionID != "" {
		opts.SessionID = &sessionID
	}
	judgments, err := s.db.FindJudgments(ctx, opts)
	if err != nil {
		return errorResult(fmt.Sprintf("recent judgments failed: %v", err)), nil
	}
	notifications, err := s.db.FindPendingNotifications(ctx, s.userID)
	if err != nil {
		return errorResult(fmt.Sprintf("recent notifications failed: %v", err)), nil
	}

	result := map[string]any{
		"judgments":     judgments,
		"notifications": notifications,
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	return textResult(string(data)), nil
}
