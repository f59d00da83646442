package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/akashi/internal/model"
)

func (s *Server) registerResources() {
	// cynic://facts/recent — the user's highest-scoring stored facts.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"cynic://facts/recent",
			"Recent Facts",
			mcplib.WithResourceDescription("The user's facts, ordered by retrieval score"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleFactsRecent,
	)

	// cynic://tasks/open — tasks not yet done or abandoned.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"cynic://tasks/open",
			"Open Tasks",
			mcplib.WithResourceDescription("Tasks in open or in_progress status"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleTasksOpen,
	)

	// cynic://goal/{id}/tasks — a single goal's tasks.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"cynic://goal/{id}/tasks",
			"Goal Tasks",
			mcplib.WithTemplateDescription("Tasks belonging to a specific goal"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleGoalTasks,
	)
}

func (s *Server) handleFactsRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	facts, err := s.db.FindFactsByUser(ctx, s.userID, 50)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent facts: %w", err)
	}
	data, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal facts: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "cynic://facts/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleTasksOpen(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	open := model.TaskStatusOpen
	tasks, err := s.db.FindTasksByUser(ctx, s.userID, &open)
	if err != nil {
		return nil, fmt.Errorf("mcp: open tasks: %w", err)
	}
	inProgress := model.TaskStatusInProgress
	more, err := s.db.FindTasksByUser(ctx, s.userID, &inProgress)
	if err != nil {
		return nil, fmt.Errorf("mcp: in-progress tasks: %w", err)
	}
	tasks = append(tasks, more...)

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal tasks: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "cynic://tasks/open",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleGoalTasks(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	goalID, err := parseGoalTasksURI(uri)
	if err != nil {
		return nil, err
	}

	tasks, err := s.db.FindTasksByUser(ctx, s.userID, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: goal tasks: %w", err)
	}
	var matched []model.Task
	for _, t := range tasks {
		if t.GoalID != nil && *t.GoalID == goalID {
			matched = append(matched, t)
		}
	}

	data, err := json.MarshalIndent(map[string]any{
		"goal_id": goalID,
		"tasks":   matched,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal goal tasks: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// parseGoalTasksURI extracts the goal id from "cynic://goal/{id}/tasks".
func parseGoalTasksURI(uri string) (string, error) {
	const prefix = "cynic://goal/"
	const suffix = "/tasks"

	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return "", fmt.Errorf("mcp: invalid goal tasks URI: %s", uri)
	}
	goalID := uri[len(prefix) : len(uri)-len(suffix)]
	if goalID == "" {
		return "", fmt.Errorf("mcp: empty goal id in URI: %s", uri)
	}
	return goalID, nil
}
