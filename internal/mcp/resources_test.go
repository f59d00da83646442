package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resourceRequest(uri string) mcplib.ReadResourceRequest {
	return mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: uri},
	}
}

func TestHandleFactsRecent(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleRemember(ctx, toolRequest("cynic_remember", map[string]any{
		"fact_type": "preference",
		"subject":   "testing",
		"content":   "user wants table-driven tests",
	}))
	require.NoError(t, err)

	contents, err := s.handleFactsRecent(ctx, resourceRequest("cynic://facts/recent"))
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	var facts []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &facts))
	assert.Len(t, facts, 1)
}

func TestHandleTasksOpen_IncludesInProgress(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleTask(ctx, toolRequest("cynic_task", map[string]any{"title": "first task"}))
	require.NoError(t, err)

	result, err := s.handleTask(ctx, toolRequest("cynic_task", map[string]any{"title": "second task"}))
	require.NoError(t, err)
	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &second))
	_, err = s.handleTask(ctx, toolRequest("cynic_task", map[string]any{
		"task_id": second["task_id"],
		"status":  "in_progress",
	}))
	require.NoError(t, err)

	contents, err := s.handleTasksOpen(ctx, resourceRequest("cynic://tasks/open"))
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text := contents[0].(mcplib.TextResourceContents)
	var tasks []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &tasks))
	assert.Len(t, tasks, 2)
}

func TestHandleGoalTasks(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	goalResult, err := s.handleGoal(ctx, toolRequest("cynic_goal", map[string]any{"title": "ship it"}))
	require.NoError(t, err)
	var goal map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, goalResult)), &goal))
	goalID := goal["goal_id"].(string)

	_, err = s.handleTask(ctx, toolRequest("cynic_task", map[string]any{
		"title":   "a task for the goal",
		"goal_id": goalID,
	}))
	require.NoError(t, err)
	_, err = s.handleTask(ctx, toolRequest("cynic_task", map[string]any{"title": "unrelated task"}))
	require.NoError(t, err)

	uri := "cynic://goal/" + goalID + "/tasks"
	contents, err := s.handleGoalTasks(ctx, resourceRequest(uri))
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text := contents[0].(mcplib.TextResourceContents)
	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &resp))
	tasks := resp["tasks"].([]any)
	assert.Len(t, tasks, 1)
}

func TestParseGoalTasksURI(t *testing.T) {
	id, err := parseGoalTasksURI("cynic://goal/g123/tasks")
	require.NoError(t, err)
	assert.Equal(t, "g123", id)

	_, err = parseGoalTasksURI("cynic://goal//tasks")
	assert.Error(t, err)

	_, err = parseGoalTasksURI("not-a-uri")
	assert.Error(t, err)
}
