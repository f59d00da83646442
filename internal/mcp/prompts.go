package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// before-task — guides the agent through recalling relevant memory first.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("before-task",
			mcplib.WithPromptDescription("Guide for recalling relevant facts and lessons before starting work"),
			mcplib.WithArgument("subject",
				mcplib.ArgumentDescription("What you're about to work on (e.g. auth, testing, deployment)"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleBeforeTaskPrompt,
	)

	// after-lesson — reminds the agent to distill what it learned.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("after-lesson",
			mcplib.WithPromptDescription("Reminder to record a lesson after a nontrivial problem"),
			mcplib.WithArgument("subject",
				mcplib.ArgumentDescription("What the lesson is about"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleAfterLessonPrompt,
	)

	// kernel-setup — full system prompt snippet explaining the recall/remember workflow.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("kernel-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining the Cynic kernel's recall/remember workflow"),
		),
		s.handleKernelSetupPrompt,
	)
}

func (s *Server) handleBeforeTaskPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	subject := request.Params.Arguments["subject"]
	if subject == "" {
		return nil, fmt.Errorf("subject argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Recall memory about %s before starting", subject),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Before working on %s, follow these steps:

1. CALL cynic_recall with subject="%s" to surface any facts and lessons
   the kernel already knows here.

2. REVIEW the response:
   - Facts are short, reusable statements. Treat them as constraints
     unless you have strong reason to diverge.
   - Lessons are distilled writeups of what worked or failed. Read them
     before repeating a prior approach.

3. DO the work, applying what you recalled.

4. AFTER: if you learned something durable, call cynic_remember (a short
   fact) or cynic_lesson (a longer writeup).`, subject, subject),
				},
			},
		},
	}, nil
}

func (s *Server) handleAfterLessonPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	subject := request.Params.Arguments["subject"]
	if subject == "" {
		return nil, fmt.Errorf("subject argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Record a lesson about %s", subject),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`You just worked through something nontrivial involving %s. Record it
now so future sessions skip straight to what works.

CALL cynic_lesson with:
- title: a short summary someone could recognize at a glance
- body: what happened, what you tried that failed, what to do instead
- tags: a few words for later recall matching`, subject),
				},
			},
		},
	}, nil
}

func (s *Server) handleKernelSetupPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Cynic kernel recall/remember workflow",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You have access to the Cynic kernel, a durable memory store for AI agents.

## The Pattern: Recall Before, Remember After

### Before acting:
Call cynic_recall with a subject to surface facts and lessons from prior
sessions. Use them to avoid repeating past mistakes.

### After acting:
Call cynic_remember (short, reusable facts) or cynic_lesson (a distilled
writeup of what worked or failed) when you learn something durable.

## Available Tools

- cynic_recall: surface facts and lessons before acting (use FIRST)
- cynic_remember: store a short, reusable fact (use AFTER learning one)
- cynic_lesson: store a distilled writeup of what worked or failed
- cynic_task / cynic_goal: track multi-step work and longer-lived objectives
- cynic_recent: see the kernel's recent judgments and pending notifications

## Be Selective

Facts and lessons are injected into every future session up to a budget.
Store what will matter later, not every detail of this one.`,
				},
			},
		},
	}, nil
}
