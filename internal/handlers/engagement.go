package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aatumaykin/feedpilot/internal/actions"
	"github.com/aatumaykin/feedpilot/internal/agent"
	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/llm"
	"github.com/aatumaykin/feedpilot/internal/logger"
)

// EngagementManager handles interactions: replying to mentions, liking,
// reposting, following and general community engagement.
type EngagementManager struct {
	base
	executor actions.Executor
}

// NewEngagementManager creates the engagement handler.
func NewEngagementManager(provider llm.Provider, model string, executor actions.Executor, log *logger.Logger) *EngagementManager {
	return &EngagementManager{
		base: newBase(agent.RoleEngagementManager,
			[]string{"reply_to_mention", "like_posts", "repost_content", "follow_accounts", "engage_community"},
			provider, model, log),
		executor: executor,
	}
}

func (h *EngagementManager) Execute(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	switch task.Type {
	case "reply_to_mention":
		return h.replyToMention(ctx, task, account)
	case "like_posts":
		return h.forEachTarget(ctx, task, account, "liked", h.executor.Like)
	case "repost_content":
		return h.forEachTarget(ctx, task, account, "reposted", h.executor.Repost)
	case "follow_accounts":
		return h.forEachTarget(ctx, task, account, "followed", h.executor.Follow)
	case "engage_community":
		return h.engageCommunity(ctx, task, account)
	default:
		return h.unsupported(task)
	}
}

func (h *EngagementManager) replyToMention(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	mentionID := stringParam(task.Parameters, "mention_id")
	if mentionID == "" {
		return nil, fmt.Errorf("reply_to_mention requires a mention_id parameter")
	}
	mentionText := stringParam(task.Parameters, "mention_text")

	text, err := h.generate(ctx, fmt.Sprintf(
		"You manage engagement for @%s (%s).\nSomeone mentioned the account: %q\nWrite a friendly, on-brand reply. Respond with only the reply text.",
		account.Username, account.Personality, mentionText))
	if err != nil {
		return nil, fmt.Errorf("reply generation failed: %w", err)
	}
	replyID, err := h.executor.Reply(ctx, account.ID, mentionID, strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("publishing reply failed: %w", err)
	}
	return &agent.TaskResult{
		Success: true,
		Output:  map[string]any{"reply_id": replyID, "mention_id": mentionID},
	}, nil
}

// forEachTarget applies one executor action to every id in the targets
// parameter. Per-target failures are collected, not fatal; the task succeeds
// if at least one target was processed.
func (h *EngagementManager) forEachTarget(ctx context.Context, task *agent.Task, account config.Account, key string, action func(context.Context, string, string) error) (*agent.TaskResult, error) {
	targets := targetsParam(task.Parameters)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%s requires a non-empty targets parameter", task.Type)
	}
	var done []string
	var failures []string
	for _, target := range targets {
		if err := action(ctx, account.ID, target); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", target, err))
			continue
		}
		done = append(done, target)
	}
	if len(done) == 0 {
		return nil, fmt.Errorf("%s failed for all targets: %s", task.Type, strings.Join(failures, "; "))
	}
	out := map[string]any{key: done, "count": len(done)}
	if len(failures) > 0 {
		out["failures"] = failures
	}
	return &agent.TaskResult{Success: true, Output: out}, nil
}

// engageCommunity drafts a conversational post to prompt interaction.
func (h *EngagementManager) engageCommunity(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	text, err := h.generate(ctx, fmt.Sprintf(
		"You manage engagement for @%s in the %s niche.\n%s\nWrite a short post that invites the community to respond (a question or discussion starter). Respond with only the post text.",
		account.Username, account.Niche, task.Description))
	if err != nil {
		return nil, fmt.Errorf("community post generation failed: %w", err)
	}
	postID, err := h.executor.Post(ctx, account.ID, strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("publishing failed: %w", err)
	}
	return &agent.TaskResult{
		Success: true,
		Output:  map[string]any{"post_id": postID},
	}, nil
}

// targetsParam reads the targets parameter as a string list. JSON decoding
// yields []any, so both representations are accepted.
func targetsParam(params map[string]any) []string {
	if params == nil {
		return nil
	}
	switch v := params["targets"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
