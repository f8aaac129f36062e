package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aatumaykin/feedpilot/internal/actions"
	"github.com/aatumaykin/feedpilot/internal/agent"
	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/llm"
	"github.com/aatumaykin/feedpilot/internal/logger"
)

// ContentCreator generates original posts, threads and replies in the
// account's voice and publishes them through the action executor.
type ContentCreator struct {
	base
	executor actions.Executor
}

// NewContentCreator creates the content creation handler.
func NewContentCreator(provider llm.Provider, model string, executor actions.Executor, log *logger.Logger) *ContentCreator {
	return &ContentCreator{
		base: newBase(agent.RoleContentCreator,
			[]string{"create_post", "create_thread", "write_reply", "generate_content"},
			provider, model, log),
		executor: executor,
	}
}

func (h *ContentCreator) Execute(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	switch task.Type {
	case "create_post":
		return h.createPost(ctx, task, account)
	case "create_thread":
		return h.createThread(ctx, task, account)
	case "write_reply":
		return h.writeReply(ctx, task, account)
	case "generate_content":
		return h.generateContent(ctx, task, account)
	default:
		return h.unsupported(task)
	}
}

func (h *ContentCreator) createPost(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	text, err := h.generate(ctx, h.voicePrompt(account,
		fmt.Sprintf("Write a single social media post. %s\nRespond with only the post text, no quotes.", task.Description)))
	if err != nil {
		return nil, fmt.Errorf("post generation failed: %w", err)
	}
	text = strings.TrimSpace(text)
	postID, err := h.executor.Post(ctx, account.ID, text)
	if err != nil {
		return nil, fmt.Errorf("publishing failed: %w", err)
	}
	return &agent.TaskResult{
		Success: true,
		Output:  map[string]any{"post_id": postID, "text": text},
	}, nil
}

func (h *ContentCreator) createThread(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	raw, err := h.generate(ctx, h.voicePrompt(account,
		fmt.Sprintf("Write a thread of 3 to 5 connected social media posts. %s\nRespond with ONLY a JSON array of strings, one per post.", task.Description)))
	if err != nil {
		return nil, fmt.Errorf("thread generation failed: %w", err)
	}
	var parts []string
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(raw)), &parts); err != nil {
		return nil, fmt.Errorf("thread response is not a JSON array: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("thread generation produced no posts")
	}

	ids := make([]string, 0, len(parts))
	firstID, err := h.executor.Post(ctx, account.ID, strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("publishing thread head failed: %w", err)
	}
	ids = append(ids, firstID)
	prev := firstID
	for _, part := range parts[1:] {
		id, err := h.executor.Reply(ctx, account.ID, prev, strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("publishing thread part failed: %w", err)
		}
		ids = append(ids, id)
		prev = id
	}
	return &agent.TaskResult{
		Success: true,
		Output:  map[string]any{"post_ids": ids, "length": len(ids)},
	}, nil
}

func (h *ContentCreator) writeReply(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	targetID := stringParam(task.Parameters, "target_id")
	if targetID == "" {
		return nil, fmt.Errorf("write_reply requires a target_id parameter")
	}
	original := stringParam(task.Parameters, "original_text")
	text, err := h.generate(ctx, h.voicePrompt(account,
		fmt.Sprintf("Write a reply to this post: %q\n%s\nRespond with only the reply text.", original, task.Description)))
	if err != nil {
		return nil, fmt.Errorf("reply generation failed: %w", err)
	}
	replyID, err := h.executor.Reply(ctx, account.ID, targetID, strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("publishing reply failed: %w", err)
	}
	return &agent.TaskResult{
		Success: true,
		Output:  map[string]any{"reply_id": replyID, "target_id": targetID},
	}, nil
}

// generateContent produces content without publishing it, for drafts and
// scheduled use.
func (h *ContentCreator) generateContent(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	text, err := h.generate(ctx, h.voicePrompt(account,
		fmt.Sprintf("Draft content for later use. %s\nRespond with only the content.", task.Description)))
	if err != nil {
		return nil, fmt.Errorf("content generation failed: %w", err)
	}
	return &agent.TaskResult{
		Success: true,
		Output:  map[string]any{"text": strings.TrimSpace(text), "draft": true},
	}, nil
}

func (h *ContentCreator) voicePrompt(account config.Account, instruction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write for the account @%s.\n", account.Username)
	if account.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", account.Personality)
	}
	if account.Niche != "" {
		fmt.Fprintf(&b, "Niche: %s\n", account.Niche)
	}
	if len(account.TargetKeywords) > 0 {
		fmt.Fprintf(&b, "Relevant topics: %s\n", strings.Join(account.TargetKeywords, ", "))
	}
	b.WriteString("\n")
	b.WriteString(instruction)
	return b.String()
}
