package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aatumaykin/feedpilot/internal/agent"
	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/fetch"
	"github.com/aatumaykin/feedpilot/internal/llm"
	"github.com/aatumaykin/feedpilot/internal/logger"
)

// promptContentLimit bounds how much fetched page text goes into a prompt.
const promptContentLimit = 4000

// ContentCurator discovers and evaluates external content for an account:
// trending topics, curation candidates and opportunity discovery. The
// analyze_content task fetches a real page and summarizes it.
type ContentCurator struct {
	base
	fetcher *fetch.Fetcher
}

// NewContentCurator creates the curation handler. The fetcher may be nil,
// in which case analyze_content fails with a descriptive error.
func NewContentCurator(provider llm.Provider, model string, fetcher *fetch.Fetcher, log *logger.Logger) *ContentCurator {
	return &ContentCurator{
		base: newBase(agent.RoleContentCurator,
			[]string{"curate_content", "find_trending", "analyze_content", "discover_opportunities"},
			provider, model, log),
		fetcher: fetcher,
	}
}

func (h *ContentCurator) Execute(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	switch task.Type {
	case "curate_content":
		return h.listResult(ctx, task, account, "curated",
			"Suggest 3 to 5 pieces of content worth sharing with this audience, with a one-line rationale each.")
	case "find_trending":
		return h.listResult(ctx, task, account, "trending",
			"List 3 to 5 topics likely trending in this niche right now, with a one-line angle each.")
	case "analyze_content":
		return h.analyzeContent(ctx, task, account)
	case "discover_opportunities":
		return h.listResult(ctx, task, account, "opportunities",
			"Identify 3 to 5 engagement or collaboration opportunities for this account, with a one-line rationale each.")
	default:
		return h.unsupported(task)
	}
}

// listResult runs the shared suggest-a-JSON-list flow used by the curation
// task types.
func (h *ContentCurator) listResult(ctx context.Context, task *agent.Task, account config.Account, key, instruction string) (*agent.TaskResult, error) {
	raw, err := h.generate(ctx, h.nichePrompt(account, task,
		instruction+"\nRespond with ONLY a JSON array of strings."))
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", task.Type, err)
	}
	var items []string
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(raw)), &items); err != nil {
		return nil, fmt.Errorf("%s response is not a JSON array: %w", task.Type, err)
	}
	return &agent.TaskResult{
		Success: true,
		Output:  map[string]any{key: items, "count": len(items)},
	}, nil
}

// analyzeContent fetches the page named by the url parameter and asks for a
// relevance assessment.
func (h *ContentCurator) analyzeContent(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	url := stringParam(task.Parameters, "url")
	if url == "" {
		return nil, fmt.Errorf("analyze_content requires a url parameter")
	}
	if h.fetcher == nil {
		return nil, fmt.Errorf("analyze_content requires the page fetcher to be enabled")
	}

	page, err := h.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s failed: %w", url, err)
	}
	content := truncateAtRune(page.Markdown, promptContentLimit)

	summary, err := h.generate(ctx, h.nichePrompt(account, task,
		fmt.Sprintf("Assess this page for relevance to the account. Title: %q\n\n%s\n\nGive a short assessment: what it covers, whether it is worth sharing, and a suggested angle.",
			page.Title, content)))
	if err != nil {
		return nil, fmt.Errorf("content assessment failed: %w", err)
	}
	return &agent.TaskResult{
		Success: true,
		Output: map[string]any{
			"url":        url,
			"title":      page.Title,
			"assessment": strings.TrimSpace(summary),
		},
	}, nil
}

// truncateAtRune cuts s to at most limit bytes without splitting a UTF-8
// sequence.
func truncateAtRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (h *ContentCurator) nichePrompt(account config.Account, task *agent.Task, instruction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You curate content for the account @%s.\n", account.Username)
	if account.Niche != "" {
		fmt.Fprintf(&b, "Niche: %s\n", account.Niche)
	}
	if len(account.TargetKeywords) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(account.TargetKeywords, ", "))
	}
	if len(account.CompetitorProfiles) > 0 {
		fmt.Fprintf(&b, "Accounts to watch: %s\n", strings.Join(account.CompetitorProfiles, ", "))
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "Task: %s\n", task.Description)
	}
	b.WriteString("\n")
	b.WriteString(instruction)
	return b.String()
}
