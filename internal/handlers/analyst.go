package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/feedpilot/internal/agent"
	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/llm"
	"github.com/aatumaykin/feedpilot/internal/logger"
)

// PerformanceAnalyst measures how the other handlers are doing and proposes
// strategy adjustments.
type PerformanceAnalyst struct {
	base
	registry *Registry
}

// NewPerformanceAnalyst creates the analysis handler. The registry gives it
// visibility into the other handlers' execution memories.
func NewPerformanceAnalyst(provider llm.Provider, model string, registry *Registry, log *logger.Logger) *PerformanceAnalyst {
	return &PerformanceAnalyst{
		base: newBase(agent.RolePerformanceAnalyst,
			[]string{"analyze_performance", "track_metrics", "generate_report", "optimize_strategy"},
			provider, model, log),
		registry: registry,
	}
}

func (h *PerformanceAnalyst) Execute(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	switch task.Type {
	case "analyze_performance":
		return h.analyzePerformance(task)
	case "track_metrics":
		return h.trackMetrics(task)
	case "generate_report":
		return h.generateReport(ctx, task, account)
	case "optimize_strategy":
		return h.optimizeStrategy(ctx, task, account)
	default:
		return h.unsupported(task)
	}
}

// analyzePerformance reports each handler's success rate and volume from its
// execution memory. Handlers with empty memories report zeros.
func (h *PerformanceAnalyst) analyzePerformance(task *agent.Task) (*agent.TaskResult, error) {
	byRole := make(map[string]any)
	for _, handler := range h.registry.All() {
		byRole[string(handler.Role())] = handler.AnalyzePerformance()
	}
	return &agent.TaskResult{
		Success: true,
		Output: map[string]any{
			"by_role":     byRole,
			"analyzed_at": time.Now().Format(time.RFC3339),
		},
	}, nil
}

// trackMetrics echoes the supplied metric readings with a capture timestamp
// so the caller can persist them as a ledger snapshot.
func (h *PerformanceAnalyst) trackMetrics(task *agent.Task) (*agent.TaskResult, error) {
	metrics := make(map[string]float64)
	if raw, ok := task.Parameters["metrics"].(map[string]any); ok {
		for k, v := range raw {
			if f, ok := v.(float64); ok {
				metrics[k] = f
			}
		}
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("track_metrics requires a metrics parameter with numeric values")
	}
	return &agent.TaskResult{
		Success: true,
		Output: map[string]any{
			"metrics":     metrics,
			"captured_at": time.Now().Format(time.RFC3339),
		},
	}, nil
}

func (h *PerformanceAnalyst) generateReport(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	stats := make(map[string]map[string]float64)
	for _, handler := range h.registry.All() {
		stats[string(handler.Role())] = handler.AnalyzePerformance()
	}
	var lines []string
	for role, s := range stats {
		lines = append(lines, fmt.Sprintf("%s: success_rate=%.2f tasks=%.0f", role, s["success_rate"], s["tasks_completed"]))
	}

	report, err := h.generate(ctx, fmt.Sprintf(
		"You analyze performance for the account @%s.\nHandler statistics:\n%s\n%s\nWrite a short performance report: what is working, what is not, and one concrete recommendation.",
		account.Username, strings.Join(lines, "\n"), task.Description))
	if err != nil {
		return nil, fmt.Errorf("report generation failed: %w", err)
	}
	return &agent.TaskResult{
		Success: true,
		Output: map[string]any{
			"report": strings.TrimSpace(report),
			"stats":  stats,
		},
	}, nil
}

func (h *PerformanceAnalyst) optimizeStrategy(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error) {
	raw, err := h.generate(ctx, fmt.Sprintf(
		"You optimize strategy for the account @%s in the %s niche.\n%s\nPropose 3 concrete strategy adjustments. Respond with ONLY a JSON array of strings.",
		account.Username, account.Niche, task.Description))
	if err != nil {
		return nil, fmt.Errorf("strategy optimization failed: %w", err)
	}
	var suggestions []string
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(raw)), &suggestions); err != nil {
		return nil, fmt.Errorf("strategy response is not a JSON array: %w", err)
	}
	return &agent.TaskResult{
		Success: true,
		Output:  map[string]any{"adjustments": suggestions, "count": len(suggestions)},
	}, nil
}
