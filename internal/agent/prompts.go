package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// compactJSON renders v as single-line JSON for prompt embedding. Marshal
// failures degrade to an empty object rather than aborting the prompt.
func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func planningPrompt(accountID string, goal *Goal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You plan work for the social media account %q.\n\n", accountID)
	fmt.Fprintf(&b, "Goal: %s\n", goal.Description)
	fmt.Fprintf(&b, "Target metrics: %s\n", compactJSON(goal.TargetMetrics))
	if goal.Deadline != nil {
		fmt.Fprintf(&b, "Deadline: %s\n", goal.Deadline.Format(time.RFC3339))
	}
	b.WriteString(`
Break this goal into concrete tasks. Respond with ONLY a JSON array where each
element has the fields:
  "role": one of "content_creator", "content_curator", "engagement_manager", "performance_analyst", "strategist"
  "type": short task type identifier
  "description": what to do
  "priority": one of "critical", "high", "medium", "low"
  "parameters": object with task parameters
  "scheduled_time": RFC3339 timestamp or empty string

Return the JSON array with no surrounding text.`)
	return b.String()
}

func situationPrompt(c *Context) string {
	goals := make([]map[string]any, 0, len(c.CurrentGoals))
	for _, g := range c.ActiveGoals() {
		goals = append(goals, map[string]any{
			"description": g.Description,
			"progress":    g.Progress,
			"metrics":     g.TargetMetrics,
		})
	}
	recent := c.Memory.ActionHistory
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the current situation for account %q.\n\n", c.AccountID)
	fmt.Fprintf(&b, "Active goals: %s\n", compactJSON(goals))
	fmt.Fprintf(&b, "Pending tasks: %d\n", len(c.PendingTasks()))
	fmt.Fprintf(&b, "Recent activity: %s\n", compactJSON(recent))
	b.WriteString(`
Respond with ONLY a JSON object with exactly these string fields:
  "goal_progress": assessment of progress toward active goals
  "opportunities": opportunities worth pursuing now
  "content_needs": content gaps to fill
  "performance_trends": how recent performance is trending
  "recommendations": recommended next actions

Return the JSON object with no surrounding text.`)
	return b.String()
}

func decisionPrompt(c *Context, situation *Situation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Decide the next actions for account %q.\n\n", c.AccountID)
	fmt.Fprintf(&b, "Situation analysis: %s\n", compactJSON(situation))
	fmt.Fprintf(&b, "Active goals: %d, pending tasks: %d\n",
		len(c.ActiveGoals()), len(c.PendingTasks()))
	b.WriteString(`
Respond with ONLY a JSON array of decisions. Each element has:
  "action_type": one of "content_creation", "content_curation", "engagement", "performance_analysis", "strategy_adjustment"
  "confidence": number between 0 and 1
  "reasoning": why this action matters now
  "parameters": object with action parameters
  "urgency": one of "high", "medium", "low"

Return the JSON array with no surrounding text.`)
	return b.String()
}
