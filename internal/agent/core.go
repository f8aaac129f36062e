package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/llm"
	"github.com/aatumaykin/feedpilot/internal/logger"
	"github.com/aatumaykin/feedpilot/internal/retry"
)

// Situation is the structured result of situation analysis. All five
// assessment fields are always present; when the LLM call fails the fields
// are empty and Err carries the failure description.
type Situation struct {
	GoalProgress      string `json:"goal_progress"`
	Opportunities     string `json:"opportunities"`
	ContentNeeds      string `json:"content_needs"`
	PerformanceTrends string `json:"performance_trends"`
	Recommendations   string `json:"recommendations"`
	Err               string `json:"error,omitempty"`
}

// Decision is a single proposed action with the model's confidence in it.
type Decision struct {
	ActionType string         `json:"action_type"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Parameters map[string]any `json:"parameters"`
	Urgency    string         `json:"urgency"`
}

// CycleResult summarizes one decide-execute-learn pass. A cycle never fails
// as a whole; individual stage errors are collected in Errors.
type CycleResult struct {
	TasksExecuted int      `json:"tasks_executed"`
	DecisionsMade int      `json:"decisions_made"`
	ActionsTaken  []string `json:"actions_taken"`
	Errors        []string `json:"errors,omitempty"`
}

// ActionRunner executes a decided action for an account and returns a short
// human-readable outcome. Implementations route the action to the matching
// specialized handler.
type ActionRunner interface {
	RunAction(ctx context.Context, accountID string, decision Decision) (string, error)
}

// CoreConfig tunes the planning agent.
type CoreConfig struct {
	Model              string
	Temperature        float64
	MaxTokens          int
	DecisionThreshold  float64
	MaxConcurrentTasks int
	CallTimeout        time.Duration
	Retry              retry.Config
}

// Core is the planning agent. It holds a Context per managed account and
// drives goal planning and the execution cycle through the LLM provider.
type Core struct {
	provider llm.Provider
	runner   ActionRunner
	log      *logger.Logger
	cfg      CoreConfig

	mu       sync.RWMutex
	contexts map[string]*Context
}

// NewCore creates a planning agent. The runner may be nil, in which case
// decided actions produce a descriptive placeholder outcome instead of being
// dispatched.
func NewCore(provider llm.Provider, runner ActionRunner, log *logger.Logger, cfg CoreConfig) *Core {
	if cfg.Model == "" {
		cfg.Model = provider.GetDefaultModel()
	}
	if cfg.DecisionThreshold <= 0 {
		cfg.DecisionThreshold = 0.7
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Core{
		provider: provider,
		runner:   runner,
		log:      log,
		cfg:      cfg,
		contexts: make(map[string]*Context),
	}
}

// SetRunner installs the action runner after construction. This breaks the
// construction-order dependency between the core and the component that owns
// the handler registry.
func (c *Core) SetRunner(r ActionRunner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runner = r
}

// InitializeAccount registers a fresh context for the account. An existing
// context is left untouched.
func (c *Core) InitializeAccount(account config.Account) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.contexts[account.ID]; ok {
		return existing
	}
	ctx := NewContext(account.ID)
	c.contexts[account.ID] = ctx
	c.log.Info("account initialized", logger.Field{Key: "account", Value: account.ID})
	return ctx
}

// AdoptContext replaces the registered context for an account with a
// persisted one. Used at startup when stored state takes precedence.
func (c *Core) AdoptContext(accountID string, ctx *Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Memory == nil {
		ctx.Memory = NewMemory()
	}
	ctx.AccountID = accountID
	c.contexts[accountID] = ctx
}

// Context returns the context for an account.
func (c *Core) Context(accountID string) (*Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctx, ok := c.contexts[accountID]
	return ctx, ok
}

// Accounts lists the registered account ids.
func (c *Core) Accounts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.contexts))
	for id := range c.contexts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetGoal registers a goal for the account and plans tasks for it. Planning
// failures are logged, not returned: the goal is stored regardless and the
// task list may simply be empty.
func (c *Core) SetGoal(ctx context.Context, accountID string, goal *Goal) ([]*Task, error) {
	acct, ok := c.Context(accountID)
	if !ok {
		return nil, fmt.Errorf("unknown account: %s", accountID)
	}
	acct.CurrentGoals = append(acct.CurrentGoals, goal)

	tasks := c.planForGoal(ctx, accountID, goal)
	acct.ActiveTasks = append(acct.ActiveTasks, tasks...)
	c.log.Info("goal set",
		logger.Field{Key: "account", Value: accountID},
		logger.Field{Key: "goal", Value: goal.ID},
		logger.Field{Key: "tasks_planned", Value: len(tasks)},
	)
	return tasks, nil
}

type planItem struct {
	Role          string         `json:"role"`
	Type          string         `json:"type"`
	Description   string         `json:"description"`
	Priority      string         `json:"priority"`
	Parameters    map[string]any `json:"parameters"`
	ScheduledTime string         `json:"scheduled_time"`
}

// planForGoal asks the LLM to decompose the goal into tasks. Unparseable
// responses and invalid items are skipped; the result may be empty.
func (c *Core) planForGoal(ctx context.Context, accountID string, goal *Goal) []*Task {
	text, err := c.generate(ctx, planningPrompt(accountID, goal))
	if err != nil {
		c.log.Warn("goal planning failed",
			logger.Field{Key: "account", Value: accountID},
			logger.Field{Key: "error", Value: err.Error()},
		)
		return nil
	}

	var items []planItem
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(text)), &items); err != nil {
		c.log.Warn("goal plan is not valid JSON",
			logger.Field{Key: "account", Value: accountID},
			logger.Field{Key: "error", Value: err.Error()},
		)
		return nil
	}

	var tasks []*Task
	for _, item := range items {
		role, err := ParseRole(item.Role)
		if err != nil {
			c.log.Warn("skipping planned task with invalid role",
				logger.Field{Key: "account", Value: accountID},
				logger.Field{Key: "role", Value: item.Role},
			)
			continue
		}
		task := NewTask(accountID, goal.ID, item.Type, role, item.Description)
		if p, err := ParsePriority(item.Priority); err == nil {
			task.Priority = p
		}
		if item.Parameters != nil {
			task.Parameters = item.Parameters
		}
		if item.ScheduledTime != "" {
			if ts, err := time.Parse(time.RFC3339, item.ScheduledTime); err == nil {
				task.ScheduledFor = &ts
			}
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// ExecuteCycle runs one decide-execute-learn pass for the account. The only
// returned error is an unknown account id; all stage failures are recorded
// in the result's Errors list and the cycle continues.
func (c *Core) ExecuteCycle(ctx context.Context, accountID string) (*CycleResult, error) {
	acct, ok := c.Context(accountID)
	if !ok {
		return nil, fmt.Errorf("unknown account: %s", accountID)
	}

	result := &CycleResult{ActionsTaken: []string{}}

	situation := c.analyzeSituation(ctx, acct)
	if situation.Err != "" {
		result.Errors = append(result.Errors, "situation analysis: "+situation.Err)
	}

	decisions := c.makeDecisions(ctx, acct, situation, result)
	result.DecisionsMade = len(decisions)

	c.executePriorityActions(ctx, acct, decisions, result)
	c.learnFromCycle(acct, result)
	acct.Touch()

	return result, nil
}

// analyzeSituation produces the five-field assessment. Failures yield a
// Situation with empty assessments and Err set.
func (c *Core) analyzeSituation(ctx context.Context, acct *Context) *Situation {
	text, err := c.generate(ctx, situationPrompt(acct))
	if err != nil {
		return &Situation{Err: err.Error()}
	}
	var s Situation
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(text)), &s); err != nil {
		return &Situation{Err: "analysis response is not valid JSON: " + err.Error()}
	}
	s.Err = ""
	return &s
}

// makeDecisions asks for actions and keeps those at or above the confidence
// threshold. Any failure yields an empty decision list.
func (c *Core) makeDecisions(ctx context.Context, acct *Context, situation *Situation, result *CycleResult) []Decision {
	text, err := c.generate(ctx, decisionPrompt(acct, situation))
	if err != nil {
		result.Errors = append(result.Errors, "decision making: "+err.Error())
		return nil
	}
	var all []Decision
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(text)), &all); err != nil {
		result.Errors = append(result.Errors, "decision response is not valid JSON: "+err.Error())
		return nil
	}
	var kept []Decision
	for _, d := range all {
		if d.Confidence >= c.cfg.DecisionThreshold {
			kept = append(kept, d)
		}
	}
	return kept
}

// executePriorityActions runs the most urgent high-confidence decisions, at
// most MaxConcurrentTasks per cycle. Ordering is stable: high urgency first,
// then descending confidence, ties keep the model's order.
func (c *Core) executePriorityActions(ctx context.Context, acct *Context, decisions []Decision, result *CycleResult) {
	sort.SliceStable(decisions, func(i, j int) bool {
		hi, hj := decisions[i].Urgency == "high", decisions[j].Urgency == "high"
		if hi != hj {
			return hi
		}
		return decisions[i].Confidence > decisions[j].Confidence
	})
	if len(decisions) > c.cfg.MaxConcurrentTasks {
		decisions = decisions[:c.cfg.MaxConcurrentTasks]
	}

	for _, d := range decisions {
		outcome, err := c.runAction(ctx, acct.AccountID, d)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("action %s: %v", d.ActionType, err))
			continue
		}
		result.TasksExecuted++
		result.ActionsTaken = append(result.ActionsTaken, outcome)
	}
}

func (c *Core) runAction(ctx context.Context, accountID string, d Decision) (string, error) {
	c.mu.RLock()
	runner := c.runner
	c.mu.RUnlock()
	if runner == nil {
		return fmt.Sprintf("planned %s action (no runner attached)", d.ActionType), nil
	}
	return runner.RunAction(ctx, accountID, d)
}

// learnFromCycle records the cycle in the bounded history ring and appends
// the number of executed tasks to the performance series.
func (c *Core) learnFromCycle(acct *Context, result *CycleResult) {
	acct.Memory.RecordCycle(CycleRecord{
		Timestamp:     time.Now(),
		TasksExecuted: result.TasksExecuted,
		DecisionsMade: result.DecisionsMade,
		ActionsTaken:  result.ActionsTaken,
		Errors:        result.Errors,
		ActiveGoals:   len(acct.ActiveGoals()),
		ActiveTasks:   len(acct.ActiveTasks),
	})
	acct.Memory.AppendMetric("execution_rate", float64(result.TasksExecuted))
}

// AccountStatus is a read-only snapshot of an account's state.
type AccountStatus struct {
	AccountID        string     `json:"account_id"`
	ActiveGoals      int        `json:"active_goals"`
	PendingTasks     int        `json:"pending_tasks"`
	CompletedTasks   int        `json:"completed_tasks"`
	HistoryLength    int        `json:"history_length"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
	PerformanceScore float64    `json:"performance_score"`
}

// Status reports a snapshot for the account.
func (c *Core) Status(accountID string) (*AccountStatus, error) {
	acct, ok := c.Context(accountID)
	if !ok {
		return nil, fmt.Errorf("unknown account: %s", accountID)
	}
	return &AccountStatus{
		AccountID:        accountID,
		ActiveGoals:      len(acct.ActiveGoals()),
		PendingTasks:     len(acct.PendingTasks()),
		CompletedTasks:   len(acct.CompletedTasks),
		HistoryLength:    len(acct.Memory.ActionHistory),
		LastActivity:     acct.LastActivity,
		PerformanceScore: acct.PerformanceScore,
	}, nil
}

// generate performs one LLM call with per-call timeout and retry.
func (c *Core) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return retry.DoWithRetry(callCtx, func() (string, error) {
		resp, err := c.provider.Generate(callCtx, llm.GenerateRequest{
			Prompt:      prompt,
			Model:       c.cfg.Model,
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}, c.cfg.Retry)
}
