// Package agent contains the goal/task data model and the core planning agent.
// One Context exists per managed account; it owns that account's goals, tasks
// and memory. The Core converts natural-language goals into tasks through LLM
// prompts and runs the decide-execute-learn cycle.
package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies which specialized handler executes a task.
type Role string

const (
	RoleStrategist         Role = "strategist"          // High-level planning and goal management
	RoleContentCreator     Role = "content_creator"     // Original content generation
	RoleContentCurator     Role = "content_curator"     // Content discovery and curation
	RoleEngagementManager  Role = "engagement_manager"  // Interaction and community management
	RolePerformanceAnalyst Role = "performance_analyst" // Analytics and optimization
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStrategist, RoleContentCreator, RoleContentCurator, RoleEngagementManager, RolePerformanceAnalyst:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// Priority is the scheduling priority of a goal or task.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// ParsePriority validates a priority string.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("unknown priority: %q", s)
	}
}

// TaskStatus is the execution status of a task. Transitions are
// one-directional except pending<->in_progress, which may cycle on retry,
// until a terminal state is reached.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// GoalStatus is the lifecycle status of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalArchived  GoalStatus = "archived"
)

// Goal represents a high-level target for an account.
type Goal struct {
	ID            string             `json:"id"`
	AccountID     string             `json:"account_id"`
	Description   string             `json:"description"`
	TargetMetrics map[string]float64 `json:"target_metrics"`
	Priority      Priority           `json:"priority"`
	Deadline      *time.Time         `json:"deadline,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	Status        GoalStatus         `json:"status"`
	Progress      float64            `json:"progress"`
}

// NewGoal creates an active goal with a timestamp-derived identifier.
func NewGoal(accountID, description string, metrics map[string]float64, deadline *time.Time) *Goal {
	if metrics == nil {
		metrics = make(map[string]float64)
	}
	return &Goal{
		ID:            fmt.Sprintf("%s_%d", accountID, time.Now().UnixNano()),
		AccountID:     accountID,
		Description:   description,
		TargetMetrics: metrics,
		Priority:      PriorityMedium,
		Deadline:      deadline,
		CreatedAt:     time.Now(),
		Status:        GoalActive,
		Progress:      0,
	}
}

// RecordProgress advances the goal's progress fraction. Progress is
// monotonically non-decreasing while the goal is active; values are clamped
// to [0,1] and a goal reaching 1.0 becomes completed.
func (g *Goal) RecordProgress(p float64) {
	if g.Status != GoalActive {
		return
	}
	if p > 1 {
		p = 1
	}
	if p <= g.Progress {
		return
	}
	g.Progress = p
	if g.Progress >= 1 {
		g.Status = GoalCompleted
	}
}

// Expired reports whether the goal's deadline has passed.
func (g *Goal) Expired(now time.Time) bool {
	return g.Deadline != nil && now.After(*g.Deadline)
}

// TaskResult is the structured outcome of a task execution.
type TaskResult struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
}

// Task represents a concrete unit of work generated to advance a goal.
// A task belongs to exactly one account and references at most one goal by id;
// deleting a goal does not cascade to its tasks.
type Task struct {
	ID           string         `json:"id"`
	AccountID    string         `json:"account_id"`
	GoalID       string         `json:"goal_id,omitempty"`
	Type         string         `json:"type"`
	Role         Role           `json:"role"`
	Description  string         `json:"description"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Priority     Priority       `json:"priority"`
	Status       TaskStatus     `json:"status"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	Result       *TaskResult    `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DefaultMaxRetries bounds how many times a failed task may return to the
// pending queue before it is permanently failed.
const DefaultMaxRetries = 3

// NewTask creates a pending task owned by the given account.
func NewTask(accountID, goalID, taskType string, role Role, description string) *Task {
	now := time.Now()
	return &Task{
		ID:          fmt.Sprintf("%s_%s", accountID, uuid.NewString()),
		AccountID:   accountID,
		GoalID:      goalID,
		Type:        taskType,
		Role:        role,
		Description: description,
		Parameters:  make(map[string]any),
		Priority:    PriorityMedium,
		Status:      TaskPending,
		MaxRetries:  DefaultMaxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Start moves a pending task to in_progress.
func (t *Task) Start() error {
	if t.Status != TaskPending {
		return fmt.Errorf("task %s cannot start from status %s", t.ID, t.Status)
	}
	t.Status = TaskInProgress
	t.UpdatedAt = time.Now()
	return nil
}

// Complete marks the task completed with its result.
func (t *Task) Complete(result *TaskResult) {
	t.Status = TaskCompleted
	t.Result = result
	t.ErrorMessage = ""
	t.UpdatedAt = time.Now()
}

// Fail records a failure. If the retry budget is not exhausted the task
// returns to pending for a later cycle; otherwise it is permanently failed.
func (t *Task) Fail(message string) {
	t.ErrorMessage = message
	t.UpdatedAt = time.Now()
	if t.RetryCount < t.MaxRetries {
		t.RetryCount++
		t.Status = TaskPending
		return
	}
	t.Status = TaskFailed
}

// Cancel marks a non-terminal task cancelled.
func (t *Task) Cancel() {
	if t.Status.IsTerminal() {
		return
	}
	t.Status = TaskCancelled
	t.UpdatedAt = time.Now()
}

// HistoryLimit caps the memory action-history ring.
const HistoryLimit = 100

// CycleRecord captures one decide-execute-learn pass for the history ring.
type CycleRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	TasksExecuted int       `json:"tasks_executed"`
	DecisionsMade int       `json:"decisions_made"`
	ActionsTaken  []string  `json:"actions_taken,omitempty"`
	Errors        []string  `json:"errors,omitempty"`
	ActiveGoals   int       `json:"active_goals"`
	ActiveTasks   int       `json:"active_tasks"`
}

// StrategyRecord describes a strategy that worked or failed for an account.
type StrategyRecord struct {
	Description string    `json:"description"`
	Role        Role      `json:"role,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Memory accumulates an account's action history and learned patterns.
// The history ring is bounded at HistoryLimit entries with FIFO eviction.
type Memory struct {
	ActionHistory        []CycleRecord        `json:"action_history"`
	SuccessfulStrategies []StrategyRecord     `json:"successful_strategies,omitempty"`
	FailedStrategies     []StrategyRecord     `json:"failed_strategies,omitempty"`
	PerformanceMetrics   map[string][]float64 `json:"performance_metrics"`
	LearnedPatterns      map[string]any       `json:"learned_patterns,omitempty"`
	LastUpdated          time.Time            `json:"last_updated"`
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{
		PerformanceMetrics: make(map[string][]float64),
		LearnedPatterns:    make(map[string]any),
		LastUpdated:        time.Now(),
	}
}

// RecordCycle appends a cycle record, evicting the oldest entries beyond
// HistoryLimit.
func (m *Memory) RecordCycle(rec CycleRecord) {
	m.ActionHistory = append(m.ActionHistory, rec)
	if len(m.ActionHistory) > HistoryLimit {
		m.ActionHistory = m.ActionHistory[len(m.ActionHistory)-HistoryLimit:]
	}
	m.LastUpdated = time.Now()
}

// AppendMetric appends a value to a named performance series.
func (m *Memory) AppendMetric(name string, value float64) {
	if m.PerformanceMetrics == nil {
		m.PerformanceMetrics = make(map[string][]float64)
	}
	m.PerformanceMetrics[name] = append(m.PerformanceMetrics[name], value)
	m.LastUpdated = time.Now()
}

// Context is the complete mutable state for one account. It is owned
// exclusively by that account's processing path and never shared.
type Context struct {
	AccountID        string     `json:"account_id"`
	CurrentGoals     []*Goal    `json:"current_goals"`
	ActiveTasks      []*Task    `json:"active_tasks"`
	CompletedTasks   []*Task    `json:"completed_tasks"`
	Memory           *Memory    `json:"memory"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
	PerformanceScore float64    `json:"performance_score"`
}

// NewContext creates a fresh context for an account.
func NewContext(accountID string) *Context {
	return &Context{
		AccountID: accountID,
		Memory:    NewMemory(),
	}
}

// FindGoal looks up a goal by id.
func (c *Context) FindGoal(id string) *Goal {
	for _, g := range c.CurrentGoals {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// ActiveGoals returns the goals still being pursued.
func (c *Context) ActiveGoals() []*Goal {
	var out []*Goal
	for _, g := range c.CurrentGoals {
		if g.Status == GoalActive {
			out = append(out, g)
		}
	}
	return out
}

// PendingTasks returns tasks waiting for dispatch.
func (c *Context) PendingTasks() []*Task {
	var out []*Task
	for _, t := range c.ActiveTasks {
		if t.Status == TaskPending {
			out = append(out, t)
		}
	}
	return out
}

// RetireTask moves a terminal task from the active to the completed collection.
// Non-terminal tasks are left in place.
func (c *Context) RetireTask(task *Task) {
	if !task.Status.IsTerminal() {
		return
	}
	for i, t := range c.ActiveTasks {
		if t.ID == task.ID {
			c.ActiveTasks = append(c.ActiveTasks[:i], c.ActiveTasks[i+1:]...)
			c.CompletedTasks = append(c.CompletedTasks, task)
			return
		}
	}
}

// RemoveGoal drops a goal from the current set. Tasks referencing the goal
// keep their goal_id; the reference simply stops resolving.
func (c *Context) RemoveGoal(id string) *Goal {
	for i, g := range c.CurrentGoals {
		if g.ID == id {
			c.CurrentGoals = append(c.CurrentGoals[:i], c.CurrentGoals[i+1:]...)
			return g
		}
	}
	return nil
}

// Touch updates the last-activity timestamp.
func (c *Context) Touch() {
	now := time.Now()
	c.LastActivity = &now
}
