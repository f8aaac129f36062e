// Package handlers implements the specialized task handlers. Each handler
// covers one role (content creation, curation, engagement, analysis), accepts
// the task types of that role and keeps a bounded memory of its executions
// for performance analysis.
package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aatumaykin/feedpilot/internal/agent"
	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/llm"
	"github.com/aatumaykin/feedpilot/internal/logger"
	"github.com/aatumaykin/feedpilot/internal/retry"
)

// memoryLimit caps each handler's execution memory, oldest entries first out.
const memoryLimit = 100

// MemoryEntry records one task execution in a handler's memory.
type MemoryEntry struct {
	TaskID    string    `json:"task_id"`
	TaskType  string    `json:"task_type"`
	AccountID string    `json:"account_id"`
	Success   bool      `json:"success"`
	Score     float64   `json:"score,omitempty"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler executes tasks of one role.
type Handler interface {
	Role() agent.Role
	CanHandle(taskType string) bool
	Execute(ctx context.Context, task *agent.Task, account config.Account) (*agent.TaskResult, error)
	UpdateMemory(entry MemoryEntry)
	AnalyzePerformance() map[string]float64
}

// base carries the shared handler plumbing: the LLM client, the bounded
// execution memory and the accepted task-type set.
type base struct {
	role     agent.Role
	accepted map[string]struct{}
	provider llm.Provider
	model    string
	log      *logger.Logger

	mu     sync.Mutex
	memory []MemoryEntry
}

func newBase(role agent.Role, taskTypes []string, provider llm.Provider, model string, log *logger.Logger) base {
	accepted := make(map[string]struct{}, len(taskTypes))
	for _, t := range taskTypes {
		accepted[t] = struct{}{}
	}
	if model == "" && provider != nil {
		model = provider.GetDefaultModel()
	}
	return base{
		role:     role,
		accepted: accepted,
		provider: provider,
		model:    model,
		log:      log,
	}
}

func (b *base) Role() agent.Role { return b.role }

func (b *base) CanHandle(taskType string) bool {
	_, ok := b.accepted[taskType]
	return ok
}

// UpdateMemory appends an execution record, evicting the oldest entries
// beyond memoryLimit.
func (b *base) UpdateMemory(entry MemoryEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memory = append(b.memory, entry)
	if len(b.memory) > memoryLimit {
		b.memory = b.memory[len(b.memory)-memoryLimit:]
	}
}

// AnalyzePerformance summarizes the handler's memory. An empty memory yields
// zero values rather than an error.
func (b *base) AnalyzePerformance() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.memory) == 0 {
		return map[string]float64{
			"success_rate":    0.0,
			"tasks_completed": 0.0,
			"avg_performance": 0.0,
		}
	}
	succeeded := 0
	scored := 0
	var scoreSum float64
	for _, e := range b.memory {
		if e.Success {
			succeeded++
		}
		if e.Score > 0 {
			scoreSum += e.Score
			scored++
		}
	}
	avg := 0.0
	if scored > 0 {
		avg = scoreSum / float64(scored)
	}
	return map[string]float64{
		"success_rate":    float64(succeeded) / float64(len(b.memory)),
		"tasks_completed": float64(len(b.memory)),
		"avg_performance": avg,
	}
}

// generate performs one LLM call with retry.
func (b *base) generate(ctx context.Context, prompt string) (string, error) {
	return retry.DoWithRetry(ctx, func() (string, error) {
		resp, err := b.provider.Generate(ctx, llm.GenerateRequest{
			Prompt: prompt,
			Model:  b.model,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}, retry.DefaultConfig())
}

func (b *base) unsupported(task *agent.Task) (*agent.TaskResult, error) {
	return nil, fmt.Errorf("%s cannot handle task type %q", b.role, task.Type)
}

// Registry routes tasks and decided actions to handlers by role.
type Registry struct {
	handlers map[agent.Role]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[agent.Role]Handler)}
}

// Register adds a handler. Registering a role twice replaces the previous
// handler.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Role()] = h
}

// ForRole looks up the handler for a role.
func (r *Registry) ForRole(role agent.Role) (Handler, bool) {
	h, ok := r.handlers[role]
	return h, ok
}

// ForTask finds the handler that accepts the task's role and type.
func (r *Registry) ForTask(task *agent.Task) (Handler, error) {
	h, ok := r.handlers[task.Role]
	if !ok {
		return nil, fmt.Errorf("no handler registered for role %s", task.Role)
	}
	if !h.CanHandle(task.Type) {
		return nil, fmt.Errorf("handler %s does not accept task type %q", task.Role, task.Type)
	}
	return h, nil
}

// All returns the registered handlers.
func (r *Registry) All() []Handler {
	out := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	return out
}

// stringParam extracts a string task parameter.
func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}
