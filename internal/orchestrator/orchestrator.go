// Package orchestrator coordinates the planning core, the specialized
// handlers and the persistence layer across all managed accounts. It owns
// the continuous mode loop that batches accounts, runs their cycles in
// parallel and sweeps finished goals.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/aatumaykin/feedpilot/internal/agent"
	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/handlers"
	"github.com/aatumaykin/feedpilot/internal/llm"
	"github.com/aatumaykin/feedpilot/internal/logger"
	"github.com/aatumaykin/feedpilot/internal/memory"
	"github.com/aatumaykin/feedpilot/internal/metrics"
	"github.com/aatumaykin/feedpilot/internal/retry"
)

const defaultGoalDeadlineDays = 30

// Config tunes the orchestration loop.
type Config struct {
	CycleInterval         time.Duration
	MaxConcurrentAccounts int
	Model                 string
}

// Orchestrator drives all accounts through their agent cycles.
type Orchestrator struct {
	core     *agent.Core
	registry *handlers.Registry
	store    *memory.Manager
	provider llm.Provider
	metrics  *metrics.PrometheusMetrics
	log      *logger.Logger
	cfg      Config

	mu       sync.RWMutex
	accounts map[string]config.Account
	locks    map[string]*sync.Mutex
	running  bool
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates an orchestrator and installs itself as the core's action
// runner. The metrics sink may be nil.
func New(core *agent.Core, registry *handlers.Registry, store *memory.Manager, provider llm.Provider, m *metrics.PrometheusMetrics, log *logger.Logger, cfg Config) *Orchestrator {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 60 * time.Second
	}
	if cfg.MaxConcurrentAccounts <= 0 {
		cfg.MaxConcurrentAccounts = 3
	}
	if cfg.Model == "" {
		cfg.Model = provider.GetDefaultModel()
	}
	o := &Orchestrator{
		core:     core,
		registry: registry,
		store:    store,
		provider: provider,
		metrics:  m,
		log:      log,
		cfg:      cfg,
		accounts: make(map[string]config.Account),
		locks:    make(map[string]*sync.Mutex),
		stopped:  make(chan struct{}),
	}
	core.SetRunner(o)
	return o
}

// Initialize registers the active accounts. For each account a persisted
// context is restored when one exists; persisted state wins over a fresh
// context. Inactive accounts are skipped.
func (o *Orchestrator) Initialize(accounts []config.Account) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	registered := 0
	for _, account := range accounts {
		if !account.Active {
			o.log.Info("skipping inactive account", logger.Field{Key: "account", Value: account.ID})
			continue
		}
		persisted, err := o.store.LoadContext(account.ID)
		if err != nil {
			return fmt.Errorf("failed to restore account %s: %w", account.ID, err)
		}
		if persisted != nil {
			o.core.AdoptContext(account.ID, persisted)
			o.log.Info("restored persisted context",
				logger.Field{Key: "account", Value: account.ID},
				logger.Field{Key: "goals", Value: len(persisted.CurrentGoals)},
				logger.Field{Key: "active_tasks", Value: len(persisted.ActiveTasks)},
			)
		} else {
			o.core.InitializeAccount(account)
		}
		o.accounts[account.ID] = account
		o.locks[account.ID] = &sync.Mutex{}
		registered++
	}
	if o.metrics != nil {
		o.metrics.SetActiveAccounts(registered)
	}
	if registered == 0 {
		return fmt.Errorf("no active accounts configured")
	}
	o.log.Info("orchestrator initialized", logger.Field{Key: "accounts", Value: registered})
	return nil
}

func (o *Orchestrator) account(accountID string) (config.Account, *sync.Mutex, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	account, ok := o.accounts[accountID]
	if !ok {
		return config.Account{}, nil, fmt.Errorf("unknown account: %s", accountID)
	}
	return account, o.locks[accountID], nil
}

// goalParse is the shape the goal intake prompts ask for.
type goalParse struct {
	Description   string             `json:"description"`
	TargetMetrics map[string]float64 `json:"target_metrics"`
	DeadlineDays  float64            `json:"deadline_days"`
	Priority      string             `json:"priority"`
}

// AddGoalFromNaturalLanguage turns free-form goal text into a structured
// goal and plans tasks for it. Intake never fails on model errors: when both
// parse stages fail, a placeholder goal with a general_progress target and
// the default deadline is created from the normalized text.
func (o *Orchestrator) AddGoalFromNaturalLanguage(ctx context.Context, accountID, text string) (*agent.Goal, error) {
	_, lock, err := o.account(accountID)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return nil, fmt.Errorf("goal text is empty")
	}

	parsed := o.parseGoal(ctx, accountID, text)

	var deadline *time.Time
	days := parsed.DeadlineDays
	if days <= 0 {
		days = defaultGoalDeadlineDays
	}
	d := time.Now().Add(time.Duration(days * 24 * float64(time.Hour)))
	deadline = &d

	goal := agent.NewGoal(accountID, parsed.Description, parsed.TargetMetrics, deadline)
	if p, err := agent.ParsePriority(parsed.Priority); err == nil {
		goal.Priority = p
	}

	if _, err := o.core.SetGoal(ctx, accountID, goal); err != nil {
		return nil, err
	}
	if err := o.store.RecordGoal(accountID, goal); err != nil {
		o.log.Warn("failed to record goal history",
			logger.Field{Key: "account", Value: accountID},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}
	if o.metrics != nil {
		o.metrics.RecordGoal("created")
	}
	return goal, nil
}

// parseGoal runs the two-stage natural language parse. Stage one asks for
// structured JSON directly; stage two asks the model to repair its own
// output. Both failing yields the placeholder parse.
func (o *Orchestrator) parseGoal(ctx context.Context, accountID, text string) goalParse {
	prompt := fmt.Sprintf(`Convert this goal for the social media account %q into structured form.

Goal: %s

Respond with ONLY a JSON object:
  "description": restated goal
  "target_metrics": object mapping metric names to numeric targets (e.g. {"followers": 500})
  "deadline_days": number of days to achieve it (default 30)
  "priority": one of "critical", "high", "medium", "low"`, accountID, text)

	raw, err := o.generate(ctx, prompt)
	if err == nil {
		if parsed, ok := decodeGoalParse(raw, text); ok {
			return parsed
		}
		repaired, err := o.generate(ctx, fmt.Sprintf(
			"The following was supposed to be a JSON object with the fields description, target_metrics, deadline_days, priority. Extract and return ONLY the corrected JSON object:\n\n%s", raw))
		if err == nil {
			if parsed, ok := decodeGoalParse(repaired, text); ok {
				return parsed
			}
		}
	}

	o.log.Warn("goal parsing fell back to placeholder",
		logger.Field{Key: "account", Value: accountID},
	)
	return goalParse{
		Description:   text,
		TargetMetrics: map[string]float64{"general_progress": 1.0},
		DeadlineDays:  defaultGoalDeadlineDays,
		Priority:      string(agent.PriorityMedium),
	}
}

func decodeGoalParse(raw, fallbackText string) (goalParse, bool) {
	var parsed goalParse
	if err := json.Unmarshal([]byte(llm.CleanJSONResponse(raw)), &parsed); err != nil {
		return goalParse{}, false
	}
	if parsed.Description == "" {
		parsed.Description = fallbackText
	}
	if len(parsed.TargetMetrics) == 0 {
		parsed.TargetMetrics = map[string]float64{"general_progress": 1.0}
	}
	return parsed, true
}

// RunSingleCycle executes one full pass for an account: the decide-execute-
// learn cycle, dispatch of pending tasks to handlers, and persistence of the
// context and a performance snapshot.
func (o *Orchestrator) RunSingleCycle(ctx context.Context, accountID string) (*agent.CycleResult, error) {
	account, lock, err := o.account(accountID)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	result, err := o.core.ExecuteCycle(ctx, accountID)
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordCycle("error", time.Since(started))
		}
		return nil, err
	}

	dispatched := o.dispatchPendingTasks(ctx, account, result)
	result.TasksExecuted += dispatched

	o.persistCycle(accountID, result)

	if o.metrics != nil {
		outcome := "ok"
		if len(result.Errors) > 0 {
			outcome = "partial"
		}
		o.metrics.RecordCycle(outcome, time.Since(started))
	}
	return result, nil
}

// RunAllCycles runs one cycle for every managed account sequentially and
// returns the results keyed by account id.
func (o *Orchestrator) RunAllCycles(ctx context.Context) (map[string]*agent.CycleResult, error) {
	results := make(map[string]*agent.CycleResult)
	for _, accountID := range o.core.Accounts() {
		result, err := o.RunSingleCycle(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("cycle for %s: %w", accountID, err)
		}
		results[accountID] = result
	}
	return results, nil
}

// dispatchPendingTasks runs the account's due pending tasks through their
// handlers. Failed tasks return to pending while retries remain; exhausted
// or completed tasks are retired to the completed collection.
func (o *Orchestrator) dispatchPendingTasks(ctx context.Context, account config.Account, result *agent.CycleResult) int {
	acct, ok := o.core.Context(account.ID)
	if !ok {
		return 0
	}

	now := time.Now()
	executed := 0
	for _, task := range acct.PendingTasks() {
		if task.ScheduledFor != nil && task.ScheduledFor.After(now) {
			continue
		}

		handler, err := o.registry.ForTask(task)
		if err != nil {
			task.Fail(err.Error())
			o.noteTaskOutcome(acct, task, result, err.Error())
			continue
		}
		if err := task.Start(); err != nil {
			continue
		}

		res, err := handler.Execute(ctx, task, account)
		entry := handlers.MemoryEntry{
			TaskID:    task.ID,
			TaskType:  task.Type,
			AccountID: account.ID,
			Timestamp: time.Now(),
		}
		if err != nil {
			task.Fail(err.Error())
			entry.Note = err.Error()
			o.noteTaskOutcome(acct, task, result, err.Error())
		} else {
			task.Complete(res)
			entry.Success = true
			entry.Score = 1.0
			executed++
			result.ActionsTaken = append(result.ActionsTaken,
				fmt.Sprintf("%s: %s", task.Type, task.Description))
			acct.RetireTask(task)
			if o.metrics != nil {
				o.metrics.RecordTask(string(agent.TaskCompleted))
			}
		}
		handler.UpdateMemory(entry)
	}
	if o.metrics != nil {
		o.metrics.SetPendingTasks(len(acct.PendingTasks()))
	}
	return executed
}

// noteTaskOutcome records a task failure in the cycle result and retires the
// task when it has exhausted retries.
func (o *Orchestrator) noteTaskOutcome(acct *agent.Context, task *agent.Task, result *agent.CycleResult, message string) {
	result.Errors = append(result.Errors, fmt.Sprintf("task %s (%s): %s", task.ID, task.Type, message))
	if task.Status.IsTerminal() {
		acct.RetireTask(task)
		if o.metrics != nil {
			o.metrics.RecordTask(string(task.Status))
		}
	}
}

// persistCycle saves the context and appends a performance snapshot.
func (o *Orchestrator) persistCycle(accountID string, result *agent.CycleResult) {
	acct, ok := o.core.Context(accountID)
	if !ok {
		return
	}
	if err := o.store.SaveContext(acct); err != nil {
		o.log.Error("failed to persist context", err,
			logger.Field{Key: "account", Value: accountID},
		)
	}

	successRate := 0.0
	if result.DecisionsMade > 0 {
		successRate = float64(result.TasksExecuted) / float64(result.DecisionsMade)
	}
	snapshot := map[string]float64{
		"tasks_executed":         float64(result.TasksExecuted),
		"decisions_made":         float64(result.DecisionsMade),
		"execution_success_rate": successRate,
		"actions_taken":          float64(len(result.ActionsTaken)),
	}
	if err := o.store.RecordSnapshot(accountID, snapshot); err != nil {
		o.log.Warn("failed to record performance snapshot",
			logger.Field{Key: "account", Value: accountID},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}
}

// RunContinuousMode loops over all accounts until the context is cancelled
// or Stop is called. Accounts run in parallel batches of at most
// MaxConcurrentAccounts; a batch in flight always finishes before the loop
// observes cancellation.
func (o *Orchestrator) RunContinuousMode(ctx context.Context) error {
	o.setRunning(true)
	defer o.setRunning(false)
	o.log.Info("continuous mode started",
		logger.Field{Key: "interval", Value: o.cfg.CycleInterval.String()},
		logger.Field{Key: "batch_size", Value: o.cfg.MaxConcurrentAccounts},
	)
	for {
		select {
		case <-ctx.Done():
			o.log.Info("continuous mode stopped by context")
			return ctx.Err()
		case <-o.stopped:
			o.log.Info("continuous mode stopped")
			return nil
		default:
		}

		o.runBatchedCycles(ctx)
		o.sweepGoals()
		o.optimizeGlobally(ctx)

		select {
		case <-ctx.Done():
			o.log.Info("continuous mode stopped by context")
			return ctx.Err()
		case <-o.stopped:
			o.log.Info("continuous mode stopped")
			return nil
		case <-time.After(o.cfg.CycleInterval):
		}
	}
}

// runBatchedCycles runs every account's cycle, at most
// MaxConcurrentAccounts in parallel. Per-account errors are logged, never
// fatal to the loop.
func (o *Orchestrator) runBatchedCycles(ctx context.Context) {
	ids := o.core.Accounts()
	for start := 0; start < len(ids); start += o.cfg.MaxConcurrentAccounts {
		end := start + o.cfg.MaxConcurrentAccounts
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		var wg sync.WaitGroup
		errs := make([]error, len(batch))
		for i, id := range batch {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				_, err := o.RunSingleCycle(ctx, id)
				errs[i] = err
			}(i, id)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				o.log.Error("account cycle failed", err,
					logger.Field{Key: "account", Value: batch[i]},
				)
			}
		}
	}
}

// sweepGoals archives goals that reached their target and records them in
// the goal history. Expired active goals are archived as well.
func (o *Orchestrator) sweepGoals() {
	now := time.Now()
	for _, id := range o.core.Accounts() {
		_, lock, err := o.account(id)
		if err != nil {
			continue
		}
		lock.Lock()
		acct, ok := o.core.Context(id)
		if !ok {
			lock.Unlock()
			continue
		}
		var finished []*agent.Goal
		for _, g := range acct.CurrentGoals {
			if g.Status == agent.GoalCompleted || g.Progress >= 1 || (g.Status == agent.GoalActive && g.Expired(now)) {
				finished = append(finished, g)
			}
		}
		for _, g := range finished {
			g.Status = agent.GoalArchived
			acct.RemoveGoal(g.ID)
			if err := o.store.RecordGoal(id, g); err != nil {
				o.log.Warn("failed to record archived goal",
					logger.Field{Key: "account", Value: id},
				)
			}
			if o.metrics != nil {
				o.metrics.RecordGoal("archived")
			}
			o.log.Info("goal archived",
				logger.Field{Key: "account", Value: id},
				logger.Field{Key: "goal", Value: g.ID},
				logger.Field{Key: "progress", Value: g.Progress},
			)
		}
		lock.Unlock()
	}
}

// optimizeGlobally asks the model for cross-account observations once per
// loop pass. The output is logged for the operator; it does not mutate any
// account state.
func (o *Orchestrator) optimizeGlobally(ctx context.Context) {
	statuses := make(map[string]any)
	for _, id := range o.core.Accounts() {
		if s, err := o.core.Status(id); err == nil {
			statuses[id] = s
		}
	}
	payload, err := json.Marshal(statuses)
	if err != nil {
		return
	}
	text, err := o.generate(ctx, fmt.Sprintf(
		"These are the current statuses of all managed social media accounts:\n%s\nGive 2 or 3 short cross-account observations for the operator. Plain text.", payload))
	if err != nil {
		o.log.Debug("global optimization pass skipped",
			logger.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	o.log.Info("global optimization", logger.Field{Key: "observations", Value: strings.TrimSpace(text)})
}

// actionTaskTypes maps decision action types to the default task executed
// for them.
var actionTaskTypes = map[string]struct {
	role     agent.Role
	taskType string
}{
	"content_creation":     {agent.RoleContentCreator, "create_post"},
	"content_curation":     {agent.RoleContentCurator, "curate_content"},
	"engagement":           {agent.RoleEngagementManager, "engage_community"},
	"performance_analysis": {agent.RolePerformanceAnalyst, "analyze_performance"},
	"analysis":             {agent.RolePerformanceAnalyst, "analyze_performance"},
}

// RunAction implements agent.ActionRunner: a decided action becomes an ad
// hoc task routed to the matching handler. Strategy adjustments have no
// handler and resolve to a logged outcome.
func (o *Orchestrator) RunAction(ctx context.Context, accountID string, decision agent.Decision) (string, error) {
	account, _, err := o.account(accountID)
	if err != nil {
		return "", err
	}
	if decision.ActionType == "strategy_adjustment" {
		o.log.Info("strategy adjustment noted",
			logger.Field{Key: "account", Value: accountID},
			logger.Field{Key: "reasoning", Value: decision.Reasoning},
		)
		return "strategy adjustment noted: " + decision.Reasoning, nil
	}

	mapping, ok := actionTaskTypes[decision.ActionType]
	if !ok {
		return "", fmt.Errorf("unknown action type: %s", decision.ActionType)
	}
	handler, ok := o.registry.ForRole(mapping.role)
	if !ok {
		return "", fmt.Errorf("no handler registered for role %s", mapping.role)
	}

	task := agent.NewTask(accountID, "", mapping.taskType, mapping.role, decision.Reasoning)
	if decision.Parameters != nil {
		task.Parameters = decision.Parameters
	}
	if err := task.Start(); err != nil {
		return "", err
	}

	_, err = handler.Execute(ctx, task, account)
	entry := handlers.MemoryEntry{
		TaskID:    task.ID,
		TaskType:  task.Type,
		AccountID: accountID,
		Timestamp: time.Now(),
	}
	if err != nil {
		entry.Note = err.Error()
		handler.UpdateMemory(entry)
		if o.metrics != nil {
			o.metrics.RecordTask(string(agent.TaskFailed))
		}
		return "", err
	}
	entry.Success = true
	entry.Score = 1.0
	handler.UpdateMemory(entry)
	if o.metrics != nil {
		o.metrics.RecordTask(string(agent.TaskCompleted))
	}
	return fmt.Sprintf("%s executed (%s)", decision.ActionType, task.Type), nil
}

// Stop ends continuous mode after the in-flight batch completes.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopped) })
}

func (o *Orchestrator) setRunning(v bool) {
	o.mu.Lock()
	o.running = v
	o.mu.Unlock()
}

// IsRunning reports whether continuous mode is currently looping.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// SystemStatus is the cross-account status snapshot.
type SystemStatus struct {
	IsRunning    bool                            `json:"is_running"`
	Accounts     map[string]*agent.AccountStatus `json:"accounts"`
	TotalGoals   int                             `json:"total_goals"`
	PendingTasks int                             `json:"pending_tasks"`
	Storage      *memory.Stats                   `json:"storage,omitempty"`
}

// GetSystemStatus reports the continuous-mode state, all accounts and
// storage usage.
func (o *Orchestrator) GetSystemStatus() (*SystemStatus, error) {
	status := &SystemStatus{
		IsRunning: o.IsRunning(),
		Accounts:  make(map[string]*agent.AccountStatus),
	}
	for _, id := range o.core.Accounts() {
		s, err := o.core.Status(id)
		if err != nil {
			continue
		}
		status.Accounts[id] = s
		status.TotalGoals += s.ActiveGoals
		status.PendingTasks += s.PendingTasks
	}
	if stats, err := o.store.StorageStats(); err == nil {
		status.Storage = stats
	}
	return status, nil
}

// GetAccountGoals returns the account's current goals.
func (o *Orchestrator) GetAccountGoals(accountID string) ([]*agent.Goal, error) {
	acct, ok := o.core.Context(accountID)
	if !ok {
		return nil, fmt.Errorf("unknown account: %s", accountID)
	}
	return acct.CurrentGoals, nil
}

// GetAccountTasks returns the account's active and completed tasks.
func (o *Orchestrator) GetAccountTasks(accountID string) (active, completed []*agent.Task, err error) {
	acct, ok := o.core.Context(accountID)
	if !ok {
		return nil, nil, fmt.Errorf("unknown account: %s", accountID)
	}
	return acct.ActiveTasks, acct.CompletedTasks, nil
}

// generate performs a direct LLM call for orchestrator-level prompts.
func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	text, err := retry.DoWithRetry(ctx, func() (string, error) {
		resp, err := o.provider.Generate(ctx, llm.GenerateRequest{
			Prompt: prompt,
			Model:  o.cfg.Model,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}, retry.DefaultConfig())
	if o.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		o.metrics.RecordLLMCall(outcome)
	}
	return text, err
}
