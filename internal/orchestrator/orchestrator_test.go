package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/feedpilot/internal/actions"
	"github.com/aatumaykin/feedpilot/internal/agent"
	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/handlers"
	"github.com/aatumaykin/feedpilot/internal/llm"
	"github.com/aatumaykin/feedpilot/internal/logger"
	"github.com/aatumaykin/feedpilot/internal/memory"
	"github.com/aatumaykin/feedpilot/internal/retry"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func testAccounts() []config.Account {
	return []config.Account{
		{ID: "acct1", Username: "gopher", Niche: "golang", Active: true},
		{ID: "dormant", Username: "sleeper", Active: false},
	}
}

func newTestOrchestrator(t *testing.T, provider llm.Provider) (*Orchestrator, *memory.Manager) {
	t.Helper()
	log := testLogger(t)

	store, err := memory.NewManager(t.TempDir(), log)
	require.NoError(t, err)

	executor := actions.NewNoop(log)
	registry := handlers.NewRegistry()
	registry.Register(handlers.NewContentCreator(provider, "", executor, log))
	registry.Register(handlers.NewContentCurator(provider, "", nil, log))
	registry.Register(handlers.NewEngagementManager(provider, "", executor, log))
	registry.Register(handlers.NewPerformanceAnalyst(provider, "", registry, log))

	core := agent.NewCore(provider, nil, log, agent.CoreConfig{
		Retry: retry.Config{MaxAttempts: 1},
	})

	o := New(core, registry, store, provider, nil, log, Config{
		CycleInterval:         10 * time.Millisecond,
		MaxConcurrentAccounts: 3,
	})
	require.NoError(t, o.Initialize(testAccounts()))
	return o, store
}

func TestInitializeSkipsInactiveAccounts(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewErrorProvider())
	assert.Equal(t, []string{"acct1"}, o.core.Accounts())
}

func TestInitializeRequiresActiveAccounts(t *testing.T) {
	log := testLogger(t)
	store, err := memory.NewManager(t.TempDir(), log)
	require.NoError(t, err)
	provider := llm.NewErrorProvider()
	core := agent.NewCore(provider, nil, log, agent.CoreConfig{})
	o := New(core, handlers.NewRegistry(), store, provider, nil, log, Config{})

	err = o.Initialize([]config.Account{{ID: "x", Active: false}})
	assert.Error(t, err)
}

func TestInitializeRestoresPersistedContext(t *testing.T) {
	log := testLogger(t)
	dir := t.TempDir()
	store, err := memory.NewManager(dir, log)
	require.NoError(t, err)

	persisted := agent.NewContext("acct1")
	persisted.CurrentGoals = append(persisted.CurrentGoals, agent.NewGoal("acct1", "persisted goal", nil, nil))
	require.NoError(t, store.SaveContext(persisted))

	provider := llm.NewErrorProvider()
	core := agent.NewCore(provider, nil, log, agent.CoreConfig{})
	o := New(core, handlers.NewRegistry(), store, provider, nil, log, Config{})
	require.NoError(t, o.Initialize(testAccounts()))

	goals, err := o.GetAccountGoals("acct1")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "persisted goal", goals[0].Description)
}

func TestAddGoalFromNaturalLanguage(t *testing.T) {
	parse := `{"description": "Reach 500 followers", "target_metrics": {"followers": 500}, "deadline_days": 30, "priority": "high"}`
	plan := `[{"role": "content_creator", "type": "create_post", "description": "post daily", "priority": "high"}]`
	o, _ := newTestOrchestrator(t, llm.NewFixturesProvider([]string{parse, plan}))

	goal, err := o.AddGoalFromNaturalLanguage(context.Background(), "acct1", "grow my account to 500 followers in a month")
	require.NoError(t, err)

	assert.Equal(t, "Reach 500 followers", goal.Description)
	assert.Equal(t, 500.0, goal.TargetMetrics["followers"])
	assert.Equal(t, agent.PriorityHigh, goal.Priority)
	require.NotNil(t, goal.Deadline)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *goal.Deadline, 2*time.Second)

	active, _, err := o.GetAccountTasks("acct1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "create_post", active[0].Type)
}

func TestAddGoalSecondStageRepair(t *testing.T) {
	repaired := `{"description": "Reach 500 followers", "target_metrics": {"followers": 500}, "deadline_days": 14, "priority": "medium"}`
	o, _ := newTestOrchestrator(t, llm.NewFixturesProvider([]string{
		"Sure! Here is the goal you asked about, in prose instead of JSON.",
		repaired,
		"planning output that is not json",
	}))

	goal, err := o.AddGoalFromNaturalLanguage(context.Background(), "acct1", "grow to 500 followers")
	require.NoError(t, err)
	assert.Equal(t, 500.0, goal.TargetMetrics["followers"])
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 14), *goal.Deadline, 2*time.Second)
}

func TestAddGoalFallbackNeverFails(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewErrorProvider())

	text := "dominate the timeline"
	goal, err := o.AddGoalFromNaturalLanguage(context.Background(), "acct1", text)
	require.NoError(t, err)

	// The placeholder goal carries the raw text and a general progress target
	assert.Equal(t, text, goal.Description)
	assert.Equal(t, map[string]float64{"general_progress": 1.0}, goal.TargetMetrics)
	require.NotNil(t, goal.Deadline)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *goal.Deadline, 2*time.Second)
	assert.Equal(t, agent.PriorityMedium, goal.Priority)
}

func TestAddGoalEmptyText(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewErrorProvider())
	_, err := o.AddGoalFromNaturalLanguage(context.Background(), "acct1", "   ")
	assert.Error(t, err)
}

func TestAddGoalUnknownAccount(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewErrorProvider())
	_, err := o.AddGoalFromNaturalLanguage(context.Background(), "ghost", "grow")
	assert.Error(t, err)
}

func TestRunSingleCyclePersistsState(t *testing.T) {
	decisions := `[{"action_type": "performance_analysis", "confidence": 0.9, "reasoning": "check numbers", "urgency": "low"}]`
	situation := `{"goal_progress": "ok", "opportunities": "", "content_needs": "", "performance_trends": "", "recommendations": ""}`
	o, store := newTestOrchestrator(t, llm.NewFixturesProvider([]string{situation, decisions}))

	result, err := o.RunSingleCycle(context.Background(), "acct1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.DecisionsMade)
	assert.Equal(t, 1, result.TasksExecuted)

	// Context and a performance snapshot were written
	loaded, err := store.LoadContext("acct1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Memory.ActionHistory, 1)

	stats, err := store.StorageStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PerformanceFiles)
}

func TestDispatchRetriesThenFailsTask(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewErrorProvider())

	acct, ok := o.core.Context("acct1")
	require.True(t, ok)
	task := agent.NewTask("acct1", "", "create_post", agent.RoleContentCreator, "will fail")
	acct.ActiveTasks = append(acct.ActiveTasks, task)

	// Each cycle retries the failing task until the budget is exhausted
	for i := 1; i <= agent.DefaultMaxRetries; i++ {
		_, err := o.RunSingleCycle(context.Background(), "acct1")
		require.NoError(t, err)
		assert.Equal(t, agent.TaskPending, task.Status, "cycle %d", i)
		assert.Equal(t, i, task.RetryCount)
	}

	_, err := o.RunSingleCycle(context.Background(), "acct1")
	require.NoError(t, err)
	assert.Equal(t, agent.TaskFailed, task.Status)

	// The exhausted task moved to the completed collection
	active, completed, err := o.GetAccountTasks("acct1")
	require.NoError(t, err)
	assert.Empty(t, active)
	require.Len(t, completed, 1)
	assert.Equal(t, task.ID, completed[0].ID)
}

func TestDispatchSkipsFutureScheduledTasks(t *testing.T) {
	parse := `{"description": "d", "target_metrics": {"x": 1}, "deadline_days": 30, "priority": "low"}`
	o, _ := newTestOrchestrator(t, llm.NewFixturesProvider([]string{parse}))

	acct, _ := o.core.Context("acct1")
	future := time.Now().Add(time.Hour)
	task := agent.NewTask("acct1", "", "create_post", agent.RoleContentCreator, "later")
	task.ScheduledFor = &future
	acct.ActiveTasks = append(acct.ActiveTasks, task)

	_, err := o.RunSingleCycle(context.Background(), "acct1")
	require.NoError(t, err)
	assert.Equal(t, agent.TaskPending, task.Status)
	assert.Zero(t, task.RetryCount)
}

func TestRunActionRoutesToHandler(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewFixedProvider("generated text"))

	outcome, err := o.RunAction(context.Background(), "acct1", agent.Decision{
		ActionType: "content_creation",
		Confidence: 0.9,
		Reasoning:  "post something",
	})
	require.NoError(t, err)
	assert.Contains(t, outcome, "content_creation")
}

func TestRunActionStrategyAdjustment(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewErrorProvider())

	outcome, err := o.RunAction(context.Background(), "acct1", agent.Decision{
		ActionType: "strategy_adjustment",
		Reasoning:  "shift to video",
	})
	require.NoError(t, err)
	assert.Contains(t, outcome, "shift to video")
}

func TestRunActionUnknownType(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewErrorProvider())
	_, err := o.RunAction(context.Background(), "acct1", agent.Decision{ActionType: "teleport"})
	assert.Error(t, err)
}

func TestSweepArchivesFinishedGoals(t *testing.T) {
	o, store := newTestOrchestrator(t, llm.NewErrorProvider())

	acct, _ := o.core.Context("acct1")
	done := agent.NewGoal("acct1", "finished", nil, nil)
	done.RecordProgress(1.0)
	past := time.Now().Add(-time.Hour)
	expired := agent.NewGoal("acct1", "expired", nil, &past)
	open := agent.NewGoal("acct1", "still going", nil, nil)
	acct.CurrentGoals = append(acct.CurrentGoals, done, expired, open)

	o.sweepGoals()

	goals, err := o.GetAccountGoals("acct1")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "still going", goals[0].Description)
	assert.Equal(t, agent.GoalArchived, done.Status)
	assert.Equal(t, agent.GoalArchived, expired.Status)

	// Archived goals land in the goal history
	history := store.GoalHistory("acct1", 0)
	assert.Len(t, history, 2)
}

func TestGetSystemStatus(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewErrorProvider())

	_, err := o.AddGoalFromNaturalLanguage(context.Background(), "acct1", "grow")
	require.NoError(t, err)

	status, err := o.GetSystemStatus()
	require.NoError(t, err)
	require.Contains(t, status.Accounts, "acct1")
	assert.Equal(t, 1, status.TotalGoals)
	assert.NotNil(t, status.Storage)
	assert.False(t, status.IsRunning)
}

func TestRunAllCycles(t *testing.T) {
	o, store := newTestOrchestrator(t, llm.NewErrorProvider())

	results, err := o.RunAllCycles(context.Background())
	require.NoError(t, err)

	// One entry per registered account; the inactive account is absent
	require.Len(t, results, 1)
	require.Contains(t, results, "acct1")
	assert.NotNil(t, results["acct1"])

	loaded, err := store.LoadContext("acct1")
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestStopEndsContinuousMode(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewErrorProvider())

	done := make(chan error, 1)
	go func() {
		done <- o.RunContinuousMode(context.Background())
	}()

	time.Sleep(30 * time.Millisecond)
	assert.True(t, o.IsRunning())
	o.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("continuous mode did not stop")
	}
	assert.False(t, o.IsRunning())
}

func TestContextCancelEndsContinuousMode(t *testing.T) {
	o, _ := newTestOrchestrator(t, llm.NewErrorProvider())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- o.RunContinuousMode(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("continuous mode did not stop")
	}
}
