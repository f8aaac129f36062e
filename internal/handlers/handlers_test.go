package handlers

import (
	"context"
	"fmt"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/feedpilot/internal/actions"
	"github.com/aatumaykin/feedpilot/internal/agent"
	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/llm"
	"github.com/aatumaykin/feedpilot/internal/logger"
)

var testAccount = config.Account{
	ID:             "acct1",
	Username:       "gopher",
	Personality:    "friendly and technical",
	Niche:          "golang",
	TargetKeywords: []string{"go", "concurrency"},
	Active:         true,
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func TestHandlerMemoryBound(t *testing.T) {
	h := NewContentCreator(llm.NewEchoProvider(), "", actions.NewNoop(testLogger(t)), testLogger(t))

	for i := 0; i < memoryLimit+10; i++ {
		h.UpdateMemory(MemoryEntry{
			TaskID:    fmt.Sprintf("task%d", i),
			Success:   true,
			Timestamp: time.Now(),
		})
	}
	assert.Len(t, h.memory, memoryLimit)

	// Oldest entries were evicted first
	assert.Equal(t, "task10", h.memory[0].TaskID)
}

func TestAnalyzePerformanceEmptyMemory(t *testing.T) {
	h := NewContentCreator(llm.NewEchoProvider(), "", actions.NewNoop(testLogger(t)), testLogger(t))

	perf := h.AnalyzePerformance()
	assert.Equal(t, 0.0, perf["success_rate"])
	assert.Equal(t, 0.0, perf["tasks_completed"])
	assert.Equal(t, 0.0, perf["avg_performance"])
}

func TestAnalyzePerformanceSuccessRate(t *testing.T) {
	h := NewContentCreator(llm.NewEchoProvider(), "", actions.NewNoop(testLogger(t)), testLogger(t))

	for i := 0; i < 4; i++ {
		h.UpdateMemory(MemoryEntry{TaskID: fmt.Sprintf("t%d", i), Success: i%2 == 0, Timestamp: time.Now()})
	}
	perf := h.AnalyzePerformance()
	assert.Equal(t, 0.5, perf["success_rate"])
	assert.Equal(t, 4.0, perf["tasks_completed"])

	// No scored entries yet
	assert.Equal(t, 0.0, perf["avg_performance"])
}

func TestAnalyzePerformanceAveragesScores(t *testing.T) {
	h := NewContentCreator(llm.NewEchoProvider(), "", actions.NewNoop(testLogger(t)), testLogger(t))

	h.UpdateMemory(MemoryEntry{TaskID: "t1", Success: true, Score: 0.6, Timestamp: time.Now()})
	h.UpdateMemory(MemoryEntry{TaskID: "t2", Success: true, Score: 0.8, Timestamp: time.Now()})
	h.UpdateMemory(MemoryEntry{TaskID: "t3", Success: false, Timestamp: time.Now()})

	perf := h.AnalyzePerformance()
	assert.InDelta(t, 0.7, perf["avg_performance"], 1e-9)
	assert.Equal(t, 3.0, perf["tasks_completed"])
}

func TestCreatorCanHandle(t *testing.T) {
	h := NewContentCreator(llm.NewEchoProvider(), "", actions.NewNoop(testLogger(t)), testLogger(t))
	for _, taskType := range []string{"create_post", "create_thread", "write_reply", "generate_content"} {
		assert.True(t, h.CanHandle(taskType), taskType)
	}
	assert.False(t, h.CanHandle("curate_content"))
	assert.Equal(t, agent.RoleContentCreator, h.Role())
}

func TestCreatorCreatePost(t *testing.T) {
	executor := actions.NewNoop(testLogger(t))
	h := NewContentCreator(llm.NewFixedProvider("Hello, gophers!"), "", executor, testLogger(t))

	task := agent.NewTask("acct1", "", "create_post", agent.RoleContentCreator, "say hi")
	res, err := h.Execute(context.Background(), task, testAccount)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Hello, gophers!", res.Output["text"])
	assert.NotEmpty(t, res.Output["post_id"])

	records := executor.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "post", records[0].Kind)
	assert.Equal(t, "acct1", records[0].AccountID)
}

func TestCreatorCreateThread(t *testing.T) {
	executor := actions.NewNoop(testLogger(t))
	h := NewContentCreator(llm.NewFixedProvider(`["part one", "part two", "part three"]`), "", executor, testLogger(t))

	task := agent.NewTask("acct1", "", "create_thread", agent.RoleContentCreator, "explain channels")
	res, err := h.Execute(context.Background(), task, testAccount)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Output["length"])

	// Head is a post, the rest are replies chained to it
	records := executor.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "post", records[0].Kind)
	assert.Equal(t, "reply", records[1].Kind)
	assert.Equal(t, "reply", records[2].Kind)
}

func TestCreatorWriteReplyRequiresTarget(t *testing.T) {
	h := NewContentCreator(llm.NewFixedProvider("thanks!"), "", actions.NewNoop(testLogger(t)), testLogger(t))

	task := agent.NewTask("acct1", "", "write_reply", agent.RoleContentCreator, "reply")
	_, err := h.Execute(context.Background(), task, testAccount)
	assert.Error(t, err)

	task.Parameters["target_id"] = "post123"
	res, err := h.Execute(context.Background(), task, testAccount)
	require.NoError(t, err)
	assert.Equal(t, "post123", res.Output["target_id"])
}

func TestCuratorListTasks(t *testing.T) {
	h := NewContentCurator(llm.NewFixedProvider(`["item one", "item two"]`), "", nil, testLogger(t))

	for taskType, key := range map[string]string{
		"curate_content":         "curated",
		"find_trending":          "trending",
		"discover_opportunities": "opportunities",
	} {
		task := agent.NewTask("acct1", "", taskType, agent.RoleContentCurator, "find stuff")
		res, err := h.Execute(context.Background(), task, testAccount)
		require.NoError(t, err, taskType)
		assert.Equal(t, 2, res.Output["count"], taskType)
		assert.Len(t, res.Output[key], 2, taskType)
	}
}

func TestCuratorAnalyzeContentRequiresURL(t *testing.T) {
	h := NewContentCurator(llm.NewEchoProvider(), "", nil, testLogger(t))
	task := agent.NewTask("acct1", "", "analyze_content", agent.RoleContentCurator, "analyze")
	_, err := h.Execute(context.Background(), task, testAccount)
	assert.Error(t, err)
}

func TestTruncateAtRuneBoundary(t *testing.T) {
	// Each rune is 3 bytes; a 7-byte limit lands mid-rune and must back off
	got := truncateAtRune("日本語テキスト", 7)
	assert.Equal(t, "日本", got)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "abc", truncateAtRune("abcdef", 3))
	assert.Equal(t, "short", truncateAtRune("short", 10))

	// A limit landing exactly on a rune boundary cuts cleanly
	assert.Equal(t, "日本語", truncateAtRune("日本語テキスト", 9))
}

func TestEngagementTargets(t *testing.T) {
	executor := actions.NewNoop(testLogger(t))
	h := NewEngagementManager(llm.NewEchoProvider(), "", executor, testLogger(t))

	task := agent.NewTask("acct1", "", "like_posts", agent.RoleEngagementManager, "like them")
	task.Parameters["targets"] = []any{"p1", "p2", "p3"}

	res, err := h.Execute(context.Background(), task, testAccount)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Output["count"])
	assert.Len(t, executor.Records(), 3)
}

func TestEngagementTargetsRequired(t *testing.T) {
	h := NewEngagementManager(llm.NewEchoProvider(), "", actions.NewNoop(testLogger(t)), testLogger(t))
	task := agent.NewTask("acct1", "", "follow_accounts", agent.RoleEngagementManager, "follow")
	_, err := h.Execute(context.Background(), task, testAccount)
	assert.Error(t, err)
}

func TestEngagementReplyToMention(t *testing.T) {
	executor := actions.NewNoop(testLogger(t))
	h := NewEngagementManager(llm.NewFixedProvider("Thanks for the shout-out!"), "", executor, testLogger(t))

	task := agent.NewTask("acct1", "", "reply_to_mention", agent.RoleEngagementManager, "reply")
	task.Parameters["mention_id"] = "m42"
	task.Parameters["mention_text"] = "love this account"

	res, err := h.Execute(context.Background(), task, testAccount)
	require.NoError(t, err)
	assert.Equal(t, "m42", res.Output["mention_id"])

	records := executor.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "reply", records[0].Kind)
	assert.Equal(t, "m42", records[0].Target)
}

func TestAnalystAnalyzePerformance(t *testing.T) {
	registry := NewRegistry()
	creator := NewContentCreator(llm.NewEchoProvider(), "", actions.NewNoop(testLogger(t)), testLogger(t))
	registry.Register(creator)
	analyst := NewPerformanceAnalyst(llm.NewEchoProvider(), "", registry, testLogger(t))
	registry.Register(analyst)

	creator.UpdateMemory(MemoryEntry{TaskID: "t1", Success: true, Timestamp: time.Now()})
	creator.UpdateMemory(MemoryEntry{TaskID: "t2", Success: false, Timestamp: time.Now()})

	task := agent.NewTask("acct1", "", "analyze_performance", agent.RolePerformanceAnalyst, "analyze")
	res, err := analyst.Execute(context.Background(), task, testAccount)
	require.NoError(t, err)

	byRole, ok := res.Output["by_role"].(map[string]any)
	require.True(t, ok)
	creatorStats, ok := byRole["content_creator"].(map[string]float64)
	require.True(t, ok)
	assert.Equal(t, 0.5, creatorStats["success_rate"])
	assert.Equal(t, 2.0, creatorStats["tasks_completed"])

	// The analyst itself has an empty memory and reports zeros
	analystStats := byRole["performance_analyst"].(map[string]float64)
	assert.Equal(t, 0.0, analystStats["success_rate"])
	assert.Equal(t, 0.0, analystStats["tasks_completed"])
}

func TestAnalystTrackMetrics(t *testing.T) {
	analyst := NewPerformanceAnalyst(llm.NewEchoProvider(), "", NewRegistry(), testLogger(t))

	task := agent.NewTask("acct1", "", "track_metrics", agent.RolePerformanceAnalyst, "track")
	_, err := analyst.Execute(context.Background(), task, testAccount)
	assert.Error(t, err)

	task.Parameters["metrics"] = map[string]any{"followers": 120.0, "likes": 34.0}
	res, err := analyst.Execute(context.Background(), task, testAccount)
	require.NoError(t, err)
	metrics := res.Output["metrics"].(map[string]float64)
	assert.Equal(t, 120.0, metrics["followers"])
}

func TestRegistryForTask(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewContentCreator(llm.NewEchoProvider(), "", actions.NewNoop(testLogger(t)), testLogger(t)))

	task := agent.NewTask("a", "", "create_post", agent.RoleContentCreator, "d")
	h, err := registry.ForTask(task)
	require.NoError(t, err)
	assert.Equal(t, agent.RoleContentCreator, h.Role())

	// Wrong type for the role
	bad := agent.NewTask("a", "", "curate_content", agent.RoleContentCreator, "d")
	_, err = registry.ForTask(bad)
	assert.Error(t, err)

	// No handler for the role
	missing := agent.NewTask("a", "", "curate_content", agent.RoleContentCurator, "d")
	_, err = registry.ForTask(missing)
	assert.Error(t, err)
}
