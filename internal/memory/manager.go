// Package memory persists per-account state as JSON files. Three file
// families live under the storage root: context snapshots, goal history and
// the performance ledger. Loads are fail-soft: a missing or unreadable file
// yields empty state so an account can always start.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aatumaykin/feedpilot/internal/agent"
	"github.com/aatumaykin/feedpilot/internal/logger"
)

const (
	contextsDir    = "contexts"
	goalsDir       = "goals"
	performanceDir = "performance"

	goalHistoryLimit  = 50
	performanceLimit  = 100
	goalLookbackDays  = 30
	trendWindowDays   = 7
	filePerm          = 0o644
	dirPerm           = 0o755
)

// GoalRecord is one entry in an account's goal history.
type GoalRecord struct {
	GoalID      string             `json:"goal_id"`
	Description string             `json:"description"`
	Status      agent.GoalStatus   `json:"status"`
	Progress    float64            `json:"progress"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	RecordedAt  time.Time          `json:"recorded_at"`
}

// Snapshot is one performance ledger entry.
type Snapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Trend summarizes one metric's recent movement.
type Trend struct {
	Direction string  `json:"direction"` // increasing, decreasing, stable
	Latest    float64 `json:"latest"`
	Average   float64 `json:"average"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Points    int     `json:"points"`
}

// Stats reports storage usage.
type Stats struct {
	Contexts         int   `json:"contexts"`
	GoalFiles        int   `json:"goal_files"`
	PerformanceFiles int   `json:"performance_files"`
	TotalBytes       int64 `json:"total_bytes"`
}

// Manager owns the storage directory layout and file access. All writes go
// through the per-manager mutex; callers are expected to serialize access per
// account for reads of mutable context state.
type Manager struct {
	root string
	log  *logger.Logger
	mu   sync.Mutex
}

// NewManager creates the storage layout under root.
func NewManager(root string, log *logger.Logger) (*Manager, error) {
	for _, sub := range []string{contextsDir, goalsDir, performanceDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", sub, err)
		}
	}
	return &Manager{root: root, log: log}, nil
}

func (m *Manager) contextPath(accountID string) string {
	return filepath.Join(m.root, contextsDir, accountID+"_context.json")
}

func (m *Manager) goalsPath(accountID string) string {
	return filepath.Join(m.root, goalsDir, accountID+"_goals.json")
}

func (m *Manager) performancePath(accountID string) string {
	return filepath.Join(m.root, performanceDir, accountID+"_performance.json")
}

// SaveContext persists an account context snapshot.
func (m *Manager) SaveContext(ctx *agent.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return writeJSON(m.contextPath(ctx.AccountID), ctx)
}

// LoadContext restores a persisted context. A missing file returns (nil, nil);
// a corrupt file is logged and also yields (nil, nil) so the account starts
// fresh rather than being stuck.
func (m *Manager) LoadContext(accountID string) (*agent.Context, error) {
	data, err := os.ReadFile(m.contextPath(accountID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read context for %s: %w", accountID, err)
	}
	var ctx agent.Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		m.log.Warn("discarding corrupt context file",
			logger.Field{Key: "account", Value: accountID},
			logger.Field{Key: "error", Value: err.Error()},
		)
		return nil, nil
	}
	if ctx.Memory == nil {
		ctx.Memory = agent.NewMemory()
	}
	return &ctx, nil
}

// RecordGoal appends a goal record to the account's history, bounded at
// goalHistoryLimit entries with FIFO eviction.
func (m *Manager) RecordGoal(accountID string, goal *agent.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.readGoalHistory(accountID)
	records = append(records, GoalRecord{
		GoalID:      goal.ID,
		Description: goal.Description,
		Status:      goal.Status,
		Progress:    goal.Progress,
		Metrics:     goal.TargetMetrics,
		RecordedAt:  time.Now(),
	})
	if len(records) > goalHistoryLimit {
		records = records[len(records)-goalHistoryLimit:]
	}
	return writeJSON(m.goalsPath(accountID), records)
}

// GoalHistory returns records from the last lookbackDays days; zero or
// negative selects the 30 day default. Records whose timestamp failed to
// parse are treated as epoch and therefore fall outside the window.
func (m *Manager) GoalHistory(accountID string, lookbackDays int) []GoalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lookbackDays <= 0 {
		lookbackDays = goalLookbackDays
	}
	cutoff := time.Now().AddDate(0, 0, -lookbackDays)
	var out []GoalRecord
	for _, r := range m.readGoalHistory(accountID) {
		if r.RecordedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func (m *Manager) readGoalHistory(accountID string) []GoalRecord {
	data, err := os.ReadFile(m.goalsPath(accountID))
	if err != nil {
		return nil
	}
	var records []GoalRecord
	if err := json.Unmarshal(data, &records); err != nil {
		m.log.Warn("discarding corrupt goal history",
			logger.Field{Key: "account", Value: accountID},
		)
		return nil
	}
	return records
}

// RecordSnapshot appends a performance snapshot, bounded at performanceLimit
// entries with FIFO eviction.
func (m *Manager) RecordSnapshot(accountID string, metrics map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshots := m.readSnapshots(accountID)
	snapshots = append(snapshots, Snapshot{
		Timestamp: time.Now(),
		Metrics:   metrics,
	})
	if len(snapshots) > performanceLimit {
		snapshots = snapshots[len(snapshots)-performanceLimit:]
	}
	return writeJSON(m.performancePath(accountID), snapshots)
}

// Trends computes per-metric trends over the last windowDays days; zero or
// negative selects the 7 day default. A metric needs at least 2 points
// inside the window; direction compares the last point to the first.
func (m *Manager) Trends(accountID string, windowDays int) map[string]Trend {
	m.mu.Lock()
	defer m.mu.Unlock()

	if windowDays <= 0 {
		windowDays = trendWindowDays
	}
	cutoff := time.Now().AddDate(0, 0, -windowDays)
	series := make(map[string][]float64)
	for _, snap := range m.readSnapshots(accountID) {
		if !snap.Timestamp.After(cutoff) {
			continue
		}
		for name, v := range snap.Metrics {
			series[name] = append(series[name], v)
		}
	}

	trends := make(map[string]Trend)
	for name, values := range series {
		if len(values) < 2 {
			continue
		}
		first, last := values[0], values[len(values)-1]
		direction := "stable"
		if last > first {
			direction = "increasing"
		} else if last < first {
			direction = "decreasing"
		}
		min, max, sum := values[0], values[0], 0.0
		for _, v := range values {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += v
		}
		trends[name] = Trend{
			Direction: direction,
			Latest:    last,
			Average:   sum / float64(len(values)),
			Min:       min,
			Max:       max,
			Points:    len(values),
		}
	}
	return trends
}

func (m *Manager) readSnapshots(accountID string) []Snapshot {
	data, err := os.ReadFile(m.performancePath(accountID))
	if err != nil {
		return nil
	}
	var snapshots []Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		m.log.Warn("discarding corrupt performance ledger",
			logger.Field{Key: "account", Value: accountID},
		)
		return nil
	}
	return snapshots
}

// Cleanup removes data older than retentionDays. Context files are dropped
// by modification time. Performance files are rewritten with only the entries
// inside retention and deleted when nothing remains.
func (m *Manager) Cleanup(retentionDays int) (removed int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	contextFiles, err := os.ReadDir(filepath.Join(m.root, contextsDir))
	if err != nil {
		return 0, fmt.Errorf("failed to list context files: %w", err)
	}
	for _, entry := range contextFiles {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(m.root, contextsDir, entry.Name())
			if err := os.Remove(path); err != nil {
				m.log.Warn("failed to remove stale context file",
					logger.Field{Key: "file", Value: entry.Name()},
				)
				continue
			}
			removed++
		}
	}

	perfFiles, err := os.ReadDir(filepath.Join(m.root, performanceDir))
	if err != nil {
		return removed, fmt.Errorf("failed to list performance files: %w", err)
	}
	for _, entry := range perfFiles {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(m.root, performanceDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var snapshots []Snapshot
		if err := json.Unmarshal(data, &snapshots); err != nil {
			continue
		}
		kept := snapshots[:0]
		for _, snap := range snapshots {
			if snap.Timestamp.After(cutoff) {
				kept = append(kept, snap)
			}
		}
		if len(kept) == len(snapshots) {
			continue
		}
		if len(kept) == 0 {
			if err := os.Remove(path); err == nil {
				removed++
			}
			continue
		}
		if err := writeJSON(path, kept); err != nil {
			m.log.Warn("failed to rewrite performance ledger",
				logger.Field{Key: "file", Value: entry.Name()},
			)
		}
	}

	m.log.Info("retention cleanup finished",
		logger.Field{Key: "removed_files", Value: removed},
		logger.Field{Key: "retention_days", Value: retentionDays},
	)
	return removed, nil
}

// StorageStats reports file counts and total size per directory family.
func (m *Manager) StorageStats() (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{}
	count := func(sub string) (int, error) {
		entries, err := os.ReadDir(filepath.Join(m.root, sub))
		if err != nil {
			return 0, err
		}
		n := 0
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			n++
			if info, err := e.Info(); err == nil {
				stats.TotalBytes += info.Size()
			}
		}
		return n, nil
	}

	var err error
	if stats.Contexts, err = count(contextsDir); err != nil {
		return nil, err
	}
	if stats.GoalFiles, err = count(goalsDir); err != nil {
		return nil, err
	}
	if stats.PerformanceFiles, err = count(performanceDir); err != nil {
		return nil, err
	}
	return stats, nil
}

// Accounts lists account ids that have persisted context files.
func (m *Manager) Accounts() []string {
	entries, err := os.ReadDir(filepath.Join(m.root, contextsDir))
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, "_context.json") {
			ids = append(ids, strings.TrimSuffix(name, "_context.json"))
		}
	}
	sort.Strings(ids)
	return ids
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
