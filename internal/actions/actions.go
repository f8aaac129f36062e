// Package actions abstracts the platform operations the handlers perform.
// The orchestration core never talks to a social platform directly; handlers
// hand finished content to an Executor. The Noop executor records actions
// without any network side effect and is the only implementation shipped.
package actions

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aatumaykin/feedpilot/internal/logger"
)

// Executor performs platform-side actions on behalf of an account.
type Executor interface {
	Post(ctx context.Context, accountID, text string) (string, error)
	Reply(ctx context.Context, accountID, targetID, text string) (string, error)
	Like(ctx context.Context, accountID, targetID string) error
	Repost(ctx context.Context, accountID, targetID string) error
	Follow(ctx context.Context, accountID, targetUser string) error
}

// Record is one executed action kept by the Noop executor.
type Record struct {
	AccountID string    `json:"account_id"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Noop is an Executor that logs and records actions without performing them.
type Noop struct {
	log *logger.Logger

	mu      sync.Mutex
	records []Record
	nextID  int
}

// NewNoop creates a recording no-op executor.
func NewNoop(log *logger.Logger) *Noop {
	return &Noop{log: log}
}

func (n *Noop) record(accountID, kind, target, text string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.records = append(n.records, Record{
		AccountID: accountID,
		Kind:      kind,
		Target:    target,
		Text:      text,
		Timestamp: time.Now(),
	})
	n.log.Debug("action recorded",
		logger.Field{Key: "account", Value: accountID},
		logger.Field{Key: "kind", Value: kind},
	)
	return "noop-" + accountID + "-" + kind + "-" + strconv.Itoa(n.nextID)
}

func (n *Noop) Post(ctx context.Context, accountID, text string) (string, error) {
	return n.record(accountID, "post", "", text), nil
}

func (n *Noop) Reply(ctx context.Context, accountID, targetID, text string) (string, error) {
	return n.record(accountID, "reply", targetID, text), nil
}

func (n *Noop) Like(ctx context.Context, accountID, targetID string) error {
	n.record(accountID, "like", targetID, "")
	return nil
}

func (n *Noop) Repost(ctx context.Context, accountID, targetID string) error {
	n.record(accountID, "repost", targetID, "")
	return nil
}

func (n *Noop) Follow(ctx context.Context, accountID, targetUser string) error {
	n.record(accountID, "follow", targetUser, "")
	return nil
}

// Records returns a copy of everything executed so far.
func (n *Noop) Records() []Record {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Record, len(n.records))
	copy(out, n.records)
	return out
}
