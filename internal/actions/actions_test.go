package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/feedpilot/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func TestNoopRecordsAllActions(t *testing.T) {
	noop := NewNoop(testLogger(t))
	ctx := context.Background()

	id, err := noop.Post(ctx, "alice", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "noop-alice-post-1", id)

	replyID, err := noop.Reply(ctx, "alice", id, "a reply")
	require.NoError(t, err)
	assert.Equal(t, "noop-alice-reply-2", replyID)

	require.NoError(t, noop.Like(ctx, "alice", "post-42"))
	require.NoError(t, noop.Repost(ctx, "alice", "post-42"))
	require.NoError(t, noop.Follow(ctx, "alice", "bob"))

	records := noop.Records()
	require.Len(t, records, 5)
	assert.Equal(t, "post", records[0].Kind)
	assert.Equal(t, "hello world", records[0].Text)
	assert.Equal(t, "reply", records[1].Kind)
	assert.Equal(t, id, records[1].Target)
	assert.Equal(t, "like", records[2].Kind)
	assert.Equal(t, "repost", records[3].Kind)
	assert.Equal(t, "follow", records[4].Kind)
	assert.Equal(t, "bob", records[4].Target)
}

func TestNoopReturnsACopy(t *testing.T) {
	noop := NewNoop(testLogger(t))

	_, err := noop.Post(context.Background(), "alice", "one")
	require.NoError(t, err)

	records := noop.Records()
	records[0].Text = "mutated"

	fresh := noop.Records()
	assert.Equal(t, "one", fresh[0].Text)
}
