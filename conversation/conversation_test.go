//go:build cgo

package conversation

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelai/localrag/signals"
	"github.com/kestrelai/localrag/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath, 3)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerateTitleShortMessageUnchanged(t *testing.T) {
	assert.Equal(t, "hello there", GenerateTitle("  hello there  "))
}

func TestGenerateTitleTruncatesLongMessage(t *testing.T) {
	long := strings.Repeat("a", 80)
	got := GenerateTitle(long)
	assert.True(t, strings.HasSuffix(got, "…"), "expected ellipsis suffix, got %q", got)
	assert.Len(t, []rune(got), maxTitleLength+1)
}

func TestGetOrCreateCreatesWhenIDNil(t *testing.T) {
	c := New(newTestStore(t), nil)
	conv, err := c.GetOrCreate(context.Background(), nil, "chat-model")
	require.NoError(t, err)
	assert.Equal(t, "New Conversation", conv.Title)
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	c := New(newTestStore(t), nil)
	ctx := context.Background()
	id, err := c.Create(ctx, "My Chat", "chat-model")
	require.NoError(t, err)

	conv, err := c.GetOrCreate(ctx, &id, "chat-model")
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	assert.Equal(t, "My Chat", conv.Title)
}

func TestAddMessageAndList(t *testing.T) {
	c := New(newTestStore(t), nil)
	ctx := context.Background()
	id, err := c.Create(ctx, "Chat", "m")
	require.NoError(t, err)

	_, err = c.AddMessage(ctx, store.Message{ConversationID: id, Role: store.RoleUser, Content: "hi"})
	require.NoError(t, err)

	msgs, err := c.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestListSortedNewestFirst(t *testing.T) {
	c := New(newTestStore(t), nil)
	ctx := context.Background()
	first, err := c.Create(ctx, "First", "m")
	require.NoError(t, err)
	second, err := c.Create(ctx, "Second", "m")
	require.NoError(t, err)

	convs, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	ids := map[int64]bool{first: true, second: true}
	assert.True(t, ids[convs[0].ID] && ids[convs[1].ID], "List = %+v, want both created conversations", convs)
}

func TestDeleteRemovesConversationAndMessages(t *testing.T) {
	c := New(newTestStore(t), nil)
	ctx := context.Background()
	id, err := c.Create(ctx, "Chat", "m")
	require.NoError(t, err)
	_, err = c.AddMessage(ctx, store.Message{ConversationID: id, Role: store.RoleUser, Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, id))

	msgs, err := c.Messages(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCreateUpdatesConversationsAndActiveSignals(t *testing.T) {
	sig := signals.NewRegistry()
	c := New(newTestStore(t), sig)

	id, err := c.Create(context.Background(), "Chat", "m")
	require.NoError(t, err)

	require.Len(t, sig.Conversations.Get(), 1)
	active := sig.ActiveConversationID.Get()
	require.NotNil(t, active)
	assert.Equal(t, id, *active)
}

func TestAddMessageRefreshesConversationsSignal(t *testing.T) {
	sig := signals.NewRegistry()
	c := New(newTestStore(t), sig)
	ctx := context.Background()

	id, err := c.Create(ctx, "Chat", "m")
	require.NoError(t, err)
	before := sig.Conversations.Get()[0].UpdatedAt

	_, err = c.AddMessage(ctx, store.Message{ConversationID: id, Role: store.RoleUser, Content: "hi"})
	require.NoError(t, err)

	after := sig.Conversations.Get()[0].UpdatedAt
	assert.False(t, after.Before(before), "updatedAt should not move backwards after AddMessage")
}

func TestGetOrCreateSetsActiveConversation(t *testing.T) {
	sig := signals.NewRegistry()
	c := New(newTestStore(t), sig)
	ctx := context.Background()

	id, err := c.Create(ctx, "Chat", "m")
	require.NoError(t, err)
	sig.ActiveConversationID.Set(nil)

	_, err = c.GetOrCreate(ctx, &id, "m")
	require.NoError(t, err)

	active := sig.ActiveConversationID.Get()
	require.NotNil(t, active)
	assert.Equal(t, id, *active)
}

func TestDeleteClearsActiveConversationWhenItMatches(t *testing.T) {
	sig := signals.NewRegistry()
	c := New(newTestStore(t), sig)
	ctx := context.Background()

	id, err := c.Create(ctx, "Chat", "m")
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, id))

	assert.Nil(t, sig.ActiveConversationID.Get())
}
