// Package conversation wraps the store's conversation/message CRUD with
// the title-synthesis and get-or-create semantics spec'd for the
// conversation store (spec §4.12).
package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelai/localrag/signals"
	"github.com/kestrelai/localrag/store"
)

const maxTitleLength = 50

// Store is a thin wrapper over *store.Store's conversation methods that
// also keeps the conversationsSignal and activeConversationIdSignal
// cells current (spec §4.13); sig may be nil for callers that don't
// need the reactive cells kept in sync.
type Store struct {
	s   *store.Store
	sig *signals.Registry
}

func New(s *store.Store, sig *signals.Registry) *Store {
	return &Store{s: s, sig: sig}
}

// refresh reloads the sorted conversation list into the signal. Errors
// are logged by the caller's own store operation, not here; a stale
// signal after a transient read failure is not worth failing the
// mutation that triggered the refresh.
func (c *Store) refresh(ctx context.Context) {
	if c.sig == nil {
		return
	}
	convs, err := c.s.ListConversationsSorted(ctx)
	if err != nil {
		return
	}
	c.sig.Conversations.Set(convs)
}

// Refresh reloads the conversationsSignal from the store; used once at
// engine startup to seed the initial snapshot.
func (c *Store) Refresh(ctx context.Context) {
	c.refresh(ctx)
}

// Create starts a new conversation with the given title and model, and
// becomes the active conversation (spec §4.13 activeConversationIdSignal).
func (c *Store) Create(ctx context.Context, title, model string) (int64, error) {
	id, err := c.s.CreateConversation(ctx, title, model)
	if err != nil {
		return 0, err
	}
	c.refresh(ctx)
	if c.sig != nil {
		c.sig.ActiveConversationID.Set(&id)
	}
	return id, nil
}

// Get returns a single conversation by id.
func (c *Store) Get(ctx context.Context, id int64) (*store.Conversation, error) {
	return c.s.GetConversation(ctx, id)
}

// List returns every conversation, newest-updatedAt first (spec §4.12
// getConversationsSorted).
func (c *Store) List(ctx context.Context) ([]store.Conversation, error) {
	return c.s.ListConversationsSorted(ctx)
}

// Delete removes a conversation and its messages, clearing
// activeConversationIdSignal if it pointed at the deleted conversation.
func (c *Store) Delete(ctx context.Context, id int64) error {
	if err := c.s.DeleteConversation(ctx, id); err != nil {
		return err
	}
	c.refresh(ctx)
	if c.sig != nil {
		if active := c.sig.ActiveConversationID.Get(); active != nil && *active == id {
			c.sig.ActiveConversationID.Set(nil)
		}
	}
	return nil
}

// AddMessage appends a message to a conversation (spec §4.12
// addMessage), refreshing conversationsSignal since it changes updatedAt
// and therefore getConversationsSorted's order.
func (c *Store) AddMessage(ctx context.Context, m store.Message) (int64, error) {
	id, err := c.s.AddMessage(ctx, m)
	if err != nil {
		return 0, err
	}
	c.refresh(ctx)
	return id, nil
}

// Messages returns every message in a conversation, in order.
func (c *Store) Messages(ctx context.Context, conversationID int64) ([]store.Message, error) {
	return c.s.GetMessages(ctx, conversationID)
}

// GetOrCreate returns the conversation identified by id if it exists,
// otherwise creates a new one titled "New Conversation" with the given
// model (spec §4.12 getOrCreateConversation). A nil id always creates.
// Either way, the resolved conversation becomes the active one.
func (c *Store) GetOrCreate(ctx context.Context, id *int64, model string) (*store.Conversation, error) {
	if id != nil {
		existing, err := c.s.GetConversation(ctx, *id)
		if err == nil {
			if c.sig != nil {
				resolved := *id
				c.sig.ActiveConversationID.Set(&resolved)
			}
			return existing, nil
		}
	}
	newID, err := c.s.CreateConversation(ctx, "New Conversation", model)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	c.refresh(ctx)
	if c.sig != nil {
		c.sig.ActiveConversationID.Set(&newID)
	}
	return c.s.GetConversation(ctx, newID)
}

// GenerateTitle returns the first maxTitleLength characters of the
// trimmed message, appending an ellipsis if truncated (spec §4.12
// generateTitle).
func GenerateTitle(firstUserMessage string) string {
	trimmed := strings.TrimSpace(firstUserMessage)
	runes := []rune(trimmed)
	if len(runes) <= maxTitleLength {
		return trimmed
	}
	return string(runes[:maxTitleLength]) + "…"
}
