package ports

import (
	"context"

	"github.com/vetclinic/portal/internal/core/domain"
)

// ChatRepository reads the append-only conversation log.
type ChatRepository interface {
	// List returns up to limit messages of a conversation, oldest first.
	List(ctx context.Context, conversationID string, limit int64) ([]domain.ChatMessage, error)
	// Watch streams messages appended after the call until ctx is cancelled.
	Watch(ctx context.Context, conversationID string) (<-chan domain.ChatMessage, error)
}

// MessageDeduper claims a client-generated message id so double submits are dropped.
type MessageDeduper interface {
	// Claim returns true the first time (conversationID, clientMessageID) is seen.
	Claim(ctx context.Context, conversationID, clientMessageID string) (bool, error)
	// Release forgets a claim so the same message can be submitted again.
	Release(ctx context.Context, conversationID, clientMessageID string) error
}

// ChatQueue accepts outbound messages for ordered, asynchronous delivery.
type ChatQueue interface {
	// Enqueue returns domain.ErrChatUnavailable once the queue stopped
	// accepting messages.
	Enqueue(msg domain.OutboundMessage) error
}
