package ports

import (
	"context"

	"github.com/vetclinic/portal/internal/core/domain"
)

// SendMessageInput is the DTO passed from the transport layer to ChatService.
type SendMessageInput struct {
	ConversationID  string
	ClientMessageID string
	Text            string
}

// ChatService is the portal's view of the consultation chat.
type ChatService interface {
	History(ctx context.Context, conversationID string, limit int64) ([]domain.ChatMessage, error)
	Watch(ctx context.Context, conversationID string) (<-chan domain.ChatMessage, error)
	Send(ctx context.Context, sender *domain.Identity, token string, in SendMessageInput) error
}
