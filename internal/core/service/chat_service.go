package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/ports"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

type chatService struct {
	repo  ports.ChatRepository
	dedup ports.MessageDeduper
	queue ports.ChatQueue
	log   zerolog.Logger
}

// NewChatService returns a ChatService implementation.
func NewChatService(
	repo ports.ChatRepository,
	dedup ports.MessageDeduper,
	queue ports.ChatQueue,
	log zerolog.Logger,
) ports.ChatService {
	return &chatService{repo: repo, dedup: dedup, queue: queue, log: log}
}

// History returns the conversation log, oldest first.
func (s *chatService) History(ctx context.Context, conversationID string, limit int64) ([]domain.ChatMessage, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	msgs, err := s.repo.List(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	return msgs, nil
}

func (s *chatService) Watch(ctx context.Context, conversationID string) (<-chan domain.ChatMessage, error) {
	ch, err := s.repo.Watch(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("chat watch: %w", err)
	}
	return ch, nil
}

// Send de-duplicates on the client message id and queues the message for
// ordered delivery to the clinic API.
func (s *chatService) Send(ctx context.Context, sender *domain.Identity, token string, in ports.SendMessageInput) error {
	if sender == nil || token == "" {
		return domain.ErrNotAuthenticated
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return domain.ErrEmptyMessage
	}

	// 1. Idempotency. A de-dup outage does not block the chat.
	if in.ClientMessageID != "" {
		first, err := s.dedup.Claim(ctx, in.ConversationID, in.ClientMessageID)
		if err != nil {
			s.log.Warn().Err(err).Str("conversation", in.ConversationID).Msg("dedup claim failed, sending anyway")
		} else if !first {
			s.log.Debug().Str("conversation", in.ConversationID).Str("client_message_id", in.ClientMessageID).Msg("duplicate message skipped")
			return domain.ErrDuplicateMessage
		}
	}

	// 2. Hand off to the per-conversation ordered queue.
	err := s.queue.Enqueue(domain.OutboundMessage{
		ConversationID:  in.ConversationID,
		ClientMessageID: in.ClientMessageID,
		Text:            text,
		SenderID:        sender.ID,
		Token:           token,
	})
	if err != nil {
		if in.ClientMessageID != "" {
			if relErr := s.dedup.Release(context.WithoutCancel(ctx), in.ConversationID, in.ClientMessageID); relErr != nil {
				s.log.Warn().Err(relErr).Str("conversation", in.ConversationID).Msg("dedup release failed")
			}
		}
		return fmt.Errorf("chat send: %w", err)
	}

	s.log.Info().
		Str("conversation", in.ConversationID).
		Int64("sender_id", sender.ID).
		Msg("chat message queued")
	return nil
}
