package ports

import (
	"context"

	"github.com/vetclinic/portal/internal/core/domain"
)

// ClinicAPI is the outbound request pipeline to the remote clinic REST API.
// It carries a default Authorization header applied to every call.
type ClinicAPI interface {
	// Authenticate exchanges credentials for a bearer token.
	Authenticate(ctx context.Context, email, password string) (string, error)
	// CurrentUser fetches the identity behind the default bearer token.
	CurrentUser(ctx context.Context) (*domain.Identity, error)
	// UpdateUser edits the profile of user id.
	UpdateUser(ctx context.Context, id int64, update domain.ProfileUpdate) (*domain.Identity, error)

	SetBearer(token string)
	ClearBearer()
	// Bearer returns the token currently attached, or "".
	Bearer() string
}

// ChatPoster delivers a chat message to the clinic API, which owns the write
// path into the conversation log.
type ChatPoster interface {
	PostChatMessage(ctx context.Context, token, conversationID, text string) error
}

// ConversationGate tells whether the holder of token takes part in the
// consultation a conversation belongs to.
type ConversationGate interface {
	// ConversationAccess returns nil for a participant and an error wrapping
	// domain.ErrForbidden for anyone else.
	ConversationAccess(ctx context.Context, token, conversationID string) error
}
