package domain

import "time"

// ChatMessage is one entry of a conversation log. Conversations are keyed by
// consultation id and ordered by Timestamp.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	SenderRole     Role      `json:"sender_role"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// OutboundMessage is a chat message queued for delivery to the clinic API.
// The bearer token is captured when the message is accepted so delivery does
// not depend on the tab still being logged in.
type OutboundMessage struct {
	ConversationID  string
	ClientMessageID string
	Text            string
	SenderID        int64
	Token           string
}
