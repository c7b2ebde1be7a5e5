package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = time.Hour

// MessageDeduper provides idempotency checks for chat submissions backed by Redis.
// Key format: dedup:chat:<conversation_id>:<client_message_id>
type MessageDeduper struct {
	client *redis.Client
}

// NewMessageDeduper creates a MessageDeduper wrapping the given Redis client.
func NewMessageDeduper(client *redis.Client) *MessageDeduper {
	return &MessageDeduper{client: client}
}

// Claim atomically records the message id and reports whether this call was
// the first to see it. Claims expire after dedupTTL.
func (d *MessageDeduper) Claim(ctx context.Context, conversationID, clientMessageID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(conversationID, clientMessageID), "1", dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

// Release drops a claim. Releasing an unknown id is not an error.
func (d *MessageDeduper) Release(ctx context.Context, conversationID, clientMessageID string) error {
	if err := d.client.Del(ctx, d.key(conversationID, clientMessageID)).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

func (d *MessageDeduper) key(conversationID, clientMessageID string) string {
	return fmt.Sprintf("dedup:chat:%s:%s", conversationID, clientMessageID)
}
