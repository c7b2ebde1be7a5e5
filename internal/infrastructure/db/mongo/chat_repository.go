package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/ports"
)

const (
	chatCollection = "chat_messages"
	watchBuffer    = 16
)

// ChatRepository implements ports.ChatRepository on the conversation log
// written by the clinic API.
type ChatRepository struct {
	coll *mongo.Collection
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(db *mongo.Database) ports.ChatRepository {
	return &ChatRepository{coll: db.Collection(chatCollection)}
}

type chatDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ConversationID string             `bson:"conversation_id"`
	SenderID       int64              `bson:"sender_id"`
	SenderRole     string             `bson:"sender_role"`
	Text           string             `bson:"text"`
	Timestamp      time.Time          `bson:"timestamp"`
}

func (d chatDoc) toDomain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:             d.ID.Hex(),
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		SenderRole:     domain.Role(d.SenderRole),
		Text:           d.Text,
		Timestamp:      d.Timestamp.UTC(),
	}
}

// EnsureIndexes creates the (conversation_id, timestamp) index used by List.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(chatCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create chat index: %w", err)
	}
	return nil
}

// List returns the latest limit messages of a conversation, oldest first.
func (r *ChatRepository) List(ctx context.Context, conversationID string, limit int64) ([]domain.ChatMessage, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find chat messages: %w", err)
	}
	defer cur.Close(ctx)

	var docs []chatDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode chat messages: %w", err)
	}

	msgs := make([]domain.ChatMessage, len(docs))
	for i, d := range docs {
		msgs[len(docs)-1-i] = d.toDomain()
	}
	return msgs, nil
}

// Watch opens a change stream on inserts into the conversation. The channel
// is closed when ctx is cancelled or the stream fails.
func (r *ChatRepository) Watch(ctx context.Context, conversationID string) (<-chan domain.ChatMessage, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: "insert"},
			{Key: "fullDocument.conversation_id", Value: conversationID},
		}}},
	}

	stream, err := r.coll.Watch(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("watch chat messages: %w", err)
	}

	out := make(chan domain.ChatMessage, watchBuffer)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var event struct {
				FullDocument chatDoc `bson:"fullDocument"`
			}
			if err := stream.Decode(&event); err != nil {
				continue
			}
			select {
			case out <- event.FullDocument.toDomain():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
