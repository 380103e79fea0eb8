package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatwire/module/chat/model"
	"chatwire/tools/errs"
)

type MessageStore struct {
	coll *mongo.Collection
}

func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{coll: db.Collection(model.MessageCollection)}
}

func (s *MessageStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return errs.Wrap(err)
}

// Insert persists a message with a server-assigned id and timestamp.
func (s *MessageStore) Insert(ctx context.Context, m *model.Message) error {
	m.ID = primitive.NewObjectID().Hex()
	m.CreatedAt = time.Now().UTC()
	m.Read = false
	if _, err := s.coll.InsertOne(ctx, m); err != nil {
		return errs.WrapStore(err, "insert message")
	}
	return nil
}

// ListByConversation returns all messages ascending by created_at.
func (s *MessageStore) ListByConversation(ctx context.Context, convID string) ([]model.Message, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"conversation_id": convID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, errs.WrapStore(err, "list messages")
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []model.Message
	for cur.Next(ctx) {
		var m model.Message
		if err := cur.Decode(&m); err != nil {
			return nil, errs.WrapStore(err, "decode message")
		}
		out = append(out, m)
	}
	if err := cur.Err(); err != nil {
		return nil, errs.WrapStore(err, "iterate messages")
	}
	return out, nil
}

// Latest returns the newest message by created_at, or nil when the
// conversation is empty.
func (s *MessageStore) Latest(ctx context.Context, convID string) (*model.Message, error) {
	var m model.Message
	err := s.coll.FindOne(ctx,
		bson.M{"conversation_id": convID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapStore(err, "find latest message")
	}
	return &m, nil
}

// MarkRead flips every unread message not sent by readerID to read and
// reports how many changed. The filter only ever selects read=false rows, so
// the transition is monotonic and repeat calls are no-ops.
func (s *MessageStore) MarkRead(ctx context.Context, convID, readerID string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{
			"conversation_id": convID,
			"sender_id":       bson.M{"$ne": readerID},
			"read":            false,
		},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, errs.WrapStore(err, "mark messages read")
	}
	return res.ModifiedCount, nil
}
