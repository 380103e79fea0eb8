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

type ConversationStore struct {
	coll *mongo.Collection
}

func NewConversationStore(db *mongo.Database) *ConversationStore {
	return &ConversationStore{coll: db.Collection(model.ConversationCollection)}
}

func (s *ConversationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	})
	return errs.Wrap(err)
}

func (s *ConversationStore) Insert(ctx context.Context, c *model.Conversation) error {
	now := time.Now().UTC()
	c.ID = primitive.NewObjectID().Hex()
	c.CreatedAt = now
	c.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, c); err != nil {
		return errs.WrapStore(err, "insert conversation")
	}
	return nil
}

func (s *ConversationStore) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WithDetail("conversation")
	}
	if err != nil {
		return nil, errs.WrapStore(err, "find conversation")
	}
	return &c, nil
}

// FindDirect looks up the non-group conversation whose participant set is
// exactly {a, b}. $all with $size keeps group threads and supersets out; a
// containment-only filter would match those too.
func (s *ConversationStore) FindDirect(ctx context.Context, a, b string) (*model.Conversation, error) {
	filter := bson.M{
		"is_group":     false,
		"participants": bson.M{"$all": []string{a, b}, "$size": 2},
	}
	var c model.Conversation
	err := s.coll.FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WithDetail("conversation")
	}
	if err != nil {
		return nil, errs.WrapStore(err, "find direct conversation")
	}
	return &c, nil
}

// ListByParticipant returns every conversation containing userID, newest
// activity first.
func (s *ConversationStore) ListByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}),
	)
	if err != nil {
		return nil, errs.WrapStore(err, "list conversations")
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []model.Conversation
	for cur.Next(ctx) {
		var c model.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, errs.WrapStore(err, "decode conversation")
		}
		out = append(out, c)
	}
	if err := cur.Err(); err != nil {
		return nil, errs.WrapStore(err, "iterate conversations")
	}
	return out, nil
}

// UpdateSummary refreshes the cached last message. The updated_at filter
// makes the write a no-op when a newer message already refreshed the
// summary, so reordered persistence events can never move it backwards.
func (s *ConversationStore) UpdateSummary(ctx context.Context, id, lastMessage string, at time.Time) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "updated_at": bson.M{"$lte": at}},
		bson.M{"$set": bson.M{"last_message": lastMessage, "updated_at": at}},
	)
	if err != nil {
		return errs.WrapStore(err, "update conversation summary")
	}
	return nil
}
