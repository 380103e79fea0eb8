package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatwire/module/user/model"
	"chatwire/tools/errs"
)

const searchLimit = 20

type Store struct {
	coll *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection(model.CollectionName)}
}

// EnsureIndexes creates the unique email index. Call once at startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errs.Wrap(err)
}

// Insert persists a new user, assigning its id.
func (s *Store) Insert(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.ID = primitive.NewObjectID().Hex()
	u.CreatedAt = now
	u.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrValidation.WithDetail("email already exists")
		}
		return errs.WrapStore(err, "insert user")
	}
	return nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.coll.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WithDetail("user")
	}
	if err != nil {
		return nil, errs.WrapStore(err, "find user by email")
	}
	return &u, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WithDetail("user")
	}
	if err != nil {
		return nil, errs.WrapStore(err, "find user by id")
	}
	return &u, nil
}

// FindByIDs resolves a batch of users keyed by id. Missing ids are simply
// absent from the result.
func (s *Store) FindByIDs(ctx context.Context, ids []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errs.WrapStore(err, "find users by ids")
	}
	defer func() { _ = cur.Close(ctx) }()
	for cur.Next(ctx) {
		var u model.User
		if err := cur.Decode(&u); err != nil {
			return nil, errs.WrapStore(err, "decode user")
		}
		out[u.ID] = u
	}
	if err := cur.Err(); err != nil {
		return nil, errs.WrapStore(err, "iterate users")
	}
	return out, nil
}

// SearchByName returns users whose name contains query (case-insensitive),
// excluding the caller.
func (s *Store) SearchByName(ctx context.Context, query, excludeID string) ([]model.User, error) {
	filter := bson.M{
		"name": bson.M{"$regex": primitive.Regex{Pattern: regexEscape(query), Options: "i"}},
		"_id":  bson.M{"$ne": excludeID},
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetLimit(searchLimit))
	if err != nil {
		return nil, errs.WrapStore(err, "search users")
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []model.User
	for cur.Next(ctx) {
		var u model.User
		if err := cur.Decode(&u); err != nil {
			return nil, errs.WrapStore(err, "decode user")
		}
		out = append(out, u)
	}
	if err := cur.Err(); err != nil {
		return nil, errs.WrapStore(err, "iterate users")
	}
	return out, nil
}

// regexEscape neutralizes regex metacharacters in user-supplied queries.
func regexEscape(s string) string {
	const meta = `\.+*?()|[]{}^$`
	out := make([]rune, 0, len(s))
	for _, r := range s {
		for _, m := range meta {
			if r == m {
				out = append(out, '\\')
				break
			}
		}
		out = append(out, r)
	}
	return string(out)
}
