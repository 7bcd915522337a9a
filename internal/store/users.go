package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"mail-gateway/internal/models"
)

// UserStore reads and writes user documents.
type UserStore struct {
	coll *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection("users")}
}

// FindByID fetches a user by hex ObjectID.
func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}

	var doc struct {
		ID          primitive.ObjectID `bson:"_id"`
		models.User `bson:",inline"`
	}
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	user := doc.User
	user.ID = doc.ID.Hex()
	return &user, nil
}

// Create inserts a user and returns its assigned id.
func (s *UserStore) Create(ctx context.Context, user *models.User) (string, error) {
	res, err := s.coll.InsertOne(ctx, bson.M{
		"username":  user.Username,
		"password":  user.Password,
		"firstName": user.FirstName,
		"lastName":  user.LastName,
		"mailboxes": user.Mailboxes,
		"tfa":       user.TFA,
		"isAdmin":   user.IsAdmin,
	})
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	oid := res.InsertedID.(primitive.ObjectID)
	user.ID = oid.Hex()
	return user.ID, nil
}
