package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"mail-gateway/internal/models"
)

// SessionStore reads and writes login-session documents.
type SessionStore struct {
	coll *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{coll: db.Collection("sessions")}
}

// FindByID fetches a session by hex ObjectID.
func (s *SessionStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", id, err)
	}

	var doc struct {
		ID             primitive.ObjectID `bson:"_id"`
		models.Session `bson:",inline"`
	}
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	session := doc.Session
	session.ID = doc.ID.Hex()
	return &session, nil
}

// Create inserts a session and returns its assigned id.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) (string, error) {
	res, err := s.coll.InsertOne(ctx, bson.M{
		"userId":    session.UserID,
		"createdAt": session.CreatedAt,
		"expiresAt": session.ExpiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	oid := res.InsertedID.(primitive.ObjectID)
	session.ID = oid.Hex()
	return session.ID, nil
}
