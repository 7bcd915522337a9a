package models

import "time"

// Session is an issued login session. The opaque token presented by clients
// resolves to one of these through the session service.
type Session struct {
	ID        string    `bson:"-" json:"id"`
	UserID    string    `bson:"userId" json:"userId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
}

// Expired reports whether the session is past its expiry time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
