// Package auth implements the session-resolution collaborator the gateway
// authenticates against. Tokens are HMAC-signed JWTs carrying the session
// document id; the session and user records live in the document store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mail-gateway/internal/models"
)

var (
	ErrInvalidToken   = errors.New("invalid session token")
	ErrSessionExpired = errors.New("session expired")
)

type sessionFinder interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Service resolves tokens to sessions and sessions to users. It satisfies
// the gateway's Authenticator interface.
type Service struct {
	secret   []byte
	sessions sessionFinder
	users    userFinder
}

func NewService(secret string, sessions sessionFinder, users userFinder) *Service {
	return &Service{
		secret:   []byte(secret),
		sessions: sessions,
		users:    users,
	}
}

// ResolveSession verifies the token signature, loads the referenced session
// and rejects expired ones.
func (s *Service) ResolveSession(ctx context.Context, token string) (*models.Session, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sessionID, ok := claims["sid"].(string)
	if !ok || sessionID == "" {
		return nil, ErrInvalidToken
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// ResolveUser loads the user a session points at.
func (s *Service) ResolveUser(ctx context.Context, userID string) (*models.User, error) {
	return s.users.FindByID(ctx, userID)
}

// IssueToken signs a token for an existing session. Used by the login
// collaborator and the seed tool.
func (s *Service) IssueToken(session *models.Session) (string, error) {
	claims := jwt.MapClaims{"sid": session.ID}
	if !session.ExpiresAt.IsZero() {
		claims["exp"] = session.ExpiresAt.Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
