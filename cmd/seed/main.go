package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mail-gateway/internal/auth"
	"mail-gateway/internal/config"
	"mail-gateway/internal/database"
	"mail-gateway/internal/models"
	"mail-gateway/internal/store"
)

// Seeds a demo user with two mailboxes plus a login session, and prints a
// signed token ready to paste into an auth frame.
func main() {
	cfg := config.Load()

	mongoDB, err := database.NewMongoConnection(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := store.NewUserStore(mongoDB.DB)
	sessions := store.NewSessionStore(mongoDB.DB)

	user := &models.User{
		Username:  "demo",
		FirstName: "Demo",
		LastName:  "User",
		Mailboxes: []string{
			primitive.NewObjectID().Hex(),
			primitive.NewObjectID().Hex(),
		},
	}
	if err := user.SetPassword("demo1234"); err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	userID, err := users.Create(ctx, user)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	session := &models.Session{
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if _, err := sessions.Create(ctx, session); err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	svc := auth.NewService(cfg.JWTSecret, sessions, users)
	token, err := svc.IssueToken(session)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Printf("user:    %s\n", userID)
	fmt.Printf("session: %s\n", session.ID)
	fmt.Printf("token:   %s\n", token)
}
