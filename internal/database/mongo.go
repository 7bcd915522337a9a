package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB bundles the client with the application database handle.
type MongoDB struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// NewMongoConnection opens and verifies a MongoDB connection.
func NewMongoConnection(uri, dbName string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	slog.Info("MongoDB connection established", "database", dbName)
	return &MongoDB{
		Client: client,
		DB:     client.Database(dbName),
	}, nil
}

// Close disconnects the underlying client.
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
