package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"mail-gateway/internal/audit"
	"mail-gateway/internal/auth"
	"mail-gateway/internal/broker"
	"mail-gateway/internal/config"
	"mail-gateway/internal/database"
	"mail-gateway/internal/gateway"
	"mail-gateway/internal/server"
	"mail-gateway/internal/store"
)

func main() {
	cfg := config.Load()

	slog.Info("Starting mail gateway")

	// Redis backs the cross-process event bus.
	redisClient, err := database.NewRedisConnection(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// MongoDB holds the session and user documents the handshake reads.
	mongoDB, err := database.NewMongoConnection(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer mongoDB.Close(context.Background())

	authService := auth.NewService(
		cfg.JWTSecret,
		store.NewSessionStore(mongoDB.DB),
		store.NewUserStore(mongoDB.DB),
	)

	var auditSink gateway.AuditSink
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			slog.Error("Failed to connect Kafka audit sink", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		auditSink = sink
	}

	bus := broker.NewRedisBroker(redisClient)
	defer bus.Close()

	hub := gateway.NewHub(bus, authService, auditSink)
	hubDone := make(chan error, 1)
	go func() {
		hubDone <- hub.Run()
	}()

	router := gin.Default()
	server.SetupRoutes(router, hub)

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an interrupt, or for the hub to lose the broker. Losing the
	// bus is fatal: there is no local-only delivery mode.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("Server shutting down...")
	case err := <-hubDone:
		if err != nil {
			slog.Error("Gateway hub failed", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}
