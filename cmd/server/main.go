package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"geofeed/internal/adapters/kafka"
	"geofeed/internal/api/routes"
	"geofeed/internal/config"
	"geofeed/internal/database"
	"geofeed/internal/realtime"
	"geofeed/internal/repository"
	"geofeed/internal/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting geofeed server")

	db, err := database.NewPostgresConnection(cfg.Database.URI())
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	messageRepo := repository.NewMessageRepository(db)
	followRepo := repository.NewFollowRepository(db)
	userRepo := repository.NewUserRepository(db)

	authService := services.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.ExpirationTime)

	// Redis is optional: without it the server runs single-process with no
	// shared presence cache and no horizontal fan-out.
	var bridge realtime.Bridge
	var statusStore realtime.PresenceStatusStore
	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		slog.Warn("Redis unavailable, running single-process", "error", err)
	} else {
		defer redisClient.Close()
		redisService := services.NewRedisService(redisClient)
		bridge = realtime.NewRedisBridge(redisService)
		statusStore = redisService
	}

	var exporter realtime.EventExporter
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		exporter = producer
	}

	presence := realtime.NewPresenceTracker(statusStore, userRepo)
	notifier := realtime.NewFanoutNotifier(followRepo, cfg.Realtime.FanoutBatchSize, cfg.Realtime.FanoutBatchPause)

	hub := realtime.NewHub(realtime.HubOptions{
		Store:          messageRepo,
		Auth:           authService,
		Presence:       presence,
		Notifier:       notifier,
		Exporter:       exporter,
		Bridge:         bridge,
		SendBufferSize: cfg.Realtime.SendBufferSize,
	})
	go hub.Run()

	router := routes.NewRouter(hub, authService, messageRepo, followRepo)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Stop()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}
