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

	"github.com/redis/go-redis/v9"

	"github.com/ignite/pixel-relay/internal/api"
	"github.com/ignite/pixel-relay/internal/config"
	"github.com/ignite/pixel-relay/internal/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Developer.Diagnostics {
		logger.SetLevel(logger.DEBUG)
		log.Println("Diagnostics enabled: debug logging on")
	}

	if cfg.Container.ID == "" {
		log.Fatal("container.id is required (or set PIXEL_CONTAINER_ID)")
	}

	// Connect the downstream queue when the redis backend is selected.
	var redisClient *redis.Client
	if cfg.Sink.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Sink.RedisAddr,
			Password: cfg.Sink.RedisPassword,
			DB:       cfg.Sink.RedisDB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			pingCancel()
			log.Fatalf("Redis connection failed (%s): %v", cfg.Sink.RedisAddr, err)
		}
		pingCancel()
		log.Printf("Redis connected: %s (data-layer queue enabled)", cfg.Sink.RedisAddr)
	} else {
		log.Println("Memory sink backend active — data-layer inspection endpoint enabled")
	}

	server, err := api.NewServer(cfg, redisClient)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	// Evict idle sessions in the background.
	pruneCtx, pruneCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				server.Sessions().Prune()
			}
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting pixel relay on %s (container %s)", addr, cfg.Container.ID)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	pruneCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Println("Server stopped")
}
