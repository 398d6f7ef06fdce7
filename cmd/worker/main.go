package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shutdown-tracker/internal/cache"
	"shutdown-tracker/internal/config"
	"shutdown-tracker/internal/database"
	"shutdown-tracker/internal/mq"
	"shutdown-tracker/internal/notify"
	"shutdown-tracker/internal/probe"
	"shutdown-tracker/internal/refresh"
	"shutdown-tracker/internal/registry"
	"shutdown-tracker/internal/source"
)

func main() {
	// Load .env if present.
	_ = godotenv.Load()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Database ---
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database connected and migrated")

	// --- Redis ---
	redisCache, err := cache.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisCache.Close()
	log.Println("redis connected")

	// --- RabbitMQ ---
	publisher, err := mq.NewPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("rabbitmq publisher: %v", err)
	}
	defer publisher.Close()
	log.Println("rabbitmq connected")

	// --- Locations ---
	reg, err := loadRegistry(cfg)
	if err != nil {
		log.Fatalf("locations: %v", err)
	}
	log.Printf("tracking %d locations", len(reg.All()))

	// --- Refresher ---
	refresher, err := refresh.New(
		reg, db, redisCache, publisher,
		source.DefaultClient(),
		time.Duration(cfg.FetchTimeout)*time.Second,
		source.WithLookupCache(redisCache),
		source.WithSubscriberKeys(db.DistinctSubscriberKeys),
	)
	if err != nil {
		log.Fatalf("refresher: %v", err)
	}
	refresher.SetProbe(probe.Host)

	// First cycle runs synchronously so a fresh deploy has schedules
	// before the notifier ever sweeps.
	refresher.RunAll(ctx)
	go refresher.Start(ctx, time.Duration(cfg.RefreshInterval)*time.Second)
	log.Println("refresher started")

	// --- Notification evaluator ---
	evaluator, err := notify.New(
		reg, db, publisher,
		time.Duration(cfg.LeadWindowMin)*time.Minute,
		time.Duration(cfg.LeadToleranceMin)*time.Minute,
	)
	if err != nil {
		log.Fatalf("evaluator: %v", err)
	}
	go evaluator.Start(ctx, time.Duration(cfg.NotifyInterval)*time.Second)
	log.Println("notification evaluator started")

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down worker...")
	cancel()
}

func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.LocationsFile != "" {
		return registry.Load(cfg.LocationsFile)
	}
	return registry.New(registry.Defaults())
}
