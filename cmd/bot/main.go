package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"shutdown-tracker/internal/bot"
	"shutdown-tracker/internal/cache"
	"shutdown-tracker/internal/config"
	"shutdown-tracker/internal/database"
	"shutdown-tracker/internal/mq"
	"shutdown-tracker/internal/registry"
	"shutdown-tracker/internal/source"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN is required. Get one from @BotFather on Telegram.")
	}

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

	// --- Redis (shared address-lookup cache) ---
	redisCache, err := cache.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisCache.Close()
	log.Println("redis connected")

	// --- RabbitMQ ---
	mqConsumer, err := mq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("rabbitmq consumer: %v", err)
	}
	defer mqConsumer.Close()
	log.Println("rabbitmq connected")

	// --- Locations ---
	reg, err := loadRegistry(cfg)
	if err != nil {
		log.Fatalf("locations: %v", err)
	}

	// --- Telegram Bot ---
	lookup := source.NewAddressLookupAdapter(source.DefaultClient(), source.WithLookupCache(redisCache))
	tgBot, err := bot.New(cfg.BotToken, db, reg, lookup)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	go tgBot.Start()
	defer tgBot.Stop()
	log.Println("telegram bot started")

	// --- Start RabbitMQ listener ---
	listener := newListener(tgBot.TeleBot(), db, mqConsumer)
	go listener.start(ctx)
	log.Println("rabbitmq listener started")

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down bot service...")
	cancel()
}

func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.LocationsFile != "" {
		return registry.Load(cfg.LocationsFile)
	}
	return registry.New(registry.Defaults())
}
