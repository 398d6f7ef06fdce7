package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"shutdown-tracker/internal/cache"
	"shutdown-tracker/internal/config"
	"shutdown-tracker/internal/database"
	"shutdown-tracker/internal/handlers"
	"shutdown-tracker/internal/registry"
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

	// --- Locations ---
	reg, err := loadRegistry(cfg)
	if err != nil {
		log.Fatalf("locations: %v", err)
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New())

	h := &handlers.Handlers{DB: db, Cache: redisCache, Reg: reg}
	api := app.Group("/api")
	api.Get("/locations", h.GetLocations)
	api.Get("/locations/:location/schedule", h.GetSchedule)
	api.Get("/locations/:location/image", h.GetImage)
	api.Get("/locations/:location/last-update", h.GetLastUpdate)
	api.Get("/locations/:location/subscribers", h.GetSubscribers)
	api.Get("/status", h.GetStatus)

	// --- Graceful shutdown ---
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	log.Printf("server starting on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.LocationsFile != "" {
		return registry.Load(cfg.LocationsFile)
	}
	return registry.New(registry.Defaults())
}
