/**
 * @description
 * Main entry point for the ticker analysis API.
 * Initializes the Fiber web server, loads configuration, and sets up routes.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - github.com/tickerlab/backend/internal/config: Config loader
 * - github.com/tickerlab/backend/internal/db: Database connections
 *
 * @notes
 * - Connects to the database and Redis on startup.
 * - Sets up basic middleware (CORS, Logger, Recover).
 * - Blocking analyses run inside the request; queued ones go to cmd/worker.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/tickerlab/backend/internal/analyzer"
	"github.com/tickerlab/backend/internal/api"
	"github.com/tickerlab/backend/internal/blob"
	"github.com/tickerlab/backend/internal/config"
	"github.com/tickerlab/backend/internal/db"
	"github.com/tickerlab/backend/internal/jobs"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/services"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	if cfg.Server.Env == "development" {
		logger.SetLevel("debug")
	}

	// 2. Initialize Database Connections
	gormDB, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}

	// Redis (Queue, Events & Cache)
	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Services
	blobStore, err := blob.NewStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	persister := blob.NewImagePersister(blobStore)

	runAnalyzer, err := analyzer.New(cfg.Analyzer)
	if err != nil {
		logger.Fatal("Failed to initialize analyzer: %v", err)
	}

	jobStore := jobs.NewJobStore(gormDB, redisClient)
	runner := jobs.NewRunner(jobStore, runAnalyzer, cfg.Analyzer.SyncTimeout)
	dispatcher := jobs.NewDispatcher(jobStore, redisClient, cfg.Worker.QueueKey)

	events := jobs.NewEventHub(redisClient)
	go events.Run(ctx)

	markets := services.NewMarketService(gormDB, redisClient, persister)

	// 4. Initialize Fiber App
	app := fiber.New(fiber.Config{
		AppName:       "Ticker Analysis Backend",
		StrictRouting: true,
		CaseSensitive: true,
		// Sync analyses hold the request for up to the analyzer bound
		WriteTimeout: cfg.Analyzer.SyncTimeout + 30*time.Second,
		BodyLimit:    32 * 1024 * 1024, // base64 chart images
	})

	// 5. Global Middleware
	app.Use(recover.New())     // Panic recovery
	app.Use(fiberlogger.New()) // Request logging
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	// Local chart images; GCS serves its own URLs
	if local, ok := blobStore.(*blob.LocalStore); ok {
		app.Static(cfg.Storage.PublicURL, local.Root())
	}

	// 6. Routes
	api.SetupRoutes(app, api.Services{
		Analysis: services.NewAnalysisService(gormDB, runner, dispatcher),
		Ingest:   services.NewIngestService(gormDB, persister, markets),
		Markets:  markets,
		Events:   events,
	})

	// 7. Start Server
	go func() {
		logger.Info("🚀 Starting Ticker Analysis Backend on port %s", cfg.Server.Port)
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// 8. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API...")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Error shutting down server: %v", err)
	}
	logger.Info("API exited.")
}
