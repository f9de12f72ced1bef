package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"import-service/internal/config"
	"import-service/internal/events"
	"import-service/internal/grid"
	"import-service/internal/handlers"
	"import-service/internal/middleware"
	"import-service/internal/repository"
	"import-service/internal/schema"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	handlers.SetDB(db)

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis client
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (continuing without Redis)", err)
		redisOpts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	redisClient := redis.NewClient(redisOpts)

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (progress mirroring will be disabled)", err)
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	// Initialize repository and schema provider
	runRepo := repository.NewImportRunRepository(db, redisClient)
	provider := schema.NewTemplateProvider(db)

	// Initialize event publisher for the audit trail only if NATS_URL is set
	var eventsPublisher *events.Publisher
	if os.Getenv("NATS_URL") != "" {
		eventsPublisher, err = events.NewPublisher(logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize events publisher: %v (continuing without event publishing)", err)
		} else {
			log.Println("✓ Events publisher initialized (NATS connected)")
		}
	} else {
		log.Println("NATS_URL not set, skipping event publishing initialization")
	}
	defer func() {
		if eventsPublisher != nil {
			eventsPublisher.Close()
		}
	}()

	// Initialize handlers
	sessions := handlers.NewSessionManager()
	coerceOpts := grid.CoerceOptions{DecimalComma: cfg.DecimalComma}
	gridHandler := handlers.NewGridHandler(sessions, provider, coerceOpts, logger)
	importHandler := handlers.NewImportHandler(sessions, runRepo, eventsPublisher, provider, redisClient, cfg, logger)
	templateHandler := handlers.NewTemplateHandler(sessions, provider, logger)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck)

	// Protected API routes
	api := router.Group("/api/v1")
	api.Use(middleware.DevelopmentAuthMiddleware())
	api.Use(middleware.TenantMiddleware())

	{
		gridSessions := api.Group("/grid/sessions")
		{
			gridSessions.POST("", gridHandler.CreateSession)
			gridSessions.GET("/:id", gridHandler.GetSession)
			gridSessions.DELETE("/:id", gridHandler.DeleteSession)
			gridSessions.POST("/:id/paste", gridHandler.Paste)
			gridSessions.POST("/:id/upload", templateHandler.Upload)
			gridSessions.PUT("/:id/cells", gridHandler.SetCell)
			gridSessions.POST("/:id/rows", gridHandler.AddRow)
			gridSessions.GET("/:id/rows", gridHandler.RowData)
			gridSessions.POST("/:id/clear", gridHandler.Clear)
			gridSessions.PUT("/:id/headers", gridHandler.UpdateHeaders)
			gridSessions.POST("/:id/validate", gridHandler.Validate)
			gridSessions.GET("/:id/export", gridHandler.Export)

			gridSessions.POST("/:id/import", importHandler.StartImport)
			gridSessions.POST("/:id/import/pause", importHandler.PauseImport)
			gridSessions.POST("/:id/import/resume", importHandler.ResumeImport)
			gridSessions.POST("/:id/import/cancel", importHandler.CancelImport)
			gridSessions.POST("/:id/import/reset", importHandler.ResetImport)
			gridSessions.GET("/:id/import/progress", importHandler.ImportProgress)
			gridSessions.GET("/:id/import/result", importHandler.ImportResult)
		}

		imports := api.Group("/imports")
		{
			imports.GET("", importHandler.ListRuns)
			imports.GET("/template", templateHandler.GetTemplate)
			imports.GET("/:runId/progress", importHandler.GetRunProgress)
		}
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Import service starting on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-quit
	log.Println("Shutting down import-service...")
	log.Println("Import service stopped")
}
