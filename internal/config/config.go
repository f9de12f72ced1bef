package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"import-service/internal/models"
	"import-service/internal/schema"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisURL string

	// Server
	Port        string
	Environment string

	// Downstream services
	EntityAPIURL   string
	RegistryAPIURL string

	// Locale: comma as decimal separator for pasted numbers
	DecimalComma bool

	// Import pacing defaults (request-level overrides allowed)
	ImportBatchSize     int
	ImportItemDelay     time.Duration
	ImportBatchDelay    time.Duration
	RateLimitDelay      time.Duration
	MaxRateLimitRetries int
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	batchSize, _ := strconv.Atoi(getEnv("IMPORT_BATCH_SIZE", "10"))
	itemDelayMs, _ := strconv.Atoi(getEnv("IMPORT_ITEM_DELAY_MS", "200"))
	batchDelayMs, _ := strconv.Atoi(getEnv("IMPORT_BATCH_DELAY_MS", "1000"))
	rateLimitDelayMs, _ := strconv.Atoi(getEnv("IMPORT_RATE_LIMIT_DELAY_MS", "3000"))
	maxRetries, _ := strconv.Atoi(getEnv("IMPORT_MAX_RATE_LIMIT_RETRIES", "5"))
	decimalComma, _ := strconv.ParseBool(getEnv("IMPORT_DECIMAL_COMMA", "true"))

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "import_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		Port:        getEnv("PORT", "8094"),
		Environment: getEnv("ENVIRONMENT", "development"),

		EntityAPIURL:   getEnv("ENTITY_API_URL", "http://api-gateway:8080/api/v1"),
		RegistryAPIURL: getEnv("REGISTRY_API_URL", "https://brasilapi.com.br/api/cnpj/v1"),

		DecimalComma: decimalComma,

		ImportBatchSize:     batchSize,
		ImportItemDelay:     time.Duration(itemDelayMs) * time.Millisecond,
		ImportBatchDelay:    time.Duration(batchDelayMs) * time.Millisecond,
		RateLimitDelay:      time.Duration(rateLimitDelayMs) * time.Millisecond,
		MaxRateLimitRetries: maxRetries,
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Running auto-migrations...")
	if err := db.AutoMigrate(
		&models.ImportRun{},
		&schema.FieldTemplate{},
	); err != nil {
		return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
