package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Host string
	Env  string

	// MongoDB
	MongoURI     string
	DatabaseName string
	MongoTimeout int

	// JWT
	JWTSecret     string
	JWTExpiration int

	// CORS
	AllowedOrigins string

	// Rate limiting for submission endpoints
	RateLimitRequests int
	RateLimitWindow   int // seconds

	// Rewards service webhook, notified on each survey completion
	RewardsWebhookURL   string
	RewardsWebhookToken string

	// Due-survey sweep interval, minutes. Off by default: closing past-due
	// surveys belongs to the external scheduler via the due/sweep endpoints.
	SweepInterval int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Could not load .env file: %v", err)
	}

	config := &Config{
		Port:                getEnv("PORT", "8080"),
		Host:                getEnv("HOST", "0.0.0.0"),
		Env:                 getEnv("ENV", "development"),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName:        getEnv("DATABASE_NAME", "teampulse"),
		MongoTimeout:        getEnvAsInt("MONGO_TIMEOUT", 10),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:       getEnvAsInt("JWT_EXPIRATION", 24), // hours
		AllowedOrigins:      getEnv("ALLOWED_ORIGINS", "*"),
		RateLimitRequests:   getEnvAsInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:     getEnvAsInt("RATE_LIMIT_WINDOW", 60),
		RewardsWebhookURL:   getEnv("REWARDS_WEBHOOK_URL", ""),
		RewardsWebhookToken: getEnv("REWARDS_WEBHOOK_TOKEN", ""),
		SweepInterval:       getEnvAsInt("SWEEP_INTERVAL", 0),
	}

	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
