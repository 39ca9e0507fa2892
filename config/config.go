package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration
type Config struct {
	Symbol         string  `env:"SYMBOL" envDefault:"BTC/USD"`
	Interval       string  `env:"INTERVAL" envDefault:"5min"`
	CandleCount    int     `env:"CANDLE_COUNT" envDefault:"100"`
	LogLevel       string  `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout int     `env:"REQUEST_TIMEOUT" envDefault:"30"` // seconds
	ExchangeAPIKey string  `env:"EXCHANGE_API_KEY" envDefault:"-"`
	DatabaseURL    string  `env:"DATABASE_URL" envDefault:""`
	HiddenNodes    int     `env:"HIDDEN_NODES" envDefault:"12"`
	LearningRate   float64 `env:"LEARNING_RATE" envDefault:"0.05"`
	Epsilon        float64 `env:"EPSILON" envDefault:"0.1"`
	BatchSize      int     `env:"TRAIN_BATCH_SIZE" envDefault:"5"`
	TargetConf     float64 `env:"TARGET_CONFIDENCE" envDefault:"70"`
	MaxIterations  int     `env:"MAX_ITERATIONS" envDefault:"10"`
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config

	cfg.Symbol = getEnvWithDefault("SYMBOL", "BTC/USD")
	cfg.Interval = getEnvWithDefault("INTERVAL", "5min")
	cfg.CandleCount = getEnvIntWithDefault("CANDLE_COUNT", 100)
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", 30)
	cfg.ExchangeAPIKey = os.Getenv("EXCHANGE_API_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.HiddenNodes = getEnvIntWithDefault("HIDDEN_NODES", 12)
	cfg.LearningRate = getEnvFloatWithDefault("LEARNING_RATE", 0.05)
	cfg.Epsilon = getEnvFloatWithDefault("EPSILON", 0.1)
	cfg.BatchSize = getEnvIntWithDefault("TRAIN_BATCH_SIZE", 5)
	cfg.TargetConf = getEnvFloatWithDefault("TARGET_CONFIDENCE", 70)
	cfg.MaxIterations = getEnvIntWithDefault("MAX_ITERATIONS", 10)

	return &cfg, nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
