// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// PublicBaseURL is the externally reachable base URL of this service.
	// Used to build the on-ramp callback URL handed to the fiat gateway.
	PublicBaseURL string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Ledger settings
	LedgerAPIURL string // Transaction-build/broadcast service base URL
	ChainID      int64
	SigningKey   string // Hex-encoded private key for the local signer (optional)

	// Fiat on-ramp settings
	OnrampAPIKey   string
	OnrampBaseURL  string
	OnrampCurrency string
	OnrampSecret   string // HMAC secret for verifying gateway callbacks

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
}

// Defaults for the testnet deployment.
const (
	DefaultLedgerAPIURL   = "https://dev.api.trustlesswork.com"
	DefaultChainID        = 84532 // Base Sepolia
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultOnrampBaseURL  = "https://buy-sandbox.moonpay.com"
	DefaultOnrampCurrency = "eth"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		LedgerAPIURL:   getEnv("LEDGER_API_URL", DefaultLedgerAPIURL),
		ChainID:        getEnvInt64("CHAIN_ID", DefaultChainID),
		SigningKey:     os.Getenv("SIGNING_KEY"),
		OnrampAPIKey:   os.Getenv("ONRAMP_API_KEY"),
		OnrampBaseURL:  getEnv("ONRAMP_BASE_URL", DefaultOnrampBaseURL),
		OnrampCurrency: getEnv("ONRAMP_CURRENCY", DefaultOnrampCurrency),
		OnrampSecret:   os.Getenv("ONRAMP_SECRET"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.LedgerAPIURL == "" {
		return fmt.Errorf("LEDGER_API_URL is required")
	}

	if c.ChainID == 0 {
		return fmt.Errorf("CHAIN_ID is required")
	}

	// SigningKey is optional (signing may be delegated to an external
	// wallet provider), but when set it must be a usable key.
	if c.SigningKey != "" {
		key := c.SigningKey
		if len(key) == 66 && key[:2] == "0x" {
			key = key[2:]
		}
		if len(key) != 64 {
			return fmt.Errorf("SIGNING_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
