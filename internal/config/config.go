package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// TTL holds the expiry tiers for chat records. Creating a chat is the
// strongest signal of continued relevance, a mere read the weakest, so by
// convention Created >= Modified >= Touched.
type TTL struct {
	Created  time.Duration
	Modified time.Duration
	Touched  time.Duration
}

// Signature configures the server-side one-way transform applied to
// client-supplied pseudonym signatures.
type Signature struct {
	Algorithm string // sha256, sha384, or sha512
	Key       string
}

// Config holds all configuration for the application.
type Config struct {
	Port     string
	Env      string
	RedisURL string

	TTL TTL

	// Chat record limits.
	MessageCount  int // max messages retained per chat
	MessageLength int // max envelope length in bytes
	SecretLength  int // random bytes in the admin secret; a multiple of 3 keeps base64 unpadded
	MinKeyLength  int
	MaxKeyLength  int

	Signature Signature

	RateLimitEnabled bool
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		TTL: TTL{
			Created:  getSeconds("CHAT_TTL_CREATED", 7*24*3600),
			Modified: getSeconds("CHAT_TTL_MODIFIED", 24*3600),
			Touched:  getSeconds("CHAT_TTL_TOUCHED", 3600),
		},
		MessageCount:  getInt("CHAT_MESSAGE_COUNT", 100),
		MessageLength: getInt("CHAT_MESSAGE_LENGTH", 4096),
		SecretLength:  getInt("CHAT_SECRET_LENGTH", 24),
		MinKeyLength:  getInt("CHAT_MIN_KEY_LENGTH", 20),
		MaxKeyLength:  getInt("CHAT_MAX_KEY_LENGTH", 64),
		Signature: Signature{
			Algorithm: getEnv("SIGNATURE_ALGORITHM", "sha256"),
			Key:       os.Getenv("SIGNATURE_KEY"),
		},
		RateLimitEnabled: getEnv("RATE_LIMIT_ENABLED", "true") == "true",
	}

	// A per-process random transform key would break pseudonym stability
	// across restarts, so production must supply one.
	if cfg.Env == "production" && cfg.Signature.Key == "" {
		panic("SIGNATURE_KEY is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getInt(key, defaultValue)) * time.Second
}
