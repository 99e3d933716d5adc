package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL   string
	Port          string
	GoEnv         string
	Auth0Domain   string
	Auth0Audience string
	LogLevel      string

	// Blob storage for attachments and evidence images
	StorageProvider    string
	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	GCSBucket          string
	GCSCredentialsJSON string

	// Optional collaborators. Empty values disable the feature.
	RedisAddress    string
	MongoURI        string
	MongoDatabase   string
	PubSubProjectID string
	PubSubTopic     string

	// Scheduling and notification behavior
	CountryCode      string
	DeepLinkBaseURL  string
	ChatLinkBaseURL  string
	StoreTimeout     time.Duration
	MaxProbeDays     int
	BatchConcurrency int
}

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	config := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Port:               getEnv("PORT", "8080"),
		GoEnv:              getEnv("GO_ENV", "development"),
		Auth0Domain:        getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:      getEnv("AUTH0_AUDIENCE", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StorageProvider:    getEnv("STORAGE_PROVIDER", "s3"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		GCSBucket:          getEnv("GCS_BUCKET", ""),
		GCSCredentialsJSON: getEnv("GCS_CREDENTIALS_JSON", ""),
		RedisAddress:       getEnv("REDIS_ADDRESS", ""),
		MongoURI:           getEnv("MONGODB_URI", ""),
		MongoDatabase:      getEnv("MONGODB_DATABASE", "installations"),
		PubSubProjectID:    getEnv("PUBSUB_PROJECT_ID", ""),
		PubSubTopic:        getEnv("PUBSUB_TOPIC", ""),
		CountryCode:        getEnv("COUNTRY_CODE", "20"),
		DeepLinkBaseURL:    getEnv("DEEP_LINK_BASE_URL", "http://localhost:3000"),
		ChatLinkBaseURL:    getEnv("CHAT_LINK_BASE_URL", "https://wa.me"),
		StoreTimeout:       time.Duration(getEnvInt("STORE_TIMEOUT_SECONDS", 10)) * time.Second,
		MaxProbeDays:       getEnvInt("MAX_PROBE_DAYS", 365),
		BatchConcurrency:   getEnvInt("BATCH_CONCURRENCY", 8),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.StorageProvider {
	case "s3", "gcs", "memory":
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be one of s3, gcs, memory (got %q)", c.StorageProvider)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT_SECONDS must be positive")
	}
	if c.MaxProbeDays <= 0 {
		return fmt.Errorf("MAX_PROBE_DAYS must be positive")
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// AuthEnabled reports whether JWT validation should guard the API
func (c *Config) AuthEnabled() bool {
	return c.Auth0Domain != "" && c.Auth0Audience != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}
