// pkg/config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	// Database connections. Snowflake is optional: it is only needed when
	// importing straight from a warehouse export table.
	Postgres  *PostgresConfig
	Snowflake *SnowflakeConfig

	// Import settings
	ChunkSize     int
	BulkIgnoreCap int
	ImportTimeout time.Duration // 0 disables the batch deadline

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from the environment, reading a .env file
// first when one is present
func LoadConfig() (*Config, error) {
	// Missing .env is fine; the environment may be set directly
	_ = godotenv.Load()

	cfg := &Config{
		ChunkSize:     getEnvAsInt("IMPORT_CHUNK_SIZE", 500),
		BulkIgnoreCap: getEnvAsInt("IMPORT_BULK_IGNORE_CAP", 100),
		ImportTimeout: time.Duration(getEnvAsInt("IMPORT_TIMEOUT_SECONDS", 0)) * time.Second,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
	}

	pgConfig, err := LoadPostgresConfig()
	if err != nil {
		return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
	}
	cfg.Postgres = pgConfig

	if os.Getenv("SNOWFLAKE_ACCOUNT") != "" {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, errors.New("failed to load Snowflake configuration: " + err.Error())
		}
		cfg.Snowflake = snowConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Postgres == nil {
		return errors.New("postgreSQL configuration is required")
	}

	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	if c.BulkIgnoreCap <= 0 {
		return errors.New("bulk ignore cap must be positive")
	}

	if c.ImportTimeout < 0 {
		return errors.New("import timeout cannot be negative")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
