package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string
	MongoDBURL  string
	MongoDBName string

	// MongoDB pool tuning
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// JWT
	JWTSecret string

	// OAuth - Google Calendar
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleCalendarID   string

	// Sync engine
	TokenRefreshMargin time.Duration
	SyncLockTTL        time.Duration
	ForceResyncWeeks   int

	// Cache
	ScheduleCacheTTL time.Duration

	// IDs
	SnowflakeNodeID int64

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "timetable"),

		// MongoDB pool tuning
		MongoMaxPoolSize: uint64(getEnvInt("MONGO_MAX_POOL_SIZE", 50)),
		MongoMinPoolSize: uint64(getEnvInt("MONGO_MIN_POOL_SIZE", 5)),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		GoogleCalendarID:   getEnv("GOOGLE_CALENDAR_ID", "primary"),

		// Sync engine
		TokenRefreshMargin: time.Duration(getEnvInt("TOKEN_REFRESH_MARGIN_SEC", 60)) * time.Second,
		SyncLockTTL:        time.Duration(getEnvInt("SYNC_LOCK_TTL_SEC", 120)) * time.Second,
		ForceResyncWeeks:   getEnvInt("FORCE_RESYNC_WEEKS", 16),

		// Cache
		ScheduleCacheTTL: time.Duration(getEnvInt("SCHEDULE_CACHE_TTL_MIN", 5)) * time.Minute,

		// IDs
		SnowflakeNodeID: int64(getEnvInt("SNOWFLAKE_NODE_ID", 1)),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
