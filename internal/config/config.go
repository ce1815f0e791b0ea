package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends accepted by STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	Port     int
	Env      string
	Location *time.Location

	StoreBackend string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	MongoURI string
	MongoDB  string

	RedisAddr string
	LockTTL   time.Duration

	JWTSecret    []byte
	XPMaxRetries int
	CORSOrigins  []string
}

// Load reads configuration from the environment, after loading a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:          getEnv("APP_ENV", "development"),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "studyforge"),
		DBPassword:   getEnv("DB_PASSWORD", "studyforge"),
		DBName:       getEnv("DB_NAME", "studyforge"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("MONGO_DB", "studyforge"),
		RedisAddr:    strings.TrimSpace(getEnv("REDIS_ADDR", "")),
		JWTSecret:    []byte(getEnv("JWT_SECRET", "")),
	}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT value: %w", err)
	}
	cfg.Port = port

	retries, err := strconv.Atoi(getEnv("XP_MAX_RETRIES", "5"))
	if err != nil || retries < 1 {
		return nil, fmt.Errorf("invalid XP_MAX_RETRIES value %q", getEnv("XP_MAX_RETRIES", ""))
	}
	cfg.XPMaxRetries = retries

	ttl, err := time.ParseDuration(getEnv("LOCK_TTL", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCK_TTL value: %w", err)
	}
	cfg.LockTTL = ttl

	loc, err := time.LoadLocation(getEnv("APP_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE value: %w", err)
	}
	cfg.Location = loc

	for _, o := range strings.Split(getEnv("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	switch cfg.StoreBackend {
	case BackendPostgres, BackendMongo, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("JWT_SECRET environment variable must be set")
	}

	return cfg, nil
}

// PostgresDSN returns the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// IsProduction reports whether APP_ENV selects production settings.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
