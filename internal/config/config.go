package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DraftBackendFile   = "file"
	DraftBackendRedis  = "redis"
	DraftBackendMemory = "memory"
)

type Config struct {
	// Client
	APIBaseURL    string
	APIToken      string
	APITimeout    time.Duration
	DraftBackend  string
	DraftDir      string
	RedisURL      string
	DraftDebounce time.Duration
	LogLevel      string
	LogFormat     string

	// Reference server
	Addr            string
	DatabaseURL     string
	MigrationsDir   string
	DBMaxOpenConns  int
	ReposDir        string
	JWTSecret       string
	RegenerateLimit int
	CORSOrigin      string

	// Export
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

// Load reads the environment, after loading a .env file when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		APIBaseURL:    strings.TrimRight(getenv("SCRIPT_API_BASE_URL", "http://localhost:8787/api/v1"), "/"),
		APIToken:      getenv("SCRIPT_API_TOKEN", ""),
		APITimeout:    time.Duration(getenvInt("SCRIPT_API_TIMEOUT_SECONDS", 30)) * time.Second,
		DraftBackend:  strings.ToLower(getenv("SCRIPT_DRAFT_BACKEND", DraftBackendFile)),
		DraftDir:      getenv("SCRIPT_DRAFT_DIR", "./data/drafts"),
		RedisURL:      getenv("REDIS_URL", "redis://localhost:6379/0"),
		DraftDebounce: time.Duration(getenvInt("SCRIPT_DRAFT_DEBOUNCE_MS", 300)) * time.Millisecond,
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "console"),

		Addr:            getenv("API_ADDR", ":8787"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		MigrationsDir:   getenv("SCRIPT_MIGRATIONS_DIR", ""),
		DBMaxOpenConns:  getenvInt("SCRIPT_DB_MAX_OPEN_CONNS", 10),
		ReposDir:        getenv("SCRIPT_REPOS_DIR", ""),
		JWTSecret:       getenv("SCRIPT_JWT_SECRET", ""),
		RegenerateLimit: getenvInt("SCRIPT_REGENERATE_LIMIT", 5),
		CORSOrigin:      getenv("SCRIPT_CORS_ORIGIN", "*"),

		// MinIO - export uploads disabled if no endpoint is configured
		MinIOEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinIOAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getenv("MINIO_BUCKET", "script-exports"),
		MinIOUseSSL:    getenvBool("MINIO_USE_SSL", false),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
