package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Everything has a default so a bare `hlswatch` run works without a .env file.
type Config struct {
	WatchRoot       string
	PlaylistPattern string
	ScanExisting    bool
	MaxMonitors     int
	QueueSize       int
	FetchDelayMin   time.Duration
	FetchDelayMax   time.Duration
	ShutdownGrace   time.Duration
	StatusListen    string // empty disables the status server

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool

	// Redis segment record
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisHistory  int
	RedisTTL      time.Duration

	// MinIO segment archive; empty endpoint disables it
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("error loading .env, relying on existing environment variables and defaults: %v", err)
	}

	cfg := &Config{
		WatchRoot:       ".",
		PlaylistPattern: getEnv("PLAYLIST_PATTERN", "*.m3u8"),
		ScanExisting:    getEnvBool("SCAN_EXISTING", false),
		MaxMonitors:     getEnvInt("MAX_MONITORS", 10),
		QueueSize:       getEnvInt("QUEUE_SIZE", 64),
		FetchDelayMin:   getEnvDuration("FETCH_DELAY_MIN", 100*time.Millisecond),
		FetchDelayMax:   getEnvDuration("FETCH_DELAY_MAX", time.Second),
		ShutdownGrace:   getEnvDuration("SHUTDOWN_GRACE", 15*time.Second),
		StatusListen:    getEnv("STATUS_LISTEN", ""),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisHistory:  getEnvInt("REDIS_HISTORY", 100),
		RedisTTL:      getEnvDuration("REDIS_TTL", 24*time.Hour),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "hlswatch"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", ""),
	}

	if cfg.MaxMonitors < 1 {
		cfg.MaxMonitors = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.FetchDelayMax < cfg.FetchDelayMin {
		cfg.FetchDelayMax = cfg.FetchDelayMin
	}
	return cfg
}

// MinioEnabled reports whether dispatched segments should be archived.
func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != ""
}
