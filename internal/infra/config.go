package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	// RedisAddr enables the queue intake and the progress cache when set.
	// Empty means poll-only operation against postgres.
	RedisAddr     string
	RedisPassword string

	StoragePath    string
	ScratchDir     string
	MaxUploadBytes int64

	FFmpegPath    string
	FFprobePath   string
	RenderTimeout time.Duration

	PollInterval      time.Duration
	WorkerConcurrency int
	RendersPerSecond  float64
	RenderBurst       int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// QueueEnabled reports whether the Redis-backed intake path is configured.
func (c *Config) QueueEnabled() bool {
	return c.RedisAddr != ""
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		ScratchDir:     os.Getenv("SCRATCH_DIR"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 500)) << 20,

		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:   getEnv("FFPROBE_PATH", "ffprobe"),
		RenderTimeout: time.Minute * time.Duration(getEnvInt("RENDER_TIMEOUT_MINUTES", 180)),

		PollInterval:      time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 2)),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		RendersPerSecond:  getEnvFloat("RENDERS_PER_SECOND", 1),
		RenderBurst:       getEnvInt("RENDER_BURST", 2),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
