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

	StorageBasePath string
	StorageBaseURL  string
	StorageSecret   string
	StorageURLTTL   time.Duration

	ChatAPIKey  string
	ChatModel   string
	ChatBaseURL string

	ImageAPIKey  string
	ImageModel   string
	ImageBaseURL string

	VideoAccessKey string
	VideoSecretKey string
	VideoHost      string
	VideoRegion    string
	VideoService   string
	VideoReqKey    string

	CacheTTL            time.Duration
	ImageBatchSize      int
	ImageBatchCooldown  time.Duration
	ChatTimeout         time.Duration
	ImageTimeout        time.Duration
	VideoSubmitTimeout  time.Duration
	VideoPollTimeout    time.Duration
	WorkerPollInterval  time.Duration
	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPIdleTimeout     time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StorageBasePath: getEnv("STORAGE_BASE_PATH", "./storage"),
		StorageBaseURL:  getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		StorageSecret:   getEnv("STORAGE_URL_SECRET", "storyreel-dev-secret"),
		StorageURLTTL:   time.Minute * time.Duration(getEnvInt("STORAGE_URL_TTL_MINUTES", 30)),

		ChatAPIKey:  os.Getenv("CHAT_API_KEY"),
		ChatModel:   getEnv("CHAT_MODEL", "deepseek-chat"),
		ChatBaseURL: getEnv("CHAT_BASE_URL", "https://api.deepseek.com/v1"),

		ImageAPIKey:  os.Getenv("IMAGE_API_KEY"),
		ImageModel:   getEnv("IMAGE_MODEL", "doubao-seedream-3-0-t2i-250415"),
		ImageBaseURL: getEnv("IMAGE_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),

		VideoAccessKey: os.Getenv("VIDEO_ACCESS_KEY"),
		VideoSecretKey: os.Getenv("VIDEO_SECRET_KEY"),
		VideoHost:      getEnv("VIDEO_HOST", "visual.volcengineapi.com"),
		VideoRegion:    getEnv("VIDEO_REGION", "cn-north-1"),
		VideoService:   getEnv("VIDEO_SERVICE", "cv"),
		VideoReqKey:    getEnv("VIDEO_REQ_KEY", "jimeng_vgfm_i2v_l20"),

		CacheTTL:           time.Hour * time.Duration(getEnvInt("CACHE_TTL_HOURS", 24)),
		ImageBatchSize:     getEnvInt("IMAGE_BATCH_SIZE", 2),
		ImageBatchCooldown: time.Second * time.Duration(getEnvInt("IMAGE_BATCH_COOLDOWN_SECONDS", 2)),
		ChatTimeout:        time.Second * time.Duration(getEnvInt("CHAT_TIMEOUT_SECONDS", 30)),
		ImageTimeout:       time.Second * time.Duration(getEnvInt("IMAGE_TIMEOUT_SECONDS", 60)),
		VideoSubmitTimeout: time.Second * time.Duration(getEnvInt("VIDEO_SUBMIT_TIMEOUT_SECONDS", 60)),
		VideoPollTimeout:   time.Second * time.Duration(getEnvInt("VIDEO_POLL_TIMEOUT_SECONDS", 30)),
		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 10)),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 90)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
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
