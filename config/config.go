package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLen = 32

type Config struct {
	Addr        string
	DatabaseDSN string
	SiteURL     string
	UploadRoot  string

	JWTSecret string
	TokenTTL  time.Duration

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	MaxAppSizeMB     int64
	MaxImageSizeMB   int64
	DownloadMaxBytes int64

	RateLimitRPS   float64
	RateLimitBurst int

	CORSOrigins    []string
	TrustedProxies []string
	LogLevel       string
	LogFormat      string
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:             getenv("APP_ADDR", ":8081"),
		DatabaseDSN:      getenv("DATABASE_DSN", "data/catalog.db"),
		SiteURL:          getenv("SITE_URL", "http://localhost:8081/"),
		UploadRoot:       getenv("UPLOAD_ROOT", "data/uploads"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		TokenTTL:         getduration("TOKEN_TTL", 24*time.Hour),
		AdminUsername:    getenv("ADMIN_USERNAME", "admin"),
		AdminEmail:       getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword:    getenv("ADMIN_PASSWORD", ""),
		MaxAppSizeMB:     getint("MAX_APP_SIZE_MB", 500),
		MaxImageSizeMB:   getint("MAX_IMAGE_SIZE_MB", 5),
		DownloadMaxBytes: getint("DOWNLOAD_MAX_BYTES", 0),
		RateLimitRPS:     getfloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   int(getint("RATE_LIMIT_BURST", 10)),
		CORSOrigins:      splitList(getenv("CORS_ORIGINS", "*")),
		TrustedProxies:   splitList(os.Getenv("TRUSTED_PROXIES")),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "text"),
	}

	if !strings.HasSuffix(cfg.SiteURL, "/") {
		cfg.SiteURL += "/"
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < minSecretLen {
		return cfg, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLen)
	}
	if cfg.DatabaseDSN == "" {
		return cfg, errors.New("DATABASE_DSN is required")
	}
	if cfg.MaxAppSizeMB <= 0 || cfg.MaxImageSizeMB <= 0 {
		return cfg, errors.New("upload size limits must be positive")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
