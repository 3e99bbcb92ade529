// Package config loads the service configuration from environment variables,
// following the env-first convention of the surrounding codebase.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-style key named in the external interface
// contract.
type Config struct {
	Port        string
	LogLevel    string
	DBURL       string
	SecretKey   string
	AccessTTL   time.Duration

	AllowedContentTypes []string
	MaxUploadBytes      int64

	WorkerPoolSize      int
	StaleLockTTL        time.Duration
	ExtractorTimeout    time.Duration

	DailyManualCapacity  int
	HighPriorityThresh   float64
	SLAWindowLowDays     int
	SLAWindowMediumDays  int
	SLAWindowHighDays    int

	OCREnabled   bool
	NLPModelPath string

	AdvisoryBaseURL     string
	AdvisoryAPIKey      string
	AdvisoryTimeout     time.Duration
	AdvisoryTemperature float64

	RedisURL        string
	ArtifactStorage string // "fs" or "s3"
	DataDir         string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string

	DictionariesDir string
}

// Load reads configuration from the environment, applying the defaults from
// the external interface specification.
func Load() *Config {
	return &Config{
		Port:      envOr("PORT", "8080"),
		LogLevel:  envOr("LOG_LEVEL", "INFO"),
		DBURL:     envOr("DB_URL", "postgres://review@localhost:5432/citizenship_review?sslmode=disable"),
		SecretKey: envOr("SECRET_KEY", "dev-insecure-secret-change-me"),
		AccessTTL: time.Duration(envOrInt("ACCESS_TOKEN_TTL_MINUTES", 11520)) * time.Minute,

		AllowedContentTypes: envOrList("ALLOWED_CONTENT_TYPES", []string{
			"application/pdf", "image/jpeg", "image/png", "image/webp",
		}),
		MaxUploadBytes: envOrInt64("MAX_UPLOAD_BYTES", 25*1024*1024),

		WorkerPoolSize:   envOrInt("WORKER_POOL_SIZE", 4),
		StaleLockTTL:     time.Duration(envOrInt("STALE_LOCK_TTL_SECONDS", 600)) * time.Second,
		ExtractorTimeout: time.Duration(envOrInt("EXTRACTOR_TIMEOUT_SECONDS", 60)) * time.Second,

		DailyManualCapacity: envOrInt("DAILY_MANUAL_CAPACITY", 20),
		HighPriorityThresh:  envOrFloat("HIGH_PRIORITY_THRESHOLD", 70),
		SLAWindowLowDays:    envOrInt("SLA_WINDOW_DAYS_LOW", 21),
		SLAWindowMediumDays: envOrInt("SLA_WINDOW_DAYS_MEDIUM", 14),
		SLAWindowHighDays:   envOrInt("SLA_WINDOW_DAYS_HIGH", 7),

		OCREnabled:   envOrBool("OCR_ENABLED", true),
		NLPModelPath: envOr("NLP_MODEL_PATH", ""),

		AdvisoryBaseURL:     envOr("ADVISORY_BASE_URL", ""),
		AdvisoryAPIKey:      envOr("ADVISORY_API_KEY", ""),
		AdvisoryTimeout:     time.Duration(envOrInt("ADVISORY_TIMEOUT_SECONDS", 20)) * time.Second,
		AdvisoryTemperature: envOrFloat("ADVISORY_TEMPERATURE", 0.2),

		RedisURL:        envOr("REDIS_URL", ""),
		ArtifactStorage: envOr("ARTIFACT_STORAGE_TYPE", "fs"),
		DataDir:         envOr("DATA_DIR", "data"),
		S3Bucket:        envOr("DOCUMENT_S3_BUCKET", ""),
		S3Region:        envOr("DOCUMENT_S3_REGION", "eu-north-1"),
		S3Endpoint:      envOr("DOCUMENT_S3_ENDPOINT", ""),

		DictionariesDir: envOr("DICTIONARIES_DIR", "pkg/dictionaries/data"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return def
}

func envOrList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
