package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, 600*time.Second, cfg.StaleLockTTL)
	assert.Equal(t, 21, cfg.SLAWindowLowDays)
	assert.Equal(t, 14, cfg.SLAWindowMediumDays)
	assert.Equal(t, 7, cfg.SLAWindowHighDays)
	assert.ElementsMatch(t, []string{
		"application/pdf", "image/jpeg", "image/png", "image/webp",
	}, cfg.AllowedContentTypes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WORKER_POOL_SIZE", "8")
	t.Setenv("OCR_ENABLED", "false")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 8, cfg.WorkerPoolSize)
	assert.False(t, cfg.OCREnabled)
}
