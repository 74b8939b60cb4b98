package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"HOST", "PORT", "REFERENCE_PATH", "PROFILES_PATH", "DEFAULT_PROFILE", "MAX_UPLOAD_MB", "LOG_LEVEL", "LOG_DIR", "LOG_HUMAN"} {
		t.Setenv(k, "")
	}
	cfg := loadConfig()
	assert.Equal(t, "0.0.0.0:5000", cfg.addr())
	assert.Equal(t, "assets/reference.png", cfg.ReferencePath)
	assert.Equal(t, "geometry", cfg.DefaultProfile)
	assert.Equal(t, int64(10), cfg.MaxUploadMB)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogHuman)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "6000")
	t.Setenv("DEFAULT_PROFILE", "structural")
	t.Setenv("MAX_UPLOAD_MB", "25")
	t.Setenv("LOG_HUMAN", "1")
	cfg := loadConfig()
	assert.Equal(t, "127.0.0.1:6000", cfg.addr())
	assert.Equal(t, "structural", cfg.DefaultProfile)
	assert.Equal(t, int64(25), cfg.MaxUploadMB)
	assert.True(t, cfg.LogHuman)

	t.Setenv("MAX_UPLOAD_MB", "lots")
	assert.Equal(t, int64(10), loadConfig().MaxUploadMB)
}
