package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv - blank every key the loader reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "PUBLIC_BASE_URL", "MAX_UPLOAD_BYTES",
		"GEMINI_API_KEY", "GEMINI_MODEL",
		"RETRY_MAX_ATTEMPTS", "RETRY_BASE_DELAY", "RETRY_ATTEMPT_TIMEOUT",
		"MAX_DIMENSION", "MAX_PIXELS", "IMAGE_QUALITY", "OUTPUT_FORMAT", "PREPROCESS_TIMEOUT", "PREPROCESS_WORKERS",
		"HISTORY_BACKEND", "HISTORY_LIMIT",
		"REDIS_HOST", "REDIS_PORT", "REDIS_USERNAME", "REDIS_PASSWORD", "REDIS_USE_TLS",
		"SUPABASE_URL", "SUPABASE_SERVICE_KEY", "QUEUE_ENABLED",
		"LOG_LEVEL", "LOG_FILE", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 1536, cfg.MaxDimension)
	assert.Equal(t, 40_000_000, cfg.MaxPixels)
	assert.Equal(t, 0.85, cfg.ImageQuality)
	assert.Equal(t, "image/jpeg", cfg.OutputFormat)
	assert.Equal(t, 8*time.Second, cfg.PreprocessTimeout)
	assert.Equal(t, "memory", cfg.HistoryBackend)
	assert.Equal(t, 24, cfg.HistoryLimit)
	assert.False(t, cfg.NeedsRedis())
	assert.Same(t, cfg, GetConfig())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("MAX_DIMENSION", "1024")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("HISTORY_BACKEND", "REDIS")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.MaxDimension)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, "redis", cfg.HistoryBackend)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, "cache:6379", cfg.GetRedisAddr())
	assert.True(t, cfg.NeedsRedis())
}

func TestLoadConfigFileOverlay(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
geminiApiKey: from-file
maxDimension: 800
outputFormat: image/webp
queueEnabled: true
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_DIMENSION", "900")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.GeminiAPIKey)
	assert.Equal(t, 900, cfg.MaxDimension)
	assert.Equal(t, "image/webp", cfg.OutputFormat)
	assert.True(t, cfg.QueueEnabled)
	assert.True(t, cfg.NeedsRedis())
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing api key", map[string]string{}},
		{"bad port", map[string]string{"GEMINI_API_KEY": "k", "PORT": "http"}},
		{"quality out of range", map[string]string{"GEMINI_API_KEY": "k", "IMAGE_QUALITY": "1.5"}},
		{"unsupported format", map[string]string{"GEMINI_API_KEY": "k", "OUTPUT_FORMAT": "image/png"}},
		{"unknown backend", map[string]string{"GEMINI_API_KEY": "k", "HISTORY_BACKEND": "sqlite"}},
		{"supabase without credentials", map[string]string{"GEMINI_API_KEY": "k", "HISTORY_BACKEND": "supabase"}},
		{"zero pixel budget", map[string]string{"GEMINI_API_KEY": "k", "MAX_PIXELS": "0"}},
		{"zero attempts", map[string]string{"GEMINI_API_KEY": "k", "RETRY_MAX_ATTEMPTS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}
