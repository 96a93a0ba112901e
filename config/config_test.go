package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"SAMPLEMIND_CACHE_BACKEND", "SAMPLEMIND_CACHE_TTL_HOURS", "SAMPLEMIND_WORKERS",
		"SAMPLEMIND_SAMPLE_RATE", "SAMPLEMIND_LOAD_STRATEGY", "SAMPLEMIND_PROVIDER_TIMEOUT_SECONDS",
		"GEMINI_API_KEY", "GOOGLE_AI_API_KEY",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, 0, cfg.SampleRate)
	assert.Equal(t, "balanced", cfg.LoadStrategy)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SAMPLEMIND_CACHE_BACKEND", "KV")
	t.Setenv("SAMPLEMIND_CACHE_TTL_HOURS", "168")
	t.Setenv("SAMPLEMIND_WORKERS", "3")
	t.Setenv("SAMPLEMIND_SAMPLE_RATE", "22050")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_AI_API_KEY", "g-key")

	cfg := FromEnv()
	assert.Equal(t, "kv", cfg.CacheBackend)
	assert.Equal(t, 168*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 22050, cfg.SampleRate)
	assert.Equal(t, "g-key", cfg.GeminiAPIKey)
}
