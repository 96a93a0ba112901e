package config

import (
	"runtime"
	"strings"
	"time"

	"samplemind/utils"

	"github.com/joho/godotenv"
)

// Config is the process configuration resolved from the environment.
type Config struct {
	GeminiAPIKey    string
	AnthropicAPIKey string
	OpenAIAPIKey    string

	CacheBackend     string
	CacheTTL         time.Duration
	CacheDir         string
	FeatureCacheSize int

	Workers      int
	SampleRate   int
	LoadStrategy string

	DBPath   string
	MongoURI string

	ProviderConfigPath string
	ProviderTimeout    time.Duration
}

// Load reads .env when present and resolves every recognised variable.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv resolves the configuration without touching .env files.
func FromEnv() Config {
	workers := utils.GetEnvInt("SAMPLEMIND_WORKERS", runtime.NumCPU())
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ttlHours := utils.GetEnvFloat("SAMPLEMIND_CACHE_TTL_HOURS", 1)
	if ttlHours <= 0 {
		ttlHours = 1
	}

	timeoutSeconds := utils.GetEnvInt("SAMPLEMIND_PROVIDER_TIMEOUT_SECONDS", 30)
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	cacheSize := utils.GetEnvInt("SAMPLEMIND_FEATURE_CACHE_SIZE", 1000)
	if cacheSize <= 0 {
		cacheSize = 1000
	}

	sampleRate := utils.GetEnvInt("SAMPLEMIND_SAMPLE_RATE", 0)
	if sampleRate < 0 {
		sampleRate = 0
	}

	gemini := utils.GetEnv("GEMINI_API_KEY", "")
	if gemini == "" {
		gemini = utils.GetEnv("GOOGLE_AI_API_KEY", "")
	}

	return Config{
		GeminiAPIKey:       gemini,
		AnthropicAPIKey:    utils.GetEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:       utils.GetEnv("OPENAI_API_KEY", ""),
		CacheBackend:       strings.ToLower(utils.GetEnv("SAMPLEMIND_CACHE_BACKEND", "memory")),
		CacheTTL:           time.Duration(ttlHours * float64(time.Hour)),
		CacheDir:           utils.GetEnv("SAMPLEMIND_CACHE_DIR", "cache"),
		FeatureCacheSize:   cacheSize,
		Workers:            workers,
		SampleRate:         sampleRate,
		LoadStrategy:       strings.ToLower(utils.GetEnv("SAMPLEMIND_LOAD_STRATEGY", "balanced")),
		DBPath:             utils.GetEnv("SAMPLEMIND_DB_PATH", "db/samplemind.sqlite3"),
		MongoURI:           utils.GetEnv("SAMPLEMIND_MONGO_URI", "mongodb://localhost:27017"),
		ProviderConfigPath: utils.GetEnv("SAMPLEMIND_PROVIDER_CONFIG", "providers.json"),
		ProviderTimeout:    time.Duration(timeoutSeconds) * time.Second,
	}
}

// RequestTimeout is the overall budget for one orchestrated request.
func (c Config) RequestTimeout() time.Duration {
	return 2 * c.ProviderTimeout
}
