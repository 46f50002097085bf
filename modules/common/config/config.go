package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"prompt-decoder-server/modules/common/logger"
)

// Config - every setting the server reads from the environment
type Config struct {
	// Server
	Port           string `yaml:"port"`
	PublicBaseURL  string `yaml:"publicBaseUrl"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes"`

	// Gemini API
	GeminiAPIKey string `yaml:"geminiApiKey"`
	GeminiModel  string `yaml:"geminiModel"`

	// Retry policy for every Gemini call
	RetryMaxAttempts    int           `yaml:"retryMaxAttempts"`
	RetryBaseDelay      time.Duration `yaml:"retryBaseDelay"`
	RetryAttemptTimeout time.Duration `yaml:"retryAttemptTimeout"`

	// Image preprocessing
	MaxDimension      int           `yaml:"maxDimension"`
	MaxPixels         int           `yaml:"maxPixels"`
	ImageQuality      float64       `yaml:"imageQuality"`
	OutputFormat      string        `yaml:"outputFormat"`
	PreprocessTimeout time.Duration `yaml:"preprocessTimeout"`
	PreprocessWorkers int           `yaml:"preprocessWorkers"`

	// History
	HistoryBackend string `yaml:"historyBackend"` // memory, redis, supabase
	HistoryLimit   int    `yaml:"historyLimit"`

	// Redis
	RedisHost     string `yaml:"redisHost"`
	RedisPort     string `yaml:"redisPort"`
	RedisUsername string `yaml:"redisUsername"`
	RedisPassword string `yaml:"redisPassword"`
	RedisUseTLS   bool   `yaml:"redisUseTls"`

	// Supabase
	SupabaseURL        string `yaml:"supabaseUrl"`
	SupabaseServiceKey string `yaml:"supabaseServiceKey"`

	// Async decode queue (needs redis)
	QueueEnabled bool `yaml:"queueEnabled"`

	// Logging
	LogLevel  string `yaml:"logLevel"`
	LogFile   string `yaml:"logFile"`
	LogFormat string `yaml:"logFormat"`
}

var globalConfig *Config

// Defaults - configuration used before files and environment are applied
func Defaults() *Config {
	return &Config{
		Port:                "8080",
		MaxUploadBytes:      10 * 1024 * 1024,
		GeminiModel:         "gemini-2.5-flash",
		RetryMaxAttempts:    3,
		RetryBaseDelay:      time.Second,
		RetryAttemptTimeout: 60 * time.Second,
		MaxDimension:        1536,
		MaxPixels:           40_000_000,
		ImageQuality:        0.85,
		OutputFormat:        "image/jpeg",
		PreprocessTimeout:   8 * time.Second,
		HistoryBackend:      "memory",
		HistoryLimit:        24,
		RedisHost:           "localhost",
		RedisPort:           "6379",
		RedisUseTLS:         false,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// LoadConfig - load .env, optional YAML file (CONFIG_FILE), then environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("⚠️  .env file not found, using environment variables")
	}

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg

	logger.WithFields(map[string]interface{}{
		"port":            cfg.Port,
		"model":           cfg.GeminiModel,
		"history_backend": cfg.HistoryBackend,
		"max_dimension":   cfg.MaxDimension,
		"retry_attempts":  cfg.RetryMaxAttempts,
	}).Info("✅ Configuration loaded successfully")

	return cfg, nil
}

// GetConfig - return the loaded configuration
func GetConfig() *Config {
	if globalConfig == nil {
		logger.Logger.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// mergeFile - overlay values from a YAML file
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.PublicBaseURL = getEnv("PUBLIC_BASE_URL", c.PublicBaseURL)
	c.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)

	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)

	c.RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts)
	c.RetryBaseDelay = getEnvDuration("RETRY_BASE_DELAY", c.RetryBaseDelay)
	c.RetryAttemptTimeout = getEnvDuration("RETRY_ATTEMPT_TIMEOUT", c.RetryAttemptTimeout)

	c.MaxDimension = getEnvInt("MAX_DIMENSION", c.MaxDimension)
	c.MaxPixels = getEnvInt("MAX_PIXELS", c.MaxPixels)
	c.ImageQuality = getEnvFloat("IMAGE_QUALITY", c.ImageQuality)
	c.OutputFormat = getEnv("OUTPUT_FORMAT", c.OutputFormat)
	c.PreprocessTimeout = getEnvDuration("PREPROCESS_TIMEOUT", c.PreprocessTimeout)
	c.PreprocessWorkers = getEnvInt("PREPROCESS_WORKERS", c.PreprocessWorkers)

	c.HistoryBackend = strings.ToLower(getEnv("HISTORY_BACKEND", c.HistoryBackend))
	c.HistoryLimit = getEnvInt("HISTORY_LIMIT", c.HistoryLimit)

	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisUsername = getEnv("REDIS_USERNAME", c.RedisUsername)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisUseTLS = getEnvBool("REDIS_USE_TLS", c.RedisUseTLS)

	c.SupabaseURL = getEnv("SUPABASE_URL", c.SupabaseURL)
	c.SupabaseServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.SupabaseServiceKey)

	c.QueueEnabled = getEnvBool("QUEUE_ENABLED", c.QueueEnabled)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// validate - check required settings and ranges
func (c *Config) validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if p, err := strconv.Atoi(strings.TrimSpace(c.Port)); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1 (got %d)", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must be >= 0 (got %s)", c.RetryBaseDelay)
	}
	if c.MaxDimension <= 0 {
		return fmt.Errorf("MAX_DIMENSION must be > 0 (got %d)", c.MaxDimension)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("MAX_PIXELS must be > 0 (got %d)", c.MaxPixels)
	}
	if c.ImageQuality <= 0 || c.ImageQuality > 1 {
		return fmt.Errorf("IMAGE_QUALITY must be in (0,1] (got %v)", c.ImageQuality)
	}
	if c.OutputFormat != "image/jpeg" && c.OutputFormat != "image/webp" {
		return fmt.Errorf("OUTPUT_FORMAT must be image/jpeg or image/webp (got %s)", c.OutputFormat)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0 (got %d)", c.HistoryLimit)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0 (got %d)", c.MaxUploadBytes)
	}
	switch c.HistoryBackend {
	case "memory", "redis":
	case "supabase":
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase history backend")
		}
	default:
		return fmt.Errorf("unknown HISTORY_BACKEND: %s", c.HistoryBackend)
	}
	return nil
}

// GetRedisAddr - Redis address string
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// NeedsRedis - true when any component talks to redis
func (c *Config) NeedsRedis() bool {
	return c.HistoryBackend == "redis" || c.QueueEnabled
}

// getEnv - environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}
