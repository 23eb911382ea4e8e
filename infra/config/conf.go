package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type CKey string

type Config struct {
	Validator *validator.Validate
	SecretKey string
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port        string `env:"APP_PORT" envDefault:"9999"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	APIKey      string `env:"API_KEY"`

	OpenSearchURL    string `env:"OPENSEARCH_URL" envDefault:"http://localhost:9200"`
	OpenSearchUser   string `env:"OPENSEARCH_USER"`
	OpenSearchPass   string `env:"OPENSEARCH_PASSWORD"`
	EnableLogging    bool   `env:"ENABLE_OPENSEARCH_LOGGING" envDefault:"false"`
	LoggingLevel     string `env:"LOGGING_LEVEL" envDefault:"info"`
	LogRetentionDays int    `env:"LOG_RETENTION_DAYS" envDefault:"30"`

	// Empty RedisAddr keeps 3-D sessions in process memory.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"30m"`

	SQLitePath       string        `env:"SQLITE_PATH" envDefault:"./gopos.db"`
	AccountCacheSize int           `env:"ACCOUNT_CACHE_SIZE" envDefault:"100"`
	AccountCacheTTL  time.Duration `env:"ACCOUNT_CACHE_TTL" envDefault:"5m"`

	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"30s"`
	CallbackBase   string        `env:"CALLBACK_BASE_URL" envDefault:"http://localhost:9999"`
	CORSOrigins    []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"100"`
	IPWhitelist        []string `env:"IP_WHITELIST" envSeparator:","`
}

// IsProduction reports whether live bank endpoints should be trusted
// without test-mode certificate relaxations.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

var (
	instance          *Config
	appConfigInstance *AppConfig
	appConfigOnce     sync.Once
)

func App() *Config {
	if instance == nil {
		instance = &Config{
			Validator: validator.New(),
			// the secret key will change every time the application is restarted.
			SecretKey: uuid.New().String(),
		}
	}
	return instance
}

// Load parses the environment into an AppConfig.
func Load() (*AppConfig, error) {
	cfg, err := env.ParseAs[AppConfig]()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetAppConfig returns the process-wide configuration, parsed on first
// use. A malformed environment falls back to the defaults.
func GetAppConfig() *AppConfig {
	appConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = &AppConfig{}
			_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
		}
		appConfigInstance = cfg
	})
	return appConfigInstance
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
