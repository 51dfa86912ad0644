package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Env      Environment `envconfig:"ENV" default:"development"`
	LogLevel string      `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool        `envconfig:"DEBUG" default:"false"`

	App      AppConfig
	Server   ServerConfig
	Redis    RedisConfig
	Claude   ClaudeConfig
	Gemini   GeminiConfig
	OCR      OCRConfig
	Pipeline PipelineConfig
	Storage  StorageConfig
	Security SecurityConfig
}

// AppConfig holds application metadata
type AppConfig struct {
	Name    string `envconfig:"APP_NAME" default:"casegen"`
	Version string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"300s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxRequestSize  int64         `envconfig:"SERVER_MAX_REQUEST_SIZE" default:"104857600"` // 100MB, 25 screenshots
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig holds Redis settings. An empty host disables the shared tier.
type RedisConfig struct {
	Host         string        `envconfig:"REDIS_HOST" default:""`
	Port         int           `envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"REDIS_PASSWORD" default:""`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a Redis host was configured
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// ClaudeConfig holds Anthropic settings
type ClaudeConfig struct {
	APIKey       string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	BaseURL      string        `envconfig:"CLAUDE_BASE_URL" default:"https://api.anthropic.com"`
	Model        string        `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-20250514"`
	MaxTokens    int           `envconfig:"CLAUDE_MAX_TOKENS" default:"8192"`
	Temperature  float64       `envconfig:"CLAUDE_TEMPERATURE" default:"0.3"`
	Timeout      time.Duration `envconfig:"CLAUDE_TIMEOUT" default:"120s"`
	RateLimitRPM int           `envconfig:"CLAUDE_RATE_LIMIT_RPM" default:"50"`
}

// GeminiConfig holds Google Gemini settings
type GeminiConfig struct {
	APIKey      string        `envconfig:"GEMINI_API_KEY" default:""`
	Model       string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int           `envconfig:"GEMINI_MAX_TOKENS" default:"8192"`
	Temperature float64       `envconfig:"GEMINI_TEMPERATURE" default:"0.3"`
	Timeout     time.Duration `envconfig:"GEMINI_TIMEOUT" default:"120s"`
}

// OCRConfig holds OCR engine settings
type OCRConfig struct {
	Endpoint string        `envconfig:"OCR_ENDPOINT" default:"http://localhost:8884/tesseract"`
	Language string        `envconfig:"OCR_LANGUAGE" default:"eng"`
	Timeout  time.Duration `envconfig:"OCR_TIMEOUT" default:"60s"`
}

// PipelineConfig holds generation pipeline settings
type PipelineConfig struct {
	DefaultModel        string        `envconfig:"PIPELINE_DEFAULT_MODEL" default:"claude"`
	CacheSize           int           `envconfig:"PIPELINE_CACHE_SIZE" default:"512"`
	CacheTTL            time.Duration `envconfig:"PIPELINE_CACHE_TTL" default:"24h"`
	SessionSize         int           `envconfig:"PIPELINE_SESSION_SIZE" default:"1024"`
	SessionTTL          time.Duration `envconfig:"PIPELINE_SESSION_TTL" default:"72h"`
	RetryAttempts       int           `envconfig:"PIPELINE_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay      time.Duration `envconfig:"PIPELINE_RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay       time.Duration `envconfig:"PIPELINE_RETRY_MAX_DELAY" default:"10s"`
	KeyIncludesScenario bool          `envconfig:"PIPELINE_KEY_INCLUDES_SCENARIO" default:"true"`
	ArchiveResults      bool          `envconfig:"PIPELINE_ARCHIVE_RESULTS" default:"false"`
}

// StorageConfig holds object storage settings
type StorageConfig struct {
	Endpoint       string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey      string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"STORAGE_BUCKET" default:"casegen"`
	Region         string `envconfig:"STORAGE_REGION" default:"us-east-1"`
	UseSSL         bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
	ScreenshotPath string `envconfig:"STORAGE_SCREENSHOT_PATH" default:"screenshots"`
	ResultPath     string `envconfig:"STORAGE_RESULT_PATH" default:"results"`
}

// SecurityConfig holds CORS settings
type SecurityConfig struct {
	CORSEnabled        bool     `envconfig:"CORS_ENABLED" default:"true"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config without validating it (for CLI tools).
// A variable that fails to parse is still an error: envconfig stops at the
// first bad field and leaves the rest zero.
func LoadWithDefaults() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	if cfg.Claude.APIKey == "" {
		cfg.Claude.APIKey = os.Getenv("CLAUDE_API_KEY")
	}
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errors []string

	if c.Claude.APIKey == "" && c.Gemini.APIKey == "" {
		errors = append(errors, "ANTHROPIC_API_KEY or GEMINI_API_KEY is required")
	}

	switch c.Pipeline.DefaultModel {
	case "claude", "gemini":
	default:
		errors = append(errors, fmt.Sprintf("PIPELINE_DEFAULT_MODEL must be claude or gemini, got %q", c.Pipeline.DefaultModel))
	}

	if c.Pipeline.RetryAttempts < 1 {
		errors = append(errors, "PIPELINE_RETRY_ATTEMPTS must be at least 1")
	}
	if c.Pipeline.CacheSize < 1 || c.Pipeline.SessionSize < 1 {
		errors = append(errors, "PIPELINE_CACHE_SIZE and PIPELINE_SESSION_SIZE must be positive")
	}

	if c.Env == EnvProduction && c.Pipeline.ArchiveResults && c.Storage.SecretKey == "minioadmin" {
		errors = append(errors, "STORAGE_SECRET_KEY must be changed when archiving in production")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// GetLogLevel returns the appropriate zap log level
func (c *Config) GetLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
