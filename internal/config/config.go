// Package config provides centralized configuration management
// using Viper for configuration loading and validation
package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	PromptWizard PromptWizardConfig `mapstructure:"promptwizard"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Feedback     FeedbackConfig     `mapstructure:"feedback"`
	Redis        RedisConfig        `mapstructure:"redis"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PromptWizardConfig configures the optimizer backend integration and the
// optimization pipeline behavior.
type PromptWizardConfig struct {
	Enabled                bool    `mapstructure:"enabled"`
	ServiceURL             string  `mapstructure:"service_url"`
	TimeoutMS              int     `mapstructure:"timeout"` // milliseconds, 30000-600000
	Retries                int     `mapstructure:"retries"` // 0-10
	VerifySSL              bool    `mapstructure:"verify_ssl"`
	APIKey                 string  `mapstructure:"api_key"`
	DefaultModel           string  `mapstructure:"default_model"`
	MutateRefineIterations int     `mapstructure:"mutate_refine_iterations"` // 1-10
	FewShotCount           int     `mapstructure:"few_shot_count"`           // 0-20
	GenerateReasoning      bool    `mapstructure:"generate_reasoning"`
	MaxPromptLength        int     `mapstructure:"max_prompt_length"` // >= 1000
	MinConfidence          float64 `mapstructure:"min_confidence"`    // 0-1
	AutoOptimize           bool    `mapstructure:"auto_optimize"`

	Cache        CacheConfig        `mapstructure:"cache"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Analytics    AnalyticsConfig    `mapstructure:"analytics"`
}

// CacheConfig bounds the fingerprint cache and optionally enables the
// distributed tier behind it.
type CacheConfig struct {
	Enabled     bool             `mapstructure:"enabled"`
	TTLSeconds  int              `mapstructure:"ttl"`
	MaxSize     int              `mapstructure:"max_size"`
	Distributed DistributedCache `mapstructure:"distributed"`
}

// DistributedCache configures the optional Redis-backed cache tier.
type DistributedCache struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// RateLimitingConfig throttles calls to the optimizer backend.
type RateLimitingConfig struct {
	MaxRequests int  `mapstructure:"max_requests"`
	WindowMS    int  `mapstructure:"window_ms"`
	SkipCached  bool `mapstructure:"skip_cached"`
}

// AnalyticsConfig configures usage tracking.
type AnalyticsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	TrackUsage     bool   `mapstructure:"track_usage"`
	ReportInterval int    `mapstructure:"report_interval"` // seconds
	Backend        string `mapstructure:"backend"`         // memory, file, remote
}

// QueueConfig configures the optimization job queue.
type QueueConfig struct {
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MaxJobHistory   int           `mapstructure:"max_job_history"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Distributed     bool          `mapstructure:"distributed"`
}

// FeedbackConfig configures the continuous-improvement feedback loop.
type FeedbackConfig struct {
	FeedbackThreshold        int           `mapstructure:"feedback_threshold"`
	RatingThreshold          float64       `mapstructure:"rating_threshold"`
	PerformanceThreshold     float64       `mapstructure:"performance_threshold"`
	Cooldown                 time.Duration `mapstructure:"cooldown"`
	ReviewInterval           time.Duration `mapstructure:"review_interval"`
	EnableAutoReoptimization bool          `mapstructure:"enable_auto_reoptimization"`
}

// RedisConfig contains Redis connection configuration shared by the
// distributed cache tier and the distributed queue backend.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// Store wraps a loaded Config with its backing viper instance so runtime
// overrides (the highest-priority configuration source) and file watching
// stay available after the initial load.
type Store struct {
	mu     sync.RWMutex
	v      *viper.Viper
	config *Config
}

// Load loads configuration from defaults, an optional file, and
// CURSOR_PROMPT_-prefixed environment variables, in increasing priority.
func Load(configPath string) (*Store, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/cursor-prompt")
	}

	// Each underscore-separated env segment becomes a dotted key:
	// CURSOR_PROMPT_PROMPTWIZARD_SERVICE_URL -> promptwizard.service_url
	v.SetEnvPrefix("CURSOR_PROMPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist, we have defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Store{v: v, config: &config}, nil
}

// Config returns the currently effective configuration.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Set applies a runtime override for a dotted key and re-validates. Runtime
// overrides take priority over every other source.
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(key, value)
	var config Config
	if err := s.v.Unmarshal(&config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	s.config = &config
	return nil
}

// Watch re-reads the configuration whenever the backing file changes and
// invokes onChange with the new value. Invalid edits are ignored; the last
// valid configuration stays in effect.
func (s *Store) Watch(onChange func(*Config)) {
	s.v.OnConfigChange(func(fsnotify.Event) {
		s.mu.Lock()
		var config Config
		if err := s.v.Unmarshal(&config); err != nil || config.Validate() != nil {
			s.mu.Unlock()
			return
		}
		s.config = &config
		s.mu.Unlock()
		if onChange != nil {
			onChange(&config)
		}
	})
	s.v.WatchConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "prompt-optimizer")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// PromptWizard defaults
	v.SetDefault("promptwizard.enabled", false)
	v.SetDefault("promptwizard.service_url", "http://localhost:8000")
	v.SetDefault("promptwizard.timeout", 120000)
	v.SetDefault("promptwizard.retries", 3)
	v.SetDefault("promptwizard.verify_ssl", true)
	v.SetDefault("promptwizard.default_model", "gpt-4")
	v.SetDefault("promptwizard.mutate_refine_iterations", 3)
	v.SetDefault("promptwizard.few_shot_count", 5)
	v.SetDefault("promptwizard.generate_reasoning", true)
	v.SetDefault("promptwizard.max_prompt_length", 10000)
	v.SetDefault("promptwizard.min_confidence", 0.7)
	v.SetDefault("promptwizard.auto_optimize", false)

	v.SetDefault("promptwizard.cache.enabled", true)
	v.SetDefault("promptwizard.cache.ttl", 3600)
	v.SetDefault("promptwizard.cache.max_size", 1000)
	v.SetDefault("promptwizard.cache.distributed.enabled", false)
	v.SetDefault("promptwizard.cache.distributed.namespace", "promptwizard")

	v.SetDefault("promptwizard.rate_limiting.max_requests", 60)
	v.SetDefault("promptwizard.rate_limiting.window_ms", 60000)
	v.SetDefault("promptwizard.rate_limiting.skip_cached", true)

	v.SetDefault("promptwizard.analytics.enabled", false)
	v.SetDefault("promptwizard.analytics.track_usage", true)
	v.SetDefault("promptwizard.analytics.report_interval", 3600)
	v.SetDefault("promptwizard.analytics.backend", "memory")

	// Queue defaults
	v.SetDefault("queue.max_concurrency", 3)
	v.SetDefault("queue.job_timeout", "10m")
	v.SetDefault("queue.retry_delay", "5s")
	v.SetDefault("queue.max_job_history", 1000)
	v.SetDefault("queue.cleanup_interval", "1h")
	v.SetDefault("queue.distributed", false)

	// Feedback loop defaults
	v.SetDefault("feedback.feedback_threshold", 10)
	v.SetDefault("feedback.rating_threshold", 3.0)
	v.SetDefault("feedback.performance_threshold", 0.8)
	v.SetDefault("feedback.cooldown", "24h")
	v.SetDefault("feedback.review_interval", "168h")
	v.SetDefault("feedback.enable_auto_reoptimization", false)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 10)
}

// Validate checks configuration ranges and enumerations.
func (c *Config) Validate() error {
	pw := c.PromptWizard

	if pw.Enabled {
		if pw.ServiceURL == "" {
			return fmt.Errorf("promptwizard.service_url is required when promptwizard is enabled")
		}
		if _, err := url.ParseRequestURI(pw.ServiceURL); err != nil {
			return fmt.Errorf("promptwizard.service_url is not a valid URL: %w", err)
		}
	}
	if pw.TimeoutMS < 30000 || pw.TimeoutMS > 600000 {
		return fmt.Errorf("promptwizard.timeout must be between 30000 and 600000 ms, got %d", pw.TimeoutMS)
	}
	if pw.Retries < 0 || pw.Retries > 10 {
		return fmt.Errorf("promptwizard.retries must be between 0 and 10, got %d", pw.Retries)
	}
	if !validModel(pw.DefaultModel) {
		return fmt.Errorf("promptwizard.default_model %q is not a supported model", pw.DefaultModel)
	}
	if pw.MutateRefineIterations < 1 || pw.MutateRefineIterations > 10 {
		return fmt.Errorf("promptwizard.mutate_refine_iterations must be between 1 and 10, got %d", pw.MutateRefineIterations)
	}
	if pw.FewShotCount < 0 || pw.FewShotCount > 20 {
		return fmt.Errorf("promptwizard.few_shot_count must be between 0 and 20, got %d", pw.FewShotCount)
	}
	if pw.MaxPromptLength < 1000 {
		return fmt.Errorf("promptwizard.max_prompt_length must be at least 1000, got %d", pw.MaxPromptLength)
	}
	if pw.MinConfidence < 0 || pw.MinConfidence > 1 {
		return fmt.Errorf("promptwizard.min_confidence must be between 0 and 1, got %f", pw.MinConfidence)
	}
	switch pw.Analytics.Backend {
	case "memory", "file", "remote":
	default:
		return fmt.Errorf("promptwizard.analytics.backend %q must be one of memory, file, remote", pw.Analytics.Backend)
	}

	if c.Queue.MaxConcurrency < 1 {
		return fmt.Errorf("queue.max_concurrency must be at least 1, got %d", c.Queue.MaxConcurrency)
	}
	if c.Queue.MaxJobHistory < 1 {
		return fmt.Errorf("queue.max_job_history must be at least 1, got %d", c.Queue.MaxJobHistory)
	}

	if c.Feedback.RatingThreshold < 1 || c.Feedback.RatingThreshold > 5 {
		return fmt.Errorf("feedback.rating_threshold must be between 1 and 5, got %f", c.Feedback.RatingThreshold)
	}
	if c.Feedback.PerformanceThreshold <= 0 || c.Feedback.PerformanceThreshold > 1 {
		return fmt.Errorf("feedback.performance_threshold must be in (0,1], got %f", c.Feedback.PerformanceThreshold)
	}

	return nil
}

func validModel(model string) bool {
	for _, m := range optimization.ValidTargetModels {
		if string(m) == model {
			return true
		}
	}
	return false
}

// Timeout returns the optimizer backend timeout as a duration.
func (p PromptWizardConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// CacheTTL returns the cache entry lifetime as a duration.
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Window returns the rate-limiting window as a duration.
func (r RateLimitingConfig) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

// Addr returns the host:port address for the Redis connection.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
