package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for cafenote
type Config struct {
	// Platform endpoints and session cookie names
	Naver NaverConfig `yaml:"naver" json:"naver"`

	// Article list crawling
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Note dispatch pacing and quota
	Send SendConfig `yaml:"send" json:"send"`

	// Outgoing request rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry policy for idempotent requests
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Ledger database and crawl result snapshots
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Prometheus exposition
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Scheduled crawl runs
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
}

// NaverConfig holds platform-specific configuration
type NaverConfig struct {
	APIBaseURL     string        `yaml:"api_base_url" json:"api_base_url"`
	CafeBaseURL    string        `yaml:"cafe_base_url" json:"cafe_base_url"`
	NoteBaseURL    string        `yaml:"note_base_url" json:"note_base_url"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	CookieDomain   string        `yaml:"cookie_domain" json:"cookie_domain"`
	AuthCookie     string        `yaml:"auth_cookie" json:"auth_cookie"`
	Account        string        `yaml:"account" json:"account"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// CrawlConfig holds paging behaviour for the article list API
type CrawlConfig struct {
	PageSize      int           `yaml:"page_size" json:"page_size"`
	MaxPages      int           `yaml:"max_pages" json:"max_pages"`
	PageDelay     time.Duration `yaml:"page_delay" json:"page_delay"`
	DefaultPeriod string        `yaml:"default_period" json:"default_period"`
}

// SendConfig holds dispatch pacing and the daily quota
type SendConfig struct {
	DailyLimit int           `yaml:"daily_limit" json:"daily_limit"`
	MinDelay   time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay   time.Duration `yaml:"max_delay" json:"max_delay"`
	Preflight  bool          `yaml:"preflight" json:"preflight"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig holds retry configuration for GET requests
type RetryConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// StorageConfig holds where the ledger and crawl results live
type StorageConfig struct {
	Database   string `yaml:"database" json:"database"`
	ResultsDir string `yaml:"results_dir" json:"results_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// ScheduleConfig holds the cron expression for unattended crawls
type ScheduleConfig struct {
	Cron   string `yaml:"cron" json:"cron"`
	Period string `yaml:"period" json:"period"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Naver: NaverConfig{
			APIBaseURL:     "https://apis.naver.com",
			CafeBaseURL:    "https://cafe.naver.com",
			NoteBaseURL:    "https://note.naver.com",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			CookieDomain:   ".naver.com",
			AuthCookie:     "NID_AUT",
			Account:        "default",
			RequestTimeout: 30 * time.Second,
		},
		Crawl: CrawlConfig{
			PageSize:      15,
			MaxPages:      100,
			PageDelay:     500 * time.Millisecond,
			DefaultPeriod: "1day",
		},
		Send: SendConfig{
			DailyLimit: 50,
			MinDelay:   time.Second,
			MaxDelay:   2 * time.Second,
			Preflight:  false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         5,
		},
		Retry: RetryConfig{
			Enabled:           true,
			MaxAttempts:       3,
			BaseDelay:         time.Second,
			MaxDelay:          30 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Storage: StorageConfig{
			Database:   filepath.Join(dataDirectory(), "cafenote.db"),
			ResultsDir: filepath.Join(dataDirectory(), "results"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9464",
		},
		Schedule: ScheduleConfig{
			Period: "1day",
		},
	}
}

// dataDirectory follows XDG_DATA_HOME, falling back to ~/.local/share
func dataDirectory() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "cafenote")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cafenote"
	}
	return filepath.Join(home, ".local", "share", "cafenote")
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("CAFENOTE_API_BASE_URL", &c.Naver.APIBaseURL)
	setString("CAFENOTE_CAFE_BASE_URL", &c.Naver.CafeBaseURL)
	setString("CAFENOTE_NOTE_BASE_URL", &c.Naver.NoteBaseURL)
	setString("CAFENOTE_USER_AGENT", &c.Naver.UserAgent)
	setString("CAFENOTE_ACCOUNT", &c.Naver.Account)

	setInt("CAFENOTE_MAX_PAGES", &c.Crawl.MaxPages)
	setDuration("CAFENOTE_PAGE_DELAY", &c.Crawl.PageDelay)
	setString("CAFENOTE_PERIOD", &c.Crawl.DefaultPeriod)

	setInt("CAFENOTE_DAILY_LIMIT", &c.Send.DailyLimit)
	setDuration("CAFENOTE_SEND_MIN_DELAY", &c.Send.MinDelay)
	setDuration("CAFENOTE_SEND_MAX_DELAY", &c.Send.MaxDelay)

	setInt("CAFENOTE_REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)

	setString("CAFENOTE_DATABASE", &c.Storage.Database)
	setString("CAFENOTE_RESULTS_DIR", &c.Storage.ResultsDir)

	setString("CAFENOTE_LOG_LEVEL", &c.Logging.Level)
	setString("CAFENOTE_LOG_FILE", &c.Logging.File)
	setString("CAFENOTE_LOG_FORMAT", &c.Logging.Format)

	if v := os.Getenv("CAFENOTE_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = strings.ToLower(v) == "true"
	}
	setString("CAFENOTE_METRICS_ADDRESS", &c.Metrics.Address)
	setString("CAFENOTE_SCHEDULE", &c.Schedule.Cron)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".cafenote.yaml",
		".cafenote.yml",
		filepath.Join(home, ".config", "cafenote", "config.yaml"),
		filepath.Join(home, ".config", "cafenote", "config.yml"),
		filepath.Join(home, ".cafenote.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Naver.APIBaseURL == "" || c.Naver.NoteBaseURL == "" {
		errs = append(errs, errors.New("api and note base URLs are required"))
	}
	if c.Naver.AuthCookie == "" {
		errs = append(errs, errors.New("auth cookie name is required"))
	}
	if c.Naver.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Crawl.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Crawl.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Crawl.PageDelay < 0 {
		errs = append(errs, errors.New("page delay cannot be negative"))
	}

	if c.Send.DailyLimit <= 0 {
		errs = append(errs, errors.New("daily limit must be positive"))
	}
	if c.Send.MinDelay < 0 || c.Send.MaxDelay < c.Send.MinDelay {
		errs = append(errs, errors.New("send delays must satisfy 0 <= min_delay <= max_delay"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Retry.Enabled {
		if c.Retry.MaxAttempts <= 0 {
			errs = append(errs, errors.New("retry max attempts must be positive"))
		}
		if c.Retry.BackoffMultiplier < 1 {
			errs = append(errs, errors.New("retry backoff multiplier must be at least 1"))
		}
	}

	if c.Storage.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json", "":
	default:
		errs = append(errs, errors.New("log format must be console or json"))
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics address is required when metrics are enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if account, ok := flags["account"].(string); ok && account != "" {
		c.Naver.Account = account
	}
	if db, ok := flags["database"].(string); ok && db != "" {
		c.Storage.Database = db
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Crawl.MaxPages = maxPages
	}
	if limit, ok := flags["daily-limit"].(int); ok && limit > 0 {
		c.Send.DailyLimit = limit
	}
	if preflight, ok := flags["preflight"].(bool); ok && preflight {
		c.Send.Preflight = true
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = addr
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are not an error
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".cafenote.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
