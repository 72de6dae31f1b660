package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppName is used for XDG directories, config file names and env prefixes
const AppName = "pinscraper"

// envPrefix is prepended to every environment variable the config reads
const envPrefix = "PINSCRAPER_"

// Config holds all configuration options for the scraper pipeline
type Config struct {
	// Source site settings
	Source SourceConfig `yaml:"source" json:"source"`

	// Browser automation settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Discovery loop tunables
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Checkpoint writer settings
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Persistent store settings
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SourceConfig describes the site being scraped
type SourceConfig struct {
	BaseURL         string `yaml:"base_url" json:"base_url"`
	BoardSearchPath string `yaml:"board_search_path" json:"board_search_path"`
}

// BrowserConfig holds headless browser settings
type BrowserConfig struct {
	Headless      bool          `yaml:"headless" json:"headless"`
	ExecPath      string        `yaml:"exec_path" json:"exec_path"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent"`
	WindowWidth   int           `yaml:"window_width" json:"window_width"`
	WindowHeight  int           `yaml:"window_height" json:"window_height"`
	ActionTimeout time.Duration `yaml:"action_timeout" json:"action_timeout"`
}

// DiscoveryConfig holds the scroll-and-sample loop tunables
type DiscoveryConfig struct {
	SettleInterval     time.Duration `yaml:"settle_interval" json:"settle_interval"`
	CyclesPerIteration int           `yaml:"cycles_per_iteration" json:"cycles_per_iteration"`
	ScrollStallBound   int           `yaml:"scroll_stall_bound" json:"scroll_stall_bound"`
	RecordStallBound   int           `yaml:"record_stall_bound" json:"record_stall_bound"`
	MaxIterations      int           `yaml:"max_iterations" json:"max_iterations"`
	TransientRetries   int           `yaml:"transient_retries" json:"transient_retries"`
	TransientBackoff   time.Duration `yaml:"transient_backoff" json:"transient_backoff"`
	MaxTransientDelay  time.Duration `yaml:"max_transient_delay" json:"max_transient_delay"`
	// TransientSchedule is "exponential" or "linear"
	TransientSchedule string        `yaml:"transient_schedule" json:"transient_schedule"`
	FatalCooldown     time.Duration `yaml:"fatal_cooldown" json:"fatal_cooldown"`
	MaxFatalRestarts  int           `yaml:"max_fatal_restarts" json:"max_fatal_restarts"`
	ProbeAddress      string        `yaml:"probe_address" json:"probe_address"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
	ListRole          string        `yaml:"list_role" json:"list_role"`
	ZoomPercent       int           `yaml:"zoom_percent" json:"zoom_percent"`
}

// CheckpointConfig holds the commit retry settings
type CheckpointConfig struct {
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// DatabaseConfig holds the store location
type DatabaseConfig struct {
	Path         string        `yaml:"path" json:"path"`
	BusyTimeout  time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns" json:"max_open_conns"`
	DisableWAL   bool          `yaml:"disable_wal" json:"disable_wal"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	OutputDir         string        `yaml:"output_dir" json:"output_dir"`
	MaxScrapeThreads  int           `yaml:"max_scrape_threads" json:"max_scrape_threads"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts     int           `yaml:"retry_attempts" json:"retry_attempts"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	SaveMetadata      bool          `yaml:"save_metadata" json:"save_metadata"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
	JSON  bool   `yaml:"json" json:"json"`
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Source: SourceConfig{
			BaseURL:         "https://www.pinterest.com",
			BoardSearchPath: "/search/boards/",
		},
		Browser: BrowserConfig{
			Headless:      true,
			UserAgent:     defaultUserAgent,
			WindowWidth:   1280,
			WindowHeight:  720,
			ActionTimeout: 30 * time.Second,
		},
		Discovery: DiscoveryConfig{
			SettleInterval:     3 * time.Second,
			CyclesPerIteration: 2,
			ScrollStallBound:   10,
			RecordStallBound:   3,
			MaxIterations:      0,
			TransientRetries:   5,
			TransientBackoff:   2 * time.Second,
			MaxTransientDelay:  time.Minute,
			TransientSchedule:  "exponential",
			FatalCooldown:      5 * time.Minute,
			MaxFatalRestarts:   3,
			ProbeAddress:       "www.pinterest.com:80",
			ProbeTimeout:       10 * time.Second,
			ListRole:           "list",
			ZoomPercent:        50,
		},
		Checkpoint: CheckpointConfig{
			RetryDelay: time.Second,
		},
		Database: DatabaseConfig{
			Path:         filepath.Join(dataDir, AppName+".db"),
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 4,
		},
		Download: DownloadConfig{
			OutputDir:         filepath.Join(dataDir, "images"),
			MaxScrapeThreads:  2,
			Timeout:           30 * time.Second,
			RetryAttempts:     3,
			RequestsPerSecond: 0, // 0 means no limit
			UserAgent:         defaultUserAgent,
			SaveMetadata:      true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DataDir returns the XDG data directory for the application
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv(envPrefix + "DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(envPrefix + "OUTPUT_DIR"); v != "" {
		c.Download.OutputDir = v
	}
	if v := os.Getenv(envPrefix + "BASE_URL"); v != "" {
		c.Source.BaseURL = v
	}
	if v := os.Getenv(envPrefix + "CHROME_PATH"); v != "" {
		c.Browser.ExecPath = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "PROBE_ADDRESS"); v != "" {
		c.Discovery.ProbeAddress = v
	}
	if v := os.Getenv(envPrefix + "TRANSIENT_SCHEDULE"); v != "" {
		c.Discovery.TransientSchedule = v
	}

	if v := os.Getenv(envPrefix + "MAX_SCRAPE_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_SCRAPE_THREADS: %w", envPrefix, err))
		} else if n > 0 {
			c.Download.MaxScrapeThreads = n
		}
	}
	if v := os.Getenv(envPrefix + "HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sHEADLESS: %w", envPrefix, err))
		} else {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv(envPrefix + "SETTLE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSETTLE_INTERVAL: %w", envPrefix, err))
		} else {
			c.Discovery.SettleInterval = d
		}
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
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
	locations := []string{
		"." + AppName + ".yaml",
		"." + AppName + ".yml",
		filepath.Join(xdg.ConfigHome, AppName, "config.yaml"),
		filepath.Join(xdg.ConfigHome, AppName, "config.yml"),
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

	if c.Source.BaseURL == "" {
		errs = append(errs, errors.New("source base URL is required"))
	}

	d := c.Discovery
	if d.CyclesPerIteration <= 0 {
		errs = append(errs, errors.New("cycles per iteration must be positive"))
	}
	if d.ScrollStallBound < 0 || d.RecordStallBound < 0 {
		errs = append(errs, errors.New("stall bounds cannot be negative"))
	}
	if d.MaxIterations < 0 {
		errs = append(errs, errors.New("max iterations cannot be negative"))
	}
	if d.TransientRetries < 0 {
		errs = append(errs, errors.New("transient retries cannot be negative"))
	}
	if d.MaxFatalRestarts < 0 {
		errs = append(errs, errors.New("max fatal restarts cannot be negative"))
	}
	if d.SettleInterval < 0 || d.FatalCooldown < 0 || d.TransientBackoff < 0 {
		errs = append(errs, errors.New("discovery durations cannot be negative"))
	}
	if d.TransientSchedule != "exponential" && d.TransientSchedule != "linear" {
		errs = append(errs, fmt.Errorf("transient schedule must be exponential or linear, got %q", d.TransientSchedule))
	}
	if d.ListRole == "" {
		errs = append(errs, errors.New("list role is required"))
	}
	if d.ZoomPercent <= 0 || d.ZoomPercent > 500 {
		errs = append(errs, errors.New("zoom percent must be between 1 and 500"))
	}

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("max open connections must be positive"))
	}

	if c.Download.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Download.MaxScrapeThreads <= 0 {
		errs = append(errs, errors.New("max scrape threads must be positive"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if path, ok := flags["db"].(string); ok && path != "" {
		c.Database.Path = path
	}
	if dir, ok := flags["output"].(string); ok && dir != "" {
		c.Download.OutputDir = dir
	}
	if threads, ok := flags["max-scrape-threads"].(int); ok && threads > 0 {
		c.Download.MaxScrapeThreads = threads
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are not an error
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(xdg.ConfigHome, AppName, AppName+".env"))

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
