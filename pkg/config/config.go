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

// Config holds all configuration options for the archiver
type Config struct {
	// Archive root and file names
	Output OutputConfig `yaml:"output" json:"output"`

	// Browser process and page bounds
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Link discovery pacing and bounds
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Article capture pacing and retries
	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// Direct image download settings
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Session cookie sources
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// OutputConfig holds archive layout configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	LinksFile     string `yaml:"links_file" json:"links_file"`
	FailedFile    string `yaml:"failed_file" json:"failed_file"`
}

// BrowserConfig holds browser launch and page wait configuration
type BrowserConfig struct {
	ExecPath          string        `yaml:"exec_path" json:"exec_path"`
	DiscoveryHeadless bool          `yaml:"discovery_headless" json:"discovery_headless"`
	CaptureHeadless   bool          `yaml:"capture_headless" json:"capture_headless"`
	CaptureMobile     bool          `yaml:"capture_mobile" json:"capture_mobile"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	WindowWidth       int           `yaml:"window_width" json:"window_width"`
	WindowHeight      int           `yaml:"window_height" json:"window_height"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	SelectorTimeout   time.Duration `yaml:"selector_timeout" json:"selector_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay" json:"settle_delay"`
}

// DiscoveryConfig holds link discovery configuration
type DiscoveryConfig struct {
	LoginTimeout         time.Duration `yaml:"login_timeout" json:"login_timeout"`
	LoginPollInterval    time.Duration `yaml:"login_poll_interval" json:"login_poll_interval"`
	VerificationTimeout  time.Duration `yaml:"verification_timeout" json:"verification_timeout"`
	VerificationInterval time.Duration `yaml:"verification_interval" json:"verification_interval"`
	PageSize             int           `yaml:"page_size" json:"page_size"`
	MaxPages             int           `yaml:"max_pages" json:"max_pages"`
	MaxEmptyRounds       int           `yaml:"max_empty_rounds" json:"max_empty_rounds"`
	PageDelayMin         time.Duration `yaml:"page_delay_min" json:"page_delay_min"`
	PageDelayMax         time.Duration `yaml:"page_delay_max" json:"page_delay_max"`
	RateLimitStep        time.Duration `yaml:"rate_limit_step" json:"rate_limit_step"`
	RateLimitMaxHits     int           `yaml:"rate_limit_max_hits" json:"rate_limit_max_hits"`
	ProfileSettle        time.Duration `yaml:"profile_settle" json:"profile_settle"`
	ScrollDelay          time.Duration `yaml:"scroll_delay" json:"scroll_delay"`
	LoadMoreDelay        time.Duration `yaml:"load_more_delay" json:"load_more_delay"`
	RoundDelay           time.Duration `yaml:"round_delay" json:"round_delay"`
	// Resume continues platform pagination from the last saved checkpoint
	Resume bool `yaml:"resume" json:"resume"`
}

// CaptureConfig holds article capture configuration
type CaptureConfig struct {
	MinDelay       time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay       time.Duration `yaml:"max_delay" json:"max_delay"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" json:"retry_max_delay"`
	// RetryJitter randomizes each retry delay by up to this fraction
	RetryJitter    float64       `yaml:"retry_jitter" json:"retry_jitter"`
	Force          bool          `yaml:"force" json:"force"`
}

// HTTPConfig holds configuration for the fallback image downloader
type HTTPConfig struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	Referer     string        `yaml:"referer" json:"referer"`
	Attempts    int           `yaml:"attempts" json:"attempts"`
	BackoffBase time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max" json:"backoff_max"`
}

// CredentialsConfig holds session cookie sources
type CredentialsConfig struct {
	Cookie     string `yaml:"cookie" json:"cookie"`
	CookieFile string `yaml:"cookie_file" json:"cookie_file"`
	Profile    string `yaml:"profile" json:"profile"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			BaseDirectory: "./out",
			LinksFile:     "links.jsonl",
			FailedFile:    "failed.jsonl",
		},
		Browser: BrowserConfig{
			DiscoveryHeadless: false,
			CaptureHeadless:   true,
			CaptureMobile:     true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			WindowWidth:       1280,
			WindowHeight:      900,
			NavigationTimeout: 60 * time.Second,
			SelectorTimeout:   15 * time.Second,
			SettleDelay:       1 * time.Second,
		},
		Discovery: DiscoveryConfig{
			LoginTimeout:         180 * time.Second,
			LoginPollInterval:    1 * time.Second,
			VerificationTimeout:  300 * time.Second,
			VerificationInterval: 3 * time.Second,
			PageSize:             5,
			MaxPages:             999,
			MaxEmptyRounds:       3,
			PageDelayMin:         8 * time.Second,
			PageDelayMax:         15 * time.Second,
			RateLimitStep:        60 * time.Second,
			RateLimitMaxHits:     3,
			ProfileSettle:        3 * time.Second,
			ScrollDelay:          1500 * time.Millisecond,
			LoadMoreDelay:        2 * time.Second,
			RoundDelay:           1 * time.Second,
			Resume:               true,
		},
		Capture: CaptureConfig{
			MinDelay:       30 * time.Second,
			MaxDelay:       120 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: 2 * time.Second,
			RetryMaxDelay:  30 * time.Second,
			RetryJitter:    0.2,
			Force:          false,
		},
		HTTP: HTTPConfig{
			Timeout:     30 * time.Second,
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			Referer:     "https://mp.weixin.qq.com/",
			Attempts:    3,
			BackoffBase: 1 * time.Second,
			BackoffMax:  10 * time.Second,
		},
		Credentials: CredentialsConfig{
			Profile: "default",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LinksPath returns the ledger location under the archive root
func (c *Config) LinksPath() string {
	return c.resolve(c.Output.LinksFile)
}

// FailedPath returns the failure log location under the archive root
func (c *Config) FailedPath() string {
	return c.resolve(c.Output.FailedFile)
}

// CheckpointDir returns where discovery checkpoints are kept
func (c *Config) CheckpointDir() string {
	return filepath.Join(c.Output.BaseDirectory, ".checkpoints")
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.BaseDirectory, name)
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if outputDir := os.Getenv("WXARCHIVER_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}

	// Credentials
	if cookie := os.Getenv("WXARCHIVER_COOKIE"); cookie != "" {
		c.Credentials.Cookie = cookie
	}
	if cookieFile := os.Getenv("WXARCHIVER_COOKIE_FILE"); cookieFile != "" {
		c.Credentials.CookieFile = cookieFile
	}
	if profile := os.Getenv("WXARCHIVER_PROFILE"); profile != "" {
		c.Credentials.Profile = profile
	}

	// Browser
	if execPath := os.Getenv("WXARCHIVER_CHROME_PATH"); execPath != "" {
		c.Browser.ExecPath = execPath
	}
	if headless := os.Getenv("WXARCHIVER_HEADLESS"); headless != "" {
		v := strings.ToLower(headless) == "true"
		c.Browser.DiscoveryHeadless = v
		c.Browser.CaptureHeadless = v
	}

	// Capture pacing
	if minDelay := os.Getenv("WXARCHIVER_MIN_DELAY"); minDelay != "" {
		d, err := time.ParseDuration(minDelay)
		if err != nil {
			errs = append(errs, fmt.Errorf("WXARCHIVER_MIN_DELAY: %w", err))
		} else {
			c.Capture.MinDelay = d
		}
	}
	if maxDelay := os.Getenv("WXARCHIVER_MAX_DELAY"); maxDelay != "" {
		d, err := time.ParseDuration(maxDelay)
		if err != nil {
			errs = append(errs, fmt.Errorf("WXARCHIVER_MAX_DELAY: %w", err))
		} else {
			c.Capture.MaxDelay = d
		}
	}
	if retries := os.Getenv("WXARCHIVER_MAX_RETRIES"); retries != "" {
		val, err := strconv.Atoi(retries)
		if err != nil {
			errs = append(errs, fmt.Errorf("WXARCHIVER_MAX_RETRIES: %w", err))
		} else if val > 0 {
			c.Capture.MaxRetries = val
		}
	}

	// Logging
	if logLevel := os.Getenv("WXARCHIVER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("WXARCHIVER_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

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
		".wxarchiver.yaml",
		".wxarchiver.yml",
		filepath.Join(home, ".config", "wxarchiver", "config.yaml"),
		filepath.Join(home, ".config", "wxarchiver", "config.yml"),
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

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.LinksFile == "" {
		errs = append(errs, errors.New("links file name is required"))
	}
	if c.Output.FailedFile == "" {
		errs = append(errs, errors.New("failed file name is required"))
	}

	// Every wait must be bounded
	bounds := map[string]time.Duration{
		"navigation timeout":    c.Browser.NavigationTimeout,
		"selector timeout":      c.Browser.SelectorTimeout,
		"login timeout":         c.Discovery.LoginTimeout,
		"login poll interval":   c.Discovery.LoginPollInterval,
		"verification timeout":  c.Discovery.VerificationTimeout,
		"verification interval": c.Discovery.VerificationInterval,
		"http timeout":          c.HTTP.Timeout,
	}
	for name, d := range bounds {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.Discovery.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Discovery.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Discovery.MaxEmptyRounds <= 0 {
		errs = append(errs, errors.New("max empty rounds must be positive"))
	}
	if c.Discovery.RateLimitMaxHits <= 0 {
		errs = append(errs, errors.New("rate limit max hits must be positive"))
	}
	if c.Discovery.PageDelayMin < 0 || c.Discovery.PageDelayMax < c.Discovery.PageDelayMin {
		errs = append(errs, errors.New("discovery page delay range is invalid"))
	}

	if c.Capture.MinDelay < 0 || c.Capture.MaxDelay < c.Capture.MinDelay {
		errs = append(errs, errors.New("capture delay range is invalid (min must not exceed max)"))
	}
	if c.Capture.MaxRetries <= 0 {
		errs = append(errs, errors.New("max retries must be positive"))
	}
	if c.Capture.RetryJitter < 0 || c.Capture.RetryJitter > 1 {
		errs = append(errs, errors.New("retry jitter must be between 0 and 1"))
	}
	if c.HTTP.Attempts <= 0 {
		errs = append(errs, errors.New("download attempts must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
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

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["out"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if links, ok := flags["links"].(string); ok && links != "" {
		c.Output.LinksFile = links
	}
	if execPath, ok := flags["chrome-path"].(string); ok && execPath != "" {
		c.Browser.ExecPath = execPath
	}
	if cookie, ok := flags["cookie"].(string); ok && cookie != "" {
		c.Credentials.Cookie = cookie
	}
	if profile, ok := flags["profile"].(string); ok && profile != "" {
		c.Credentials.Profile = profile
	}
	if headless, ok := flags["discovery-headless"].(bool); ok {
		c.Browser.DiscoveryHeadless = headless
	}
	if headless, ok := flags["capture-headless"].(bool); ok {
		c.Browser.CaptureHeadless = headless
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Discovery.MaxPages = maxPages
	}
	if minDelay, ok := flags["min-delay"].(time.Duration); ok {
		c.Capture.MinDelay = minDelay
	}
	if maxDelay, ok := flags["max-delay"].(time.Duration); ok {
		c.Capture.MaxDelay = maxDelay
	}
	if retries, ok := flags["max-retries"].(int); ok && retries > 0 {
		c.Capture.MaxRetries = retries
	}
	if force, ok := flags["force"].(bool); ok {
		c.Capture.Force = force
	}
	if restart, ok := flags["restart"].(bool); ok && restart {
		c.Discovery.Resume = false
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".wxarchiver.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
