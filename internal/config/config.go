package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerURL      = "http://localhost:8000/api"
	defaultHTTPTimeout    = 15 * time.Second
	defaultHealthInterval = 30 * time.Second
)

// Config is the resolved client configuration.
type Config struct {
	// ServerURL is the base URL of the QA service API.
	ServerURL string `validate:"required,url"`
	// Home is the directory where qachat keeps local state and logs.
	Home string `validate:"required"`
	// StatePath is the key-value file holding the current session id.
	StatePath string `validate:"required"`
	// LogFile receives logs while the interactive chat owns the terminal.
	LogFile string

	// Debug enables verbose logging.
	Debug bool
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `validate:"oneof=trace debug info warn error"`

	HTTPTimeout    time.Duration `validate:"gt=0"`
	HealthInterval time.Duration `validate:"gt=0"`

	Presence       Presence
	QuickQuestions []string
}

// Presence tunes the assistant presence. Zero values fall back to the
// built-in defaults; a threshold must otherwise lie strictly between 0 and 1.
type Presence struct {
	GreetingDelay       time.Duration `yaml:"greeting_delay" validate:"gte=0"`
	GreetingDuration    time.Duration `yaml:"greeting_duration" validate:"gte=0"`
	EngagementMinDelay  time.Duration `yaml:"engagement_min_delay" validate:"gte=0"`
	EngagementMaxDelay  time.Duration `yaml:"engagement_max_delay" validate:"gte=0"`
	EngagementDuration  time.Duration `yaml:"engagement_duration" validate:"gte=0"`
	FarewellDuration    time.Duration `yaml:"farewell_duration" validate:"gte=0"`
	EngagementThreshold float64       `yaml:"engagement_threshold" validate:"omitempty,gt=0,lt=1"`

	GreetingKeywords []string `yaml:"greeting_keywords"`
	FarewellKeywords []string `yaml:"farewell_keywords"`
}

// fileConfig mirrors <home>/config.yaml.
type fileConfig struct {
	ServerURL      string   `yaml:"server_url"`
	LogLevel       string   `yaml:"log_level"`
	HTTPTimeout    string   `yaml:"http_timeout"`
	HealthInterval string   `yaml:"health_interval"`
	Presence       Presence `yaml:"presence"`
	QuickQuestions []string `yaml:"quick_questions"`
}

// DefaultQuickQuestions are offered by /quick when the config file names none.
var DefaultQuickQuestions = []string{
	"Какой уставный капитал ПАО «Транснефть»?",
	"Когда была основана компания?",
	"Какие основные виды деятельности компании?",
	"В каких регионах работает компания?",
}

var validate = validator.New()

// Load resolves configuration from, in increasing precedence: built-in
// defaults, <home>/config.yaml, a .env file in the working directory, and the
// process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	home := getenvFirst("QACHAT_HOME", "QACHAT_HOME_DIR")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, ".qachat")
	}
	return LoadFrom(home)
}

// LoadFrom resolves configuration with home as the state directory. The
// environment still overrides file values.
func LoadFrom(home string) (*Config, error) {
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create qachat home: %w", err)
	}

	cfg := &Config{
		ServerURL:      defaultServerURL,
		Home:           home,
		StatePath:      filepath.Join(home, "state.json"),
		LogFile:        filepath.Join(home, "qachat.log"),
		LogLevel:       "info",
		HTTPTimeout:    defaultHTTPTimeout,
		HealthInterval: defaultHealthInterval,
		QuickQuestions: append([]string(nil), DefaultQuickQuestions...),
	}

	if err := cfg.applyFile(filepath.Join(home, "config.yaml")); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Debug && cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	p := cfg.Presence
	if p.EngagementMaxDelay > 0 && p.EngagementMinDelay > p.EngagementMaxDelay {
		return nil, fmt.Errorf("invalid configuration: engagement_min_delay %v exceeds engagement_max_delay %v",
			p.EngagementMinDelay, p.EngagementMaxDelay)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if fc.ServerURL != "" {
		c.ServerURL = fc.ServerURL
	}
	if fc.LogLevel != "" {
		c.LogLevel = strings.ToLower(fc.LogLevel)
	}
	if fc.HTTPTimeout != "" {
		d, err := time.ParseDuration(fc.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("invalid http_timeout %q: %w", fc.HTTPTimeout, err)
		}
		c.HTTPTimeout = d
	}
	if fc.HealthInterval != "" {
		d, err := time.ParseDuration(fc.HealthInterval)
		if err != nil {
			return fmt.Errorf("invalid health_interval %q: %w", fc.HealthInterval, err)
		}
		c.HealthInterval = d
	}
	c.Presence = fc.Presence
	if len(fc.QuickQuestions) > 0 {
		c.QuickQuestions = fc.QuickQuestions
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("QACHAT_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	c.Debug = truthy(os.Getenv("DEBUG")) || truthy(os.Getenv("QACHAT_DEBUG"))
	if v := os.Getenv("QACHAT_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("QACHAT_HTTP_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QACHAT_HTTP_TIMEOUT %q: %w", v, err)
		}
		c.HTTPTimeout = d
	}
	if v := os.Getenv("QACHAT_HEALTH_INTERVAL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QACHAT_HEALTH_INTERVAL %q: %w", v, err)
		}
		c.HealthInterval = d
	}
	return nil
}

// parseDuration accepts Go durations ("30s") or a bare number of seconds.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func truthy(v string) bool {
	return v == "true" || v == "1"
}

func getenvFirst(primary, fallback string) string {
	if val := os.Getenv(primary); val != "" {
		return val
	}
	return os.Getenv(fallback)
}
