package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ripeipsearch/ripedb"
)

const (
	DefaultAPIURL = ripedb.DefaultBaseURL
	// DefaultDelay is the spacing between requests, in seconds.
	DefaultDelay   = 0.334
	DefaultTimeout = ripedb.DefaultTimeout
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIURL  = "RIPE_SEARCH_API_URL"
	EnvDelay   = "RIPE_SEARCH_DELAY"
	EnvTimeout = "RIPE_SEARCH_TIMEOUT"
	EnvLogFile = "RIPE_SEARCH_LOG_FILE"
)

// Config holds the settings of a search run.
type Config struct {
	// APIURL is the root of the RIPE web UI REST API.
	APIURL string `yaml:"api_url"`
	// Delay is the minimum time between two requests, in seconds.
	Delay float64 `yaml:"delay"`
	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout"`
	// UserAgent and AcceptLanguage override the browser-like request headers.
	UserAgent      string `yaml:"user_agent"`
	AcceptLanguage string `yaml:"accept_language"`
	// LogFile, when set, receives a copy of the log output.
	LogFile string `yaml:"log_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		APIURL:  DefaultAPIURL,
		Delay:   DefaultDelay,
		Timeout: DefaultTimeout,
	}
}

// LoadConfig reads and unmarshals the configuration from the specified YAML file path.
// Keys missing from the file keep their default values; keys present are
// taken as written and checked by Validate.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file %s: %w", filePath, err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none are
// given) without overriding variables already set. It reports whether a file
// was loaded.
func LoadDotEnv(filenames ...string) bool {
	return godotenv.Load(filenames...) == nil
}

// ApplyEnv overrides cfg with the RIPE_SEARCH_* environment variables.
func (cfg *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvAPIURL); ok && v != "" {
		cfg.APIURL = v
	}
	if v, ok := os.LookupEnv(EnvDelay); ok && v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDelay, err)
		}
		cfg.Delay = d
	}
	if v, ok := os.LookupEnv(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}
	if v, ok := os.LookupEnv(EnvLogFile); ok && v != "" {
		cfg.LogFile = v
	}
	return nil
}

// Validate checks the values a search cannot run with.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must not be negative, got %g", cfg.Delay))
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout))
	}
	if u, err := url.Parse(cfg.APIURL); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("api_url must be an absolute URL, got %q", cfg.APIURL))
	}
	return errors.Join(errs...)
}

// RequestDelay returns Delay as a duration.
func (cfg *Config) RequestDelay() time.Duration {
	return time.Duration(cfg.Delay * float64(time.Second))
}
