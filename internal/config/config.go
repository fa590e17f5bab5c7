// Package config provides configuration management for throttleq.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// ConfigDir is the directory name under the user config root.
const ConfigDir = "throttleq"

// Config holds every tunable of a batch run. Values come from the INI
// config file with command-line flags layered on top.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\throttleq\config
//   - Unix: ~/.config/throttleq/config
//
// INI format:
//
//	[throttleq]
//	url = https://api.openai.com/v1/chat/completions
//	api_key = <token-or-api-key>
//
//	[throttleq.limits]
//	requests_per_minute = 1500
//	tokens_per_minute = 67500
//	max_attempts = 5
//	cooldown_seconds = 15
//
//	[throttleq.estimator]
//	kind = openai
//	encoding = cl100k_base
type Config struct {
	// Endpoint settings
	URL    string `ini:"url"`
	APIKey string `ini:"api_key"`

	// Admission limits
	RequestsPerMinute float64 `ini:"requests_per_minute"`
	TokensPerMinute   float64 `ini:"tokens_per_minute"`
	MaxAttempts       int     `ini:"max_attempts"`
	Cooldown          time.Duration

	// Cost estimation
	Estimator string `ini:"kind"`
	Encoding  string `ini:"encoding"`

	// RateLimitSignature is the case-insensitive substring that marks an
	// API error response as a rate-limit rejection.
	RateLimitSignature string `ini:"rate_limit_signature"`
}

// Validation errors
var (
	ErrMissingURL          = errors.New("url is required")
	ErrInvalidRequestRate  = errors.New("requests_per_minute must be positive")
	ErrInvalidTokenRate    = errors.New("tokens_per_minute must be positive")
	ErrInvalidMaxAttempts  = errors.New("max_attempts must be at least 1")
	ErrInvalidCooldown     = errors.New("cooldown must not be negative")
	ErrUnknownEstimator    = errors.New(`estimator must be "openai" or "zero"`)
	ErrMissingEncoding     = errors.New("encoding is required for the openai estimator")
	ErrMissingRateLimitSig = errors.New("rate_limit_signature must not be empty")
)

// DefaultConfigPath returns the default path for the config file.
// - Windows: %USERPROFILE%\.config\throttleq\config
// - Unix: ~/.config/throttleq/config
func DefaultConfigPath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DefaultTokenPath returns the default path for the token file.
func DefaultTokenPath() string {
	dir, err := userConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "token")
}

func userConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", ConfigDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", ConfigDir), nil
}

// New creates a Config with default values. The defaults are a
// conservative half of common published API limits so a fresh install
// does not trip rate limiting out of the box.
func New() *Config {
	return &Config{
		URL:                "https://api.openai.com/v1/chat/completions",
		RequestsPerMinute:  1500,
		TokensPerMinute:    67500,
		MaxAttempts:        5,
		Cooldown:           15 * time.Second,
		Estimator:          "openai",
		Encoding:           "cl100k_base",
		RateLimitSignature: "rate limit",
	}
}

// Load loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil // Return defaults if we can't determine path
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // Return defaults if config doesn't exist
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	main := iniFile.Section("throttleq")
	cfg.URL = main.Key("url").MustString(cfg.URL)
	cfg.APIKey = main.Key("api_key").String()

	limits := iniFile.Section("throttleq.limits")
	cfg.RequestsPerMinute = limits.Key("requests_per_minute").MustFloat64(cfg.RequestsPerMinute)
	cfg.TokensPerMinute = limits.Key("tokens_per_minute").MustFloat64(cfg.TokensPerMinute)
	cfg.MaxAttempts = limits.Key("max_attempts").MustInt(cfg.MaxAttempts)
	cooldownSeconds := limits.Key("cooldown_seconds").MustFloat64(cfg.Cooldown.Seconds())
	cfg.Cooldown = time.Duration(cooldownSeconds * float64(time.Second))
	cfg.RateLimitSignature = limits.Key("rate_limit_signature").MustString(cfg.RateLimitSignature)

	estimator := iniFile.Section("throttleq.estimator")
	cfg.Estimator = estimator.Key("kind").MustString(cfg.Estimator)
	cfg.Encoding = estimator.Key("encoding").MustString(cfg.Encoding)

	return cfg, nil
}

// Save saves configuration to an INI file.
// Creates parent directories if they don't exist.
// The API key is stored in the file - ensure appropriate file permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	main, err := iniFile.NewSection("throttleq")
	if err != nil {
		return fmt.Errorf("failed to create throttleq section: %w", err)
	}
	main.Key("url").SetValue(cfg.URL)
	main.Key("api_key").SetValue(cfg.APIKey)

	limits, err := iniFile.NewSection("throttleq.limits")
	if err != nil {
		return fmt.Errorf("failed to create limits section: %w", err)
	}
	limits.Key("requests_per_minute").SetValue(fmt.Sprintf("%g", cfg.RequestsPerMinute))
	limits.Key("tokens_per_minute").SetValue(fmt.Sprintf("%g", cfg.TokensPerMinute))
	limits.Key("max_attempts").SetValue(fmt.Sprintf("%d", cfg.MaxAttempts))
	limits.Key("cooldown_seconds").SetValue(fmt.Sprintf("%g", cfg.Cooldown.Seconds()))
	limits.Key("rate_limit_signature").SetValue(cfg.RateLimitSignature)

	estimator, err := iniFile.NewSection("throttleq.estimator")
	if err != nil {
		return fmt.Errorf("failed to create estimator section: %w", err)
	}
	estimator.Key("kind").SetValue(cfg.Estimator)
	estimator.Key("encoding").SetValue(cfg.Encoding)

	// Save via temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Restrict permissions (API key is sensitive)
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid for a batch run.
// Returns nil if valid, or an error describing what's wrong.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.URL) == "" {
		return ErrMissingURL
	}
	if cfg.RequestsPerMinute <= 0 {
		return ErrInvalidRequestRate
	}
	if cfg.TokensPerMinute <= 0 {
		return ErrInvalidTokenRate
	}
	if cfg.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if cfg.Cooldown < 0 {
		return ErrInvalidCooldown
	}
	switch cfg.Estimator {
	case "openai":
		if strings.TrimSpace(cfg.Encoding) == "" {
			return ErrMissingEncoding
		}
	case "zero":
	default:
		return ErrUnknownEstimator
	}
	if strings.TrimSpace(cfg.RateLimitSignature) == "" {
		return ErrMissingRateLimitSig
	}
	return nil
}
