package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveAPIKeySource returns an API key and its source by checking
// multiple sources in priority order, so every command resolves
// credentials the same way.
//
// Priority (highest to lowest):
//  1. Provided apiKey parameter (if non-empty), e.g. from --api-key flag
//  2. Explicit token file (from --token-file flag)
//  3. Config INI file (api_key under [throttleq])
//  4. Default token file (~/.config/throttleq/token)
//  5. THROTTLEQ_API_KEY environment variable
//
// The source is one of "flag", "token-file", "config",
// "default-token-file", "environment", or "" when no key was found.
func ResolveAPIKeySource(apiKey, tokenFile, configPath string) (string, string) {
	if apiKey != "" {
		return apiKey, "flag"
	}

	if tokenFile != "" {
		if key, err := ReadTokenFile(tokenFile); err == nil && key != "" {
			return key, "token-file"
		}
	}

	if cfg, err := Load(configPath); err == nil && cfg.APIKey != "" {
		return cfg.APIKey, "config"
	}

	if tokenPath := DefaultTokenPath(); tokenPath != "" {
		if key, err := ReadTokenFile(tokenPath); err == nil && key != "" {
			return key, "default-token-file"
		}
	}

	if envKey := os.Getenv("THROTTLEQ_API_KEY"); envKey != "" {
		return envKey, "environment"
	}

	return "", ""
}

// ReadTokenFile reads an API key from a token file, trimming whitespace.
func ReadTokenFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat token file: %w", err)
	}

	// Token files should be readable only by owner (0600 or stricter)
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		fmt.Fprintf(os.Stderr, "Warning: Token file %s has insecure permissions %04o. Consider using 'chmod 600 %s'\n", path, mode, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}
