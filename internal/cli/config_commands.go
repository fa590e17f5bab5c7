// Package cli provides configuration management commands.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/throttleq/throttleq/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage throttleq configuration",
		Long: `Configuration management commands for throttleq.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for throttleq.

The configuration will be saved to ~/.config/throttleq/config

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Printf("Configuration already exists at: %s\n", configPath)
					fmt.Println("Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Println("throttleq Configuration Setup")
			fmt.Println("=============================")
			fmt.Println()

			reader := bufio.NewReader(os.Stdin)
			cfg := config.New()

			// API Key (required)
			for cfg.APIKey == "" {
				fmt.Print("API Key (required): ")
				input, _ := reader.ReadString('\n')
				cfg.APIKey = strings.TrimSpace(input)
				if cfg.APIKey == "" {
					fmt.Println("  Error: API key is required")
				}
			}

			fmt.Printf("Endpoint URL [%s]: ", cfg.URL)
			urlInput, _ := reader.ReadString('\n')
			if urlInput = strings.TrimSpace(urlInput); urlInput != "" {
				cfg.URL = urlInput
			}

			fmt.Println()
			fmt.Println("Rate Limits (press Enter for defaults)")
			fmt.Println("--------------------------------------")

			fmt.Printf("Requests per minute [%g]: ", cfg.RequestsPerMinute)
			rpmInput, _ := reader.ReadString('\n')
			if rpmInput = strings.TrimSpace(rpmInput); rpmInput != "" {
				if v, err := strconv.ParseFloat(rpmInput, 64); err == nil && v > 0 {
					cfg.RequestsPerMinute = v
				}
			}

			fmt.Printf("Tokens per minute [%g]: ", cfg.TokensPerMinute)
			tpmInput, _ := reader.ReadString('\n')
			if tpmInput = strings.TrimSpace(tpmInput); tpmInput != "" {
				if v, err := strconv.ParseFloat(tpmInput, 64); err == nil && v > 0 {
					cfg.TokensPerMinute = v
				}
			}

			fmt.Printf("Max attempts per request [%d]: ", cfg.MaxAttempts)
			attemptsInput, _ := reader.ReadString('\n')
			if attemptsInput = strings.TrimSpace(attemptsInput); attemptsInput != "" {
				if v, err := strconv.Atoi(attemptsInput); err == nil && v > 0 {
					cfg.MaxAttempts = v
				}
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg, configPath); err != nil {
				return err
			}

			fmt.Println()
			fmt.Printf("Configuration saved to: %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			fmt.Println("Current Configuration")
			fmt.Println("=====================")
			fmt.Printf("URL:                  %s\n", cfg.URL)
			fmt.Printf("API Key:              %s\n", maskAPIKey(cfg.APIKey))
			fmt.Printf("Requests per minute:  %g\n", cfg.RequestsPerMinute)
			fmt.Printf("Tokens per minute:    %g\n", cfg.TokensPerMinute)
			fmt.Printf("Max attempts:         %d\n", cfg.MaxAttempts)
			fmt.Printf("Cooldown:             %s\n", cfg.Cooldown)
			fmt.Printf("Estimator:            %s\n", cfg.Estimator)
			fmt.Printf("Encoding:             %s\n", cfg.Encoding)
			fmt.Printf("Rate limit signature: %q\n", cfg.RateLimitSignature)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				fmt.Println(cfgFile)
				return nil
			}
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

// maskAPIKey hides all but the last four characters of a key.
func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
