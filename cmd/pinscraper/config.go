package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pinscraper/pkg/config"
	"pinscraper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage pinscraper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (PINSCRAPER_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default values",
	Long: `Create a configuration file holding every option at its default value.

The file is created in the current directory as '.pinscraper.yaml'
unless a different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const configHeader = `# pinscraper configuration
#
# Durations use Go syntax (3s, 5m). Environment variables prefixed with
# PINSCRAPER_ override these values, for example PINSCRAPER_DB_PATH.

`

func runConfigInit(cmd *cobra.Command, args []string) error {
	console := ui.NewConsole(os.Stdout, quiet)

	configPath := configFile
	if configPath == "" {
		configPath = "." + config.AppName + ".yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	if err := os.WriteFile(configPath, append([]byte(configHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	console.PrintSuccess("Configuration file created: " + configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	console := ui.NewConsole(os.Stdout, quiet)

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	console.PrintSuccess("Configuration is valid")
	console.PrintSummary("Configuration summary",
		ui.SummaryLine{Label: "database", Value: cfg.Database.Path},
		ui.SummaryLine{Label: "output directory", Value: cfg.Download.OutputDir},
		ui.SummaryLine{Label: "download workers", Value: cfg.Download.MaxScrapeThreads},
		ui.SummaryLine{Label: "settle interval", Value: cfg.Discovery.SettleInterval},
		ui.SummaryLine{Label: "log level", Value: cfg.Logging.Level},
	)
	return nil
}
