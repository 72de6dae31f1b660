package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pinscraper/pkg/config"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/pipeline"
	"pinscraper/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool

	// Run flags
	searchTerm       string
	stagesFlag       string
	maxScrapeThreads int
	dbPath           string
	outputDir        string
	headless         bool
)

// rootCmd runs the pipeline
var rootCmd = &cobra.Command{
	Use:   "pinscraper",
	Short: "Discover Pinterest boards for a search term and download their pins",
	Long: `pinscraper is a four-stage batch pipeline:

  1. board search     scroll the board search results for --search-term
  2. board expansion  scroll every discovered board and record its pins
  3. deduplication    collapse the pins of all boards into a unique set
  4. download         fetch the media of every unique pin

Every stage reads its input from and writes its output to a local SQLite
database, so stages can be run separately and a run can be repeated
without duplicating data or re-downloading files.`,
	Example: `  # Run all four stages
  pinscraper --search-term mountains

  # Only expand, deduplicate and download what an earlier run found
  pinscraper --stages 2,3,4 --max-scrape-threads 8

  # Keep the browser visible while debugging
  pinscraper --search-term "snowy peaks" --stages 1 --headless=false --log-level debug`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPipeline,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, ui.Red("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.pinscraper.yaml or $XDG_CONFIG_HOME/pinscraper/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "print stage summaries and errors only")

	// Run flags
	rootCmd.Flags().StringVarP(&searchTerm, "search-term", "s", "", "search term for board discovery (required with stage 1)")
	rootCmd.Flags().StringVar(&stagesFlag, "stages", "1,2,3,4", "comma separated stages to run")
	rootCmd.Flags().IntVarP(&maxScrapeThreads, "max-scrape-threads", "t", 2, "number of concurrent download workers")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloaded media")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "run the browser without a window")

	rootCmd.SetVersionTemplate(`pinscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// commandLineFlags collects the flags the user actually set
func commandLineFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if dbPath != "" {
		flags["db"] = dbPath
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if cmd.Flags().Changed("max-scrape-threads") {
		flags["max-scrape-threads"] = maxScrapeThreads
	}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = headless
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

func runPipeline(cmd *cobra.Command, args []string) error {
	stages, err := pipeline.ParseStages(stagesFlag)
	if err != nil {
		return err
	}
	if err := pipeline.ValidateSelection(stages, searchTerm); err != nil {
		return err
	}

	cfg, err := config.Load(configFile, commandLineFlags(cmd))
	if err != nil {
		return err
	}

	params := pipeline.Params{
		Stages:           stages,
		SearchTerm:       searchTerm,
		MaxScrapeThreads: cfg.Download.MaxScrapeThreads,
	}
	if err := pipeline.ValidateParams(params); err != nil {
		return err
	}

	if quiet && logLevel == "" {
		cfg.Logging.Level = "error"
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	console := ui.NewConsole(os.Stdout, quiet)
	console.PrintLogo()
	if params.SearchTerm != "" {
		console.PrintInfo("Search term", params.SearchTerm)
	}
	console.PrintInfo("Stages", stagesFlag)
	console.PrintInfo("Database", cfg.Database.Path)
	console.PrintInfo("Output", cfg.Download.OutputDir)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o, err := pipeline.Build(cfg, console, log)
	if err != nil {
		return err
	}
	defer o.Close()

	log.WithFields(map[string]interface{}{
		"version": version,
		"stages":  stages,
	}).Info("pinscraper starting")

	report, err := o.Run(ctx, params)
	if err != nil {
		console.PrintError("Pipeline failed", err)
		return err
	}

	console.PrintSuccess(fmt.Sprintf("\nPipeline finished in %s", report.Elapsed.Round(time.Second)))
	return nil
}
