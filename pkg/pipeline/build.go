package pipeline

import (
	"fmt"

	"pinscraper/internal/downloader"
	"pinscraper/pkg/browser"
	"pinscraper/pkg/checkpoint"
	"pinscraper/pkg/config"
	"pinscraper/pkg/discovery"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/netprobe"
	"pinscraper/pkg/storage"
	"pinscraper/pkg/store"
	"pinscraper/pkg/ui"
)

// Build wires the production stages from cfg: the SQLite store, a headless
// Chrome launcher, the TCP probe, the HTTP fetcher and the output directory.
// The caller must Close the orchestrator.
func Build(cfg *config.Config, console *ui.Console, log logger.Logger) (*Orchestrator, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	db, err := store.Open(cfg.Database.Path, store.OptionsFromConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	files, err := storage.NewManager(cfg.Download.OutputDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open output directory: %w", err)
	}

	deps := Deps{
		Store:      db,
		Writer:     checkpoint.NewWriter(db, cfg.Checkpoint.RetryDelay, log),
		Launcher:   browser.NewChromeLauncher(browser.OptionsFromConfig(cfg.Browser), log),
		Prober:     netprobe.NewTCPProber(cfg.Discovery.ProbeAddress, cfg.Discovery.ProbeTimeout),
		Loop:       discovery.ConfigFromSettings(cfg.Discovery),
		BaseURL:    cfg.Source.BaseURL,
		SearchPath: cfg.Source.BoardSearchPath,
		Console:    console,
		Logger:     log,
	}

	fetcher := downloader.NewHTTPFetcher(cfg.Download, log)
	limiter := downloader.NewRateLimiter(cfg.Download.RequestsPerSecond)

	download := NewDownload(db, fetcher, files, limiter, console, log)
	download.SaveMetadata = cfg.Download.SaveMetadata

	o := NewOrchestrator(
		NewBoardSearch(deps),
		NewBoardExpansion(deps),
		NewDeduplication(db, console, log),
		download,
		console,
		log,
	)
	o.closers = append(o.closers, db.Close)
	return o, nil
}
