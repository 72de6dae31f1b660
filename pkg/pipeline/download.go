package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"pinscraper/internal/downloader"
	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/metadata"
	"pinscraper/pkg/storage"
	"pinscraper/pkg/store"
	"pinscraper/pkg/ui"
)

// DownloadResult summarizes a stage 4 run
type DownloadResult struct {
	Tasks      int
	Downloaded int
	Skipped    int
	Failed     int
	NoMedia    int
	// Abandoned counts pins left out because an earlier run failed them
	// permanently
	Abandoned int
}

// Download fetches the media of every unique pin
type Download struct {
	store   *store.Store
	fetcher downloader.Fetcher
	files   downloader.Storage
	limiter *rate.Limiter
	console *ui.Console
	log     logger.Logger

	// SaveMetadata writes a JSON sidecar next to every file on disk
	SaveMetadata bool
}

// NewDownload creates the stage 4 runner. limiter may be nil.
func NewDownload(s *store.Store, fetcher downloader.Fetcher, files downloader.Storage, limiter *rate.Limiter, console *ui.Console, log logger.Logger) *Download {
	if log == nil {
		log = logger.GetLogger()
	}
	if console == nil {
		console = ui.Discard()
	}
	return &Download{
		store:   s,
		fetcher: fetcher,
		files:   files,
		limiter: limiter,
		console: console,
		log:     log.WithField("stage", StageName(StageDownload)),
	}
}

// Run feeds one task per unique pin to a pool of workers and marks each pin
// whose file is on disk afterwards. A task that failed permanently is
// recorded and never tried again; other failures are left for the next run.
func (d *Download) Run(ctx context.Context, workers int) (*DownloadResult, error) {
	pins, err := d.store.UniquePins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unique pins: %w", err)
	}

	result := &DownloadResult{}
	byURL := make(map[string]store.UniquePin, len(pins))
	tasks := make([]downloader.Task, 0, len(pins))
	for _, p := range pins {
		byURL[p.PinURL] = p
		if p.ImageURL == "" {
			result.NoMedia++
			continue
		}
		if p.Failed && !p.Downloaded {
			result.Abandoned++
			continue
		}
		tasks = append(tasks, downloader.Task{
			PinURL:   p.PinURL,
			MediaURL: p.ImageURL,
			FileName: storage.FileName(p.PinURL, p.ImageURL),
		})
	}
	result.Tasks = len(tasks)

	tracker := ui.NewStatusTracker(len(tasks))
	pool := downloader.NewWorkerPool(workers, d.fetcher, d.files, d.limiter, d.log)
	err = pool.Process(ctx, tasks, func(r downloader.Result) {
		d.record(ctx, r, result, tracker)
		if r.Error == nil && d.SaveMetadata {
			d.writeMetadata(byURL[r.Task.PinURL], r)
		}
		tracker.PrintProgress(d.console)
	})

	d.console.PrintSummary("Download complete",
		ui.SummaryLine{Label: "unique pins", Value: len(pins)},
		ui.SummaryLine{Label: "downloaded", Value: result.Downloaded},
		ui.SummaryLine{Label: "already present", Value: result.Skipped},
		ui.SummaryLine{Label: "failed", Value: result.Failed},
		ui.SummaryLine{Label: "without media", Value: result.NoMedia},
		ui.SummaryLine{Label: "failed earlier", Value: result.Abandoned},
	)

	return result, err
}

func (d *Download) record(ctx context.Context, r downloader.Result, result *DownloadResult, tracker *ui.StatusTracker) {
	switch {
	case r.Error != nil:
		result.Failed++
		tracker.RecordFailed()
		if errs.IsPermanent(r.Error) {
			d.markFailed(ctx, r)
		}
		return
	case r.Skipped:
		result.Skipped++
		tracker.RecordSkipped()
	default:
		result.Downloaded++
		tracker.RecordDownloaded()
	}

	if err := d.store.MarkDownloaded(context.WithoutCancel(ctx), r.Task.PinURL, r.Path); err != nil {
		d.log.WithError(err).WarnWithFields("Could not mark pin downloaded", map[string]interface{}{
			"pin_url": r.Task.PinURL,
		})
	}
}

func (d *Download) markFailed(ctx context.Context, r downloader.Result) {
	if err := d.store.MarkFailed(context.WithoutCancel(ctx), r.Task.PinURL, r.Error.Error()); err != nil {
		d.log.WithError(err).WarnWithFields("Could not record download failure", map[string]interface{}{
			"pin_url": r.Task.PinURL,
		})
	}
}

// writeMetadata writes the sidecar for a fresh download, or for an existing
// file that has none yet
func (d *Download) writeMetadata(pin store.UniquePin, r downloader.Result) {
	if r.Skipped && metadata.Exists(r.Path) {
		return
	}
	meta := &metadata.PinMetadata{
		PinURL:       pin.PinURL,
		BoardURL:     pin.BoardURL,
		ImageURL:     pin.ImageURL,
		Title:        pin.Title,
		FileName:     r.Task.FileName,
		FileSize:     int64(r.Size),
		DownloadedAt: time.Now().UTC(),
	}
	if err := meta.Save(r.Path); err != nil {
		d.log.WithError(err).WarnWithFields("Could not write metadata", map[string]interface{}{
			"pin_url": pin.PinURL,
		})
	}
}
