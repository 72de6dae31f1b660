package pipeline

import (
	"context"
	"fmt"

	"pinscraper/pkg/logger"
	"pinscraper/pkg/store"
	"pinscraper/pkg/ui"
)

// DedupResult summarizes a stage 3 run
type DedupResult struct {
	Added int64
	Total int
}

// Deduplication collapses stage 2 pins into one row per pin URL
type Deduplication struct {
	store   *store.Store
	console *ui.Console
	log     logger.Logger
}

// NewDeduplication creates the stage 3 runner
func NewDeduplication(s *store.Store, console *ui.Console, log logger.Logger) *Deduplication {
	if log == nil {
		log = logger.GetLogger()
	}
	if console == nil {
		console = ui.Discard()
	}
	return &Deduplication{
		store:   s,
		console: console,
		log:     log.WithField("stage", StageName(StageDeduplication)),
	}
}

func (d *Deduplication) Run(ctx context.Context) (*DedupResult, error) {
	added, err := d.store.Deduplicate(ctx)
	if err != nil {
		return nil, fmt.Errorf("deduplicate pins: %w", err)
	}
	total, err := d.store.Count(ctx, store.TableUniquePins)
	if err != nil {
		return nil, fmt.Errorf("count unique pins: %w", err)
	}

	result := &DedupResult{Added: added, Total: total}
	d.log.InfoWithFields("Pins deduplicated", map[string]interface{}{
		"added": added,
		"total": total,
	})
	d.console.PrintSummary("Deduplication complete",
		ui.SummaryLine{Label: "new unique pins", Value: added},
		ui.SummaryLine{Label: "unique pins", Value: total},
	)
	return result, nil
}
