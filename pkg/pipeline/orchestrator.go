package pipeline

import (
	"context"
	"fmt"
	"time"

	"pinscraper/pkg/logger"
	"pinscraper/pkg/ui"
)

// BoardSearcher runs stage 1
type BoardSearcher interface {
	Run(ctx context.Context, term string) (*BoardSearchResult, error)
}

// Expander runs stage 2
type Expander interface {
	Run(ctx context.Context) (*ExpansionResult, error)
}

// Deduplicator runs stage 3
type Deduplicator interface {
	Run(ctx context.Context) (*DedupResult, error)
}

// Downloader runs stage 4
type Downloader interface {
	Run(ctx context.Context, workers int) (*DownloadResult, error)
}

// Report collects the results of the stages that ran
type Report struct {
	Stages      []int
	BoardSearch *BoardSearchResult
	Expansion   *ExpansionResult
	Dedup       *DedupResult
	Download    *DownloadResult
	Elapsed     time.Duration
}

// Orchestrator runs the selected stages in ascending order
type Orchestrator struct {
	search   BoardSearcher
	expand   Expander
	dedup    Deduplicator
	download Downloader
	console  *ui.Console
	logger   logger.Logger
	closers  []func() error
}

// NewOrchestrator creates an orchestrator over the four stages
func NewOrchestrator(search BoardSearcher, expand Expander, dedup Deduplicator, download Downloader, console *ui.Console, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetLogger()
	}
	if console == nil {
		console = ui.Discard()
	}
	return &Orchestrator{
		search:   search,
		expand:   expand,
		dedup:    dedup,
		download: download,
		console:  console,
		logger:   log.WithField("component", "pipeline"),
	}
}

// Run validates p and then executes the selected stages 1 through 4. The
// first failing stage stops the run.
func (o *Orchestrator) Run(ctx context.Context, p Params) (*Report, error) {
	if err := ValidateParams(p); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{Stages: p.ordered()}

	for _, stage := range report.Stages {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("stage %d (%s): %w", stage, StageName(stage), err)
		}

		o.console.PrintStageHeader(stage, StageName(stage))
		stageStart := time.Now()
		logger.LogStageStart(o.logger, stage, StageName(stage), stageParams(stage, p))

		if err := o.runStage(ctx, stage, p, report); err != nil {
			o.logger.WithError(err).ErrorWithFields("Stage failed", map[string]interface{}{
				"stage": stage,
				"name":  StageName(stage),
			})
			return report, fmt.Errorf("stage %d (%s): %w", stage, StageName(stage), err)
		}

		logger.LogStageComplete(o.logger, stage, StageName(stage), map[string]interface{}{
			"duration": time.Since(stageStart),
		})
	}

	report.Elapsed = time.Since(start)
	return report, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage int, p Params, report *Report) error {
	var err error
	switch stage {
	case StageBoardSearch:
		report.BoardSearch, err = o.search.Run(ctx, p.SearchTerm)
	case StageBoardExpansion:
		report.Expansion, err = o.expand.Run(ctx)
	case StageDeduplication:
		report.Dedup, err = o.dedup.Run(ctx)
	case StageDownload:
		report.Download, err = o.download.Run(ctx, p.MaxScrapeThreads)
	}
	return err
}

func stageParams(stage int, p Params) map[string]interface{} {
	switch stage {
	case StageBoardSearch:
		return map[string]interface{}{"search_term": p.SearchTerm}
	case StageDownload:
		return map[string]interface{}{"workers": p.MaxScrapeThreads}
	}
	return nil
}

// Close releases the resources the orchestrator was built with
func (o *Orchestrator) Close() error {
	var firstErr error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	o.closers = nil
	return firstErr
}
