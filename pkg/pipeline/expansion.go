package pipeline

import (
	"context"
	"fmt"

	"pinscraper/pkg/checkpoint"
	"pinscraper/pkg/discovery"
	"pinscraper/pkg/extractor"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/store"
	"pinscraper/pkg/ui"
)

// ExpansionResult summarizes a stage 2 run
type ExpansionResult struct {
	Boards  int
	Failed  int
	Pins    int
	Commits checkpoint.Summary
}

// BoardExpansion records the pins of every board not yet expanded
type BoardExpansion struct {
	deps Deps
	log  logger.Logger
}

// NewBoardExpansion creates the stage 2 runner
func NewBoardExpansion(deps Deps) *BoardExpansion {
	deps = deps.withDefaults()
	return &BoardExpansion{deps: deps, log: deps.Logger.WithField("stage", StageName(StageBoardExpansion))}
}

// Run expands pending boards one after another on a single browser session.
// A board that fails is logged and left pending for the next run.
func (e *BoardExpansion) Run(ctx context.Context) (*ExpansionResult, error) {
	boards, err := e.deps.Store.BoardsPendingExpansion(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending boards: %w", err)
	}

	result := &ExpansionResult{Boards: len(boards)}
	if len(boards) == 0 {
		e.log.Info("No boards pending expansion")
		e.printSummary(result)
		return result, nil
	}

	session, err := e.deps.Launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer session.Close()

	ext := extractor.NewPinExtractor(e.deps.BaseURL)
	for i, boardURL := range boards {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		log := e.log.WithFields(map[string]interface{}{
			"board_url": boardURL,
			"board":     fmt.Sprintf("%d/%d", i+1, len(boards)),
		})

		loop := discovery.New[extractor.RawPin](session, ext, e.deps.Prober, e.deps.Loop, log)
		pins, _, loopErr := loop.Run(ctx, boardURL)

		sum, err := e.deps.Writer.CommitAll(context.WithoutCancel(ctx), pinEntries(boardURL, pins))
		result.Pins += len(pins)
		result.Commits.Inserted += sum.Inserted
		result.Commits.Updated += sum.Updated
		result.Commits.Dropped += sum.Dropped

		if loopErr != nil {
			if ctx.Err() != nil {
				return result, loopErr
			}
			result.Failed++
			log.WithError(loopErr).WarnWithFields("Board expansion failed, continuing", map[string]interface{}{
				"pins": len(pins),
			})
			continue
		}
		if err != nil {
			return result, err
		}
		if err := e.deps.Store.MarkExpanded(context.WithoutCancel(ctx), boardURL); err != nil {
			return result, fmt.Errorf("mark board expanded: %w", err)
		}
		log.InfoWithFields("Board expanded", map[string]interface{}{"pins": len(pins)})
	}

	e.printSummary(result)
	return result, nil
}

func (e *BoardExpansion) printSummary(r *ExpansionResult) {
	e.deps.Console.PrintSummary("Board expansion complete",
		ui.SummaryLine{Label: "boards expanded", Value: r.Boards - r.Failed},
		ui.SummaryLine{Label: "boards failed", Value: r.Failed},
		ui.SummaryLine{Label: "pins seen", Value: r.Pins},
		ui.SummaryLine{Label: "inserted", Value: r.Commits.Inserted},
		ui.SummaryLine{Label: "updated", Value: r.Commits.Updated},
	)
}

func pinEntries(boardURL string, pins []extractor.RawPin) []checkpoint.Entry {
	entries := make([]checkpoint.Entry, 0, len(pins))
	for _, p := range pins {
		entries = append(entries, checkpoint.Entry{
			Table: store.TablePins,
			Key:   store.Row{"pin_url": p.URL, "board_url": boardURL},
			Fields: store.Row{
				"image_url": p.ImageURL,
				"title":     p.Title,
			},
		})
	}
	return entries
}
