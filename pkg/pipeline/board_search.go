package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"pinscraper/pkg/browser"
	"pinscraper/pkg/checkpoint"
	"pinscraper/pkg/discovery"
	"pinscraper/pkg/extractor"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/netprobe"
	"pinscraper/pkg/store"
	"pinscraper/pkg/ui"
)

// Deps are the collaborators shared by the browser driven stages
type Deps struct {
	Store    *store.Store
	Writer   *checkpoint.Writer
	Launcher browser.Launcher
	Prober   netprobe.Prober
	Loop     discovery.Config
	BaseURL  string
	// SearchPath is the board search path below BaseURL
	SearchPath string
	Console    *ui.Console
	Logger     logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.GetLogger()
	}
	if d.Console == nil {
		d.Console = ui.Discard()
	}
	if d.Writer == nil && d.Store != nil {
		d.Writer = checkpoint.NewWriter(d.Store, 0, d.Logger)
	}
	d.BaseURL = strings.TrimRight(d.BaseURL, "/")
	if d.SearchPath == "" {
		d.SearchPath = defaultSearchPath
	}
	return d
}

const defaultSearchPath = "/search/boards/"

// SearchURL builds the board search results URL for term. Spaces in the
// term are encoded as %20.
func SearchURL(baseURL, searchPath, term string) string {
	q := strings.ReplaceAll(url.QueryEscape(term), "+", "%20")
	return strings.TrimRight(baseURL, "/") + searchPath + "?q=" + q + "&rs=filter"
}

// BoardSearchResult summarizes a stage 1 run
type BoardSearchResult struct {
	SearchTerm string
	Seen       int
	Unparsed   int
	Commits    checkpoint.Summary
	Loop       discovery.Stats
}

// BoardSearch discovers the boards matching a search term
type BoardSearch struct {
	deps Deps
	log  logger.Logger
}

// NewBoardSearch creates the stage 1 runner
func NewBoardSearch(deps Deps) *BoardSearch {
	deps = deps.withDefaults()
	return &BoardSearch{deps: deps, log: deps.Logger.WithField("stage", StageName(StageBoardSearch))}
}

// Run scrolls the search results for term and records every board seen
func (b *BoardSearch) Run(ctx context.Context, term string) (*BoardSearchResult, error) {
	term = strings.TrimSpace(term)
	log := b.log.WithField("search_term", term)

	session, err := b.deps.Launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer session.Close()

	loop := discovery.New[extractor.RawBoard](session, extractor.NewBoardExtractor(b.deps.BaseURL), b.deps.Prober, b.deps.Loop, log)
	boards, stats, loopErr := loop.Run(ctx, SearchURL(b.deps.BaseURL, b.deps.SearchPath, term))

	result := &BoardSearchResult{SearchTerm: term, Seen: len(boards), Loop: stats}
	entries := make([]checkpoint.Entry, 0, len(boards))
	for _, raw := range boards {
		entry, parsed := boardEntry(term, raw, log)
		if !parsed {
			result.Unparsed++
		}
		entries = append(entries, entry)
	}

	// Boards seen before an interruption are still written
	result.Commits, err = b.deps.Writer.CommitAll(context.WithoutCancel(ctx), entries)
	if loopErr != nil {
		return result, fmt.Errorf("discover boards: %w", loopErr)
	}
	if err != nil {
		return result, err
	}

	b.deps.Console.PrintSummary(fmt.Sprintf("Board search for %q complete", term),
		ui.SummaryLine{Label: "boards seen", Value: result.Seen},
		ui.SummaryLine{Label: "inserted", Value: result.Commits.Inserted},
		ui.SummaryLine{Label: "updated", Value: result.Commits.Updated},
		ui.SummaryLine{Label: "dropped", Value: result.Commits.Dropped},
		ui.SummaryLine{Label: "iterations", Value: stats.Iterations},
	)
	return result, nil
}

// boardEntry converts a raw board. An unparsable pin count is stored as
// NULL so an earlier good value survives.
func boardEntry(term string, raw extractor.RawBoard, log logger.Logger) (checkpoint.Entry, bool) {
	fields := store.Row{
		"pin_count":      nil,
		"sections_count": raw.Sections,
		"board_name":     nil,
	}
	if raw.Name != "" {
		fields["board_name"] = raw.Name
	}

	parsed := true
	if count, err := extractor.CoerceCount(raw.PinCountText); err == nil {
		fields["pin_count"] = count
	} else {
		parsed = false
		log.WithError(err).WarnWithFields("Pin count not parsed", map[string]interface{}{
			"board_url": raw.URL,
		})
	}

	return checkpoint.Entry{
		Table:  store.TableBoards,
		Key:    store.Row{"board_url": raw.URL, "search_term": term},
		Fields: fields,
	}, parsed
}
