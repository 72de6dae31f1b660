// Package pipeline implements the four stages of a scrape and the
// orchestrator that sequences them.
//
// Stage 1 (BoardSearch) scrolls the board search results for a term and
// records every board in the stage1 table. Stage 2 (BoardExpansion) scrolls
// each board without pins and records its pins in stage2. Stage 3
// (Deduplication) copies one row per pin URL into stage3. Stage 4 (Download)
// fetches the media of every stage3 pin with a bounded worker pool.
//
// Stages communicate only through the store, so any subset can be run on
// its own and a run can be repeated: commits update rows in place and files
// already on disk are not fetched again.
//
//	o, err := pipeline.Build(cfg, ui.NewConsole(os.Stdout, false), log)
//	if err != nil {
//		return err
//	}
//	defer o.Close()
//
//	_, err = o.Run(ctx, pipeline.Params{
//		Stages:           []int{1, 2, 3, 4},
//		SearchTerm:       "mountains",
//		MaxScrapeThreads: 2,
//	})
package pipeline
