package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	errs "pinscraper/pkg/errors"
)

// Stage numbers in execution order
const (
	StageBoardSearch    = 1
	StageBoardExpansion = 2
	StageDeduplication  = 3
	StageDownload       = 4
)

var stageNames = map[int]string{
	StageBoardSearch:    "board_search",
	StageBoardExpansion: "board_expansion",
	StageDeduplication:  "deduplication",
	StageDownload:       "download",
}

// StageName returns the short name of a stage
func StageName(stage int) string {
	if name, ok := stageNames[stage]; ok {
		return name
	}
	return fmt.Sprintf("stage_%d", stage)
}

// Params selects the stages of a run and their inputs
type Params struct {
	Stages           []int
	SearchTerm       string
	MaxScrapeThreads int
}

// ValidateParams checks a run's parameters before any I/O happens
func ValidateParams(p Params) error {
	problems := selectionProblems(p.Stages, p.SearchTerm)
	if p.MaxScrapeThreads <= 0 {
		problems = append(problems, fmt.Errorf("max scrape threads must be positive, got %d", p.MaxScrapeThreads))
	}
	return joinProblems(problems)
}

// ValidateSelection checks the stage list and search term alone. It lets a
// caller reject a bad command line before reading any configuration.
func ValidateSelection(stages []int, searchTerm string) error {
	return joinProblems(selectionProblems(stages, searchTerm))
}

func selectionProblems(stages []int, searchTerm string) []error {
	var problems []error
	if len(stages) == 0 {
		problems = append(problems, errors.New("no stages selected"))
	}
	for _, s := range stages {
		if _, ok := stageNames[s]; !ok {
			problems = append(problems, fmt.Errorf("unknown stage %d: stages are 1 to 4", s))
		}
	}
	if (Params{Stages: stages}).selects(StageBoardSearch) && strings.TrimSpace(searchTerm) == "" {
		problems = append(problems, errors.New("a search term is required when stage 1 is selected"))
	}
	return problems
}

func joinProblems(problems []error) error {
	if len(problems) > 0 {
		return errs.Wrap(errs.KindInputValidation, "pipeline.validate", errors.Join(problems...))
	}
	return nil
}

// ordered returns the selected stages ascending with duplicates removed
func (p Params) ordered() []int {
	seen := make(map[int]bool, len(p.Stages))
	out := make([]int, 0, len(p.Stages))
	for _, s := range p.Stages {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Ints(out)
	return out
}

func (p Params) selects(stage int) bool {
	for _, s := range p.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// ParseStages parses a comma separated stage list such as "1,2,3,4"
func ParseStages(s string) ([]int, error) {
	var stages []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, errs.New(errs.KindInputValidation, "pipeline.stages", fmt.Sprintf("invalid stage %q", part))
		}
		stages = append(stages, n)
	}
	return stages, nil
}
