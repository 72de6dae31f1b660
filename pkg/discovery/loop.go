package discovery

import (
	"context"
	"fmt"
	"time"

	"pinscraper/pkg/browser"
	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/extractor"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/netprobe"
	"pinscraper/pkg/retry"
)

// Record is anything the loop can accumulate by key
type Record interface {
	RecordKey() string
}

// Stats summarizes one Run
type Stats struct {
	Iterations        int
	TransientFailures int
	Restarts          int
	Records           int
	Elapsed           time.Duration
}

// Loop scrolls an infinite feed and samples its list element until one of
// the stall counters says the feed is exhausted
type Loop[R Record] struct {
	session   browser.Session
	extractor extractor.Extractor[R]
	prober    netprobe.Prober
	cfg       Config
	backoff   retry.BackoffStrategy
	logger    logger.Logger

	state   State
	records map[string]R
	order   []string
	stats   Stats
}

// New creates a loop over session. The caller owns the session.
func New[R Record](session browser.Session, ext extractor.Extractor[R], prober netprobe.Prober, cfg Config, log logger.Logger) *Loop[R] {
	if log == nil {
		log = logger.GetLogger()
	}
	if prober == nil {
		prober = netprobe.ProberFunc(func(context.Context) bool { return true })
	}
	if cfg.CyclesPerIteration <= 0 {
		cfg.CyclesPerIteration = 1
	}
	if cfg.MaxTransientDelay < cfg.TransientBackoff {
		cfg.MaxTransientDelay = cfg.TransientBackoff
	}

	return &Loop[R]{
		session:   session,
		extractor: ext,
		prober:    prober,
		cfg:       cfg,
		backoff:   cfg.transientBackoff(),
		logger:    log.WithField("component", "discovery"),
		state:     StateSessionReady,
	}
}

// State returns the phase the loop is in
func (l *Loop[R]) State() State {
	return l.state
}

// Run collects every record reachable by scrolling url. Records come back
// in first-seen order, also when Run returns an error.
func (l *Loop[R]) Run(ctx context.Context, url string) ([]R, Stats, error) {
	start := time.Now()
	l.records = make(map[string]R)
	l.order = nil
	l.stats = Stats{}
	log := l.logger.WithField("url", url)

	for {
		l.transition(StateScrollAndSample)
		err := l.scrollAndSample(ctx, url, log)
		if err == nil {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return l.flush(start), l.stats, ctxErr
		}

		l.transition(StateFatalRetry)
		if l.stats.Restarts >= l.cfg.MaxFatalRestarts {
			log.WithError(err).ErrorWithFields("Discovery loop gave up", map[string]interface{}{
				"restarts": l.stats.Restarts,
			})
			return l.flush(start), l.stats, errs.Wrap(errs.KindFatalLoop, "discovery.run",
				fmt.Errorf("gave up after %d restarts: %w", l.stats.Restarts, err))
		}

		l.stats.Restarts++
		logger.LogRetryDecision(log, "fatal failure, restarting after cooldown", l.stats.Restarts, l.cfg.MaxFatalRestarts, err)
		if werr := retry.Wait(ctx, l.cfg.FatalCooldown); werr != nil {
			return l.flush(start), l.stats, werr
		}
	}

	l.transition(StateTerminated)
	records := l.flush(start)
	log.InfoWithFields("Discovery loop finished", map[string]interface{}{
		"records":            len(records),
		"iterations":         l.stats.Iterations,
		"transient_failures": l.stats.TransientFailures,
		"restarts":           l.stats.Restarts,
	})
	return records, l.stats, nil
}

// scrollAndSample runs one phase from a fresh page load until the feed is
// exhausted. Transient failures are retried here; anything else is returned.
func (l *Loop[R]) scrollAndSample(ctx context.Context, url string, log logger.Logger) error {
	if err := l.session.ClearCookies(ctx); err != nil {
		return err
	}
	if err := l.session.SetZoom(ctx, l.cfg.ZoomPercent); err != nil {
		return err
	}
	if err := l.session.Navigate(ctx, url); err != nil {
		return err
	}

	var state ScrollState
	iterations := 0
	consecutive := 0
	renavigate := false

	for !state.Exhausted(l.cfg.ScrollStallBound, l.cfg.RecordStallBound) {
		if l.cfg.MaxIterations > 0 && iterations >= l.cfg.MaxIterations {
			log.WarnWithFields("Iteration cap reached before the feed stalled", map[string]interface{}{
				"iterations": iterations,
			})
			return nil
		}

		err := l.step(ctx, url, &state, renavigate)
		if err == nil {
			iterations++
			consecutive = 0
			renavigate = false
			log.DebugWithFields("Iteration complete", map[string]interface{}{
				"iteration":     iterations,
				"records":       len(l.order),
				"scroll_stalls": state.ScrollStalls,
				"record_stalls": state.RecordStalls,
			})
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTransient(err) {
			return err
		}

		consecutive++
		l.stats.TransientFailures++
		state.Reset()
		if consecutive > l.cfg.TransientRetries {
			return fmt.Errorf("%d consecutive transient failures: %w", consecutive, err)
		}

		renavigate = !l.prober.Reachable(ctx)
		logger.LogRetryDecision(log.WithField("reachable", !renavigate),
			"transient failure", consecutive, l.cfg.TransientRetries, err)
		if werr := retry.Wait(ctx, l.backoff.NextDelay(consecutive)); werr != nil {
			return werr
		}
	}

	return nil
}

// step runs one iteration: scroll and sample CyclesPerIteration times, then
// compare height and record count against the baselines
func (l *Loop[R]) step(ctx context.Context, url string, state *ScrollState, renavigate bool) error {
	if renavigate {
		if err := l.session.Navigate(ctx, url); err != nil {
			return err
		}
	}

	beforeHeight, err := l.scrollHeight(ctx)
	if err != nil {
		return err
	}
	beforeRecords := len(l.order)

	for i := 0; i < l.cfg.CyclesPerIteration; i++ {
		if err := l.session.Execute(ctx, browser.ScrollByViewportScript, nil); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		if err := retry.Wait(ctx, l.cfg.SettleInterval); err != nil {
			return err
		}
		if err := l.sample(ctx); err != nil {
			return err
		}
	}

	afterHeight, err := l.scrollHeight(ctx)
	if err != nil {
		return err
	}

	l.stats.Iterations++
	state.Observe(afterHeight != beforeHeight, len(l.order) > beforeRecords)
	return nil
}

// sample reads the list element and merges its records by key
func (l *Loop[R]) sample(ctx context.Context) error {
	el, err := l.session.FindByRole(ctx, l.cfg.ListRole)
	if err != nil {
		return errs.Wrap(errs.KindTransientExtraction, "discovery.sample", err)
	}
	html, err := el.InnerHTML(ctx)
	if err != nil {
		return errs.Wrap(errs.KindTransientExtraction, "discovery.sample", err)
	}
	records, err := l.extractor.Extract(html)
	if err != nil {
		return errs.Wrap(errs.KindTransientExtraction, "discovery.sample", err)
	}

	for _, r := range records {
		key := r.RecordKey()
		if key == "" {
			continue
		}
		if _, seen := l.records[key]; !seen {
			l.order = append(l.order, key)
		}
		l.records[key] = r
	}
	return nil
}

func (l *Loop[R]) scrollHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := l.session.Execute(ctx, browser.ScrollHeightScript, &height); err != nil {
		return 0, fmt.Errorf("read scroll height: %w", err)
	}
	return height, nil
}

func (l *Loop[R]) flush(start time.Time) []R {
	l.transition(StateFlushed)
	out := make([]R, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, l.records[key])
	}
	l.stats.Records = len(out)
	l.stats.Elapsed = time.Since(start)
	return out
}

func (l *Loop[R]) transition(next State) {
	if l.state != next {
		l.logger.DebugWithFields("Discovery state change", map[string]interface{}{
			"from": l.state.String(),
			"to":   next.String(),
		})
	}
	l.state = next
}

func isTransient(err error) bool {
	return errs.Is(err, errs.KindTransientExtraction) || errs.Is(err, errs.KindTransientNetwork)
}
