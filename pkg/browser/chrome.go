package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
)

const defaultActionTimeout = 30 * time.Second

// ChromeLauncher starts headless Chrome sessions through chromedp
type ChromeLauncher struct {
	opts   Options
	logger logger.Logger
}

// NewChromeLauncher creates a launcher for the given options
func NewChromeLauncher(opts Options, log logger.Logger) *ChromeLauncher {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	return &ChromeLauncher{opts: opts, logger: log}
}

// allocatorOptions builds the Chrome command line
func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if l.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.opts.UserAgent))
	}
	if l.opts.WindowWidth > 0 && l.opts.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(l.opts.WindowWidth, l.opts.WindowHeight))
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	return opts
}

// Launch starts a browser and opens one tab
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		timeout: l.opts.ActionTimeout,
	}

	// The first Run starts the browser process
	if err := s.run(ctx, network.Enable()); err != nil {
		s.cancel()
		return nil, errs.Wrap(errs.KindTransientNetwork, "browser.launch", fmt.Errorf("failed to start browser: %w", err))
	}

	l.logger.InfoWithFields("Browser session started", map[string]interface{}{
		"headless": l.opts.Headless,
	})
	return s, nil
}

type chromeSession struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	mu   sync.Mutex
	zoom int
	once sync.Once
}

// run executes actions on the tab, bounded by the action timeout and by ctx
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return errs.Wrap(errs.KindTransientNetwork, "browser.navigate", fmt.Errorf("%s: %w", url, err))
	}

	s.mu.Lock()
	zoom := s.zoom
	s.mu.Unlock()
	if zoom > 0 {
		return s.applyZoom(ctx, zoom)
	}
	return nil
}

func (s *chromeSession) ClearCookies(ctx context.Context) error {
	if err := s.run(ctx, network.ClearBrowserCookies()); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}

func (s *chromeSession) SetZoom(ctx context.Context, percent int) error {
	s.mu.Lock()
	s.zoom = percent
	s.mu.Unlock()
	return s.applyZoom(ctx, percent)
}

func (s *chromeSession) applyZoom(ctx context.Context, percent int) error {
	script := fmt.Sprintf("document.body && (document.body.style.zoom = '%d%%')", percent)
	if err := s.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("failed to set zoom: %w", err)
	}
	return nil
}

func (s *chromeSession) Execute(ctx context.Context, script string, result any) error {
	if err := s.run(ctx, chromedp.Evaluate(script, result)); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

func (s *chromeSession) FindByRole(ctx context.Context, role string) (Element, error) {
	var nodes []*cdp.Node
	sel := fmt.Sprintf("//div[@role='%s']", role)
	if err := s.run(ctx, chromedp.Nodes(sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, errs.Wrap(errs.KindTransientExtraction, "browser.find", err)
	}
	if len(nodes) == 0 {
		return nil, errs.New(errs.KindTransientExtraction, "browser.find", fmt.Sprintf("no element with role %q", role))
	}
	return &chromeElement{session: s, id: nodes[0].NodeID}, nil
}

func (s *chromeSession) Close() error {
	s.once.Do(s.cancel)
	return nil
}

type chromeElement struct {
	session *chromeSession
	id      cdp.NodeID
}

func (e *chromeElement) InnerHTML(ctx context.Context) (string, error) {
	var html string
	if err := e.session.run(ctx, chromedp.InnerHTML([]cdp.NodeID{e.id}, &html, chromedp.ByNodeID)); err != nil {
		return "", errs.Wrap(errs.KindTransientExtraction, "browser.inner_html", err)
	}
	return html, nil
}
