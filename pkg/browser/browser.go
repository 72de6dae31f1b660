package browser

import (
	"context"
	"time"

	"pinscraper/pkg/config"
)

// Scripts evaluated in the page by the discovery loop
const (
	// ScrollByViewportScript scrolls down by 80% of the viewport height
	ScrollByViewportScript = "window.scrollBy(0, Math.abs(window.innerHeight * 0.8));"
	// ScrollHeightScript reads the current document height
	ScrollHeightScript = "document.documentElement.scrollHeight"
)

// Session is one automated browser tab
type Session interface {
	Navigate(ctx context.Context, url string) error
	ClearCookies(ctx context.Context) error
	// SetZoom applies a CSS zoom to the page; it survives later navigations
	SetZoom(ctx context.Context, percent int) error
	// Execute evaluates script and unmarshals its value into result, which may be nil
	Execute(ctx context.Context, script string, result any) error
	// FindByRole returns the first element with the given ARIA role
	FindByRole(ctx context.Context, role string) (Element, error)
	Close() error
}

// Element is a handle on a rendered DOM element
type Element interface {
	InnerHTML(ctx context.Context) (string, error)
}

// Launcher starts browser sessions
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Options configures the headless browser
type Options struct {
	Headless      bool
	ExecPath      string
	UserAgent     string
	WindowWidth   int
	WindowHeight  int
	ActionTimeout time.Duration
}

// OptionsFromConfig converts the browser section of the configuration
func OptionsFromConfig(cfg config.BrowserConfig) Options {
	return Options{
		Headless:      cfg.Headless,
		ExecPath:      cfg.ExecPath,
		UserAgent:     cfg.UserAgent,
		WindowWidth:   cfg.WindowWidth,
		WindowHeight:  cfg.WindowHeight,
		ActionTimeout: cfg.ActionTimeout,
	}
}
