package browser

import (
	"context"
	"fmt"
	"sync"

	errs "pinscraper/pkg/errors"
)

// FakePage is a scripted page. Navigation resets the position to zero and
// each scroll advances it by one;
// snapshots and heights are read at the current position and the last
// entry repeats once the script runs out.
type FakePage struct {
	Snapshots []string
	Heights   []int
}

// FakeSession is an in-memory Session for tests
type FakeSession struct {
	mu sync.Mutex

	Pages map[string]*FakePage
	// SampleErrors fails the n-th list lookup (1-based, across the session)
	SampleErrors map[int]error
	// NavigateErrors fails the n-th navigation (1-based)
	NavigateErrors map[int]error
	// ScrollErrors fails the n-th scroll (1-based)
	ScrollErrors map[int]error

	Navigations  []string
	CookieClears int
	Zoom         int
	Scrolls      int
	Samples      int
	Closed       bool

	current  string
	position map[string]int
}

// NewFakeSession creates a fake serving the given pages by URL
func NewFakeSession(pages map[string]*FakePage) *FakeSession {
	return &FakeSession{Pages: pages, position: make(map[string]int)}
}

func (f *FakeSession) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Navigations = append(f.Navigations, url)
	if err := f.NavigateErrors[len(f.Navigations)]; err != nil {
		return err
	}
	// A page load starts at the top
	f.current = url
	f.position[url] = 0
	return ctx.Err()
}

func (f *FakeSession) ClearCookies(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CookieClears++
	return nil
}

func (f *FakeSession) SetZoom(ctx context.Context, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Zoom = percent
	return nil
}

func (f *FakeSession) Execute(ctx context.Context, script string, result any) error {
	f.mu.Lock()
	page := f.Pages[f.current]

	switch script {
	case ScrollByViewportScript:
		f.Scrolls++
		err := f.ScrollErrors[f.Scrolls]
		if err == nil {
			f.position[f.current]++
		}
		f.mu.Unlock()
		return err

	case ScrollHeightScript:
		height := 0
		if page != nil && len(page.Heights) > 0 {
			height = page.Heights[clamp(f.position[f.current], len(page.Heights))]
		}
		f.mu.Unlock()
		return assignInt(result, height)
	}

	f.mu.Unlock()
	return fmt.Errorf("fake session: unsupported script %q", script)
}

func (f *FakeSession) FindByRole(ctx context.Context, role string) (Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples++
	if err := f.SampleErrors[f.Samples]; err != nil {
		return nil, err
	}

	page := f.Pages[f.current]
	if page == nil || len(page.Snapshots) == 0 {
		return nil, errs.New(errs.KindTransientExtraction, "browser.find", fmt.Sprintf("no element with role %q", role))
	}
	return fakeElement(page.Snapshots[clamp(f.position[f.current], len(page.Snapshots))]), nil
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Position returns how far the page at url has been scrolled
func (f *FakeSession) Position(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position[url]
}

type fakeElement string

func (e fakeElement) InnerHTML(ctx context.Context) (string, error) {
	return string(e), nil
}

// FakeLauncher hands out one shared FakeSession
type FakeLauncher struct {
	Session   *FakeSession
	LaunchErr error
	Launches  int
}

func (l *FakeLauncher) Launch(ctx context.Context) (Session, error) {
	l.Launches++
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	l.Session.mu.Lock()
	l.Session.Closed = false
	l.Session.mu.Unlock()
	return l.Session, nil
}

func clamp(i, n int) int {
	if i >= n {
		return n - 1
	}
	return i
}

func assignInt(result any, v int) error {
	switch r := result.(type) {
	case nil:
		return nil
	case *int:
		*r = v
	case *int64:
		*r = int64(v)
	case *float64:
		*r = float64(v)
	default:
		return fmt.Errorf("fake session: cannot assign to %T", result)
	}
	return nil
}
