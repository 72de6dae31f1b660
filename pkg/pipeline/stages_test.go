package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinscraper/internal/downloader"
	"pinscraper/pkg/browser"
	"pinscraper/pkg/checkpoint"
	"pinscraper/pkg/config"
	"pinscraper/pkg/discovery"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/metadata"
	"pinscraper/pkg/netprobe"
	"pinscraper/pkg/retry"
	"pinscraper/pkg/storage"
	"pinscraper/pkg/store"
	"pinscraper/pkg/ui"
)

const baseURL = "https://www.pinterest.com"

func testLoopConfig() discovery.Config {
	return discovery.Config{
		CyclesPerIteration: 2,
		ScrollStallBound:   10,
		RecordStallBound:   3,
		TransientRetries:   2,
		MaxFatalRestarts:   1,
		ListRole:           "list",
		ZoomPercent:        50,
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "pins.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDeps(s *store.Store, session *browser.FakeSession, console *ui.Console) (Deps, *browser.FakeLauncher) {
	launcher := &browser.FakeLauncher{Session: session}
	return Deps{
		Store:    s,
		Writer:   checkpoint.NewWriter(s, time.Millisecond, logger.NewNopLogger()),
		Launcher: launcher,
		Prober:   netprobe.ProberFunc(func(context.Context) bool { return true }),
		Loop:     testLoopConfig(),
		BaseURL:  baseURL,
		Console:  console,
		Logger:   logger.NewNopLogger(),
	}, launcher
}

func boardCards(count string, users ...string) string {
	var b strings.Builder
	for _, u := range users {
		fmt.Fprintf(&b, `<a href="/%s/peaks/"><div title="%s peaks">%s peaks</div><div style="-webkit-line-clamp: 1;">%s</div></a>`, u, u, u, count)
	}
	return b.String()
}

func pinTiles(ids ...string) string {
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, `<a href="/pin/%s/"><img src="https://i.pinimg.com/236x/%s.jpg" alt="pin %s"></a>`, id, id, id)
	}
	return b.String()
}

func TestBoardSearchMountains(t *testing.T) {
	s := openStore(t)
	searchURL := SearchURL(baseURL, defaultSearchPath, "mountains")
	session := browser.NewFakeSession(map[string]*browser.FakePage{
		searchURL: {
			Snapshots: []string{"", boardCards("1,204 Pins", "ann", "bob"), boardCards("1,204 Pins", "ann", "bob", "cat")},
			Heights:   []int{2400},
		},
	})
	var out bytes.Buffer
	deps, launcher := testDeps(s, session, ui.NewConsole(&out, true))

	result, err := NewBoardSearch(deps).Run(context.Background(), "mountains")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Seen)
	assert.Equal(t, 3, result.Commits.Inserted)
	assert.Equal(t, 5, result.Loop.Iterations)
	assert.Equal(t, 1, launcher.Launches)
	assert.True(t, session.Closed)
	assert.Equal(t, []string{searchURL}, session.Navigations)
	assert.Contains(t, out.String(), "boards seen  3")

	boards, err := s.Boards(context.Background(), "mountains")
	require.NoError(t, err)
	require.Len(t, boards, 3)
	for _, b := range boards {
		assert.Equal(t, "mountains", b.SearchTerm)
		assert.True(t, b.PinCount.Valid)
		assert.Equal(t, int64(1204), b.PinCount.Int64)
	}
	assert.Equal(t, baseURL+"/ann/peaks/", boards[0].BoardURL)
	assert.Equal(t, "ann peaks", boards[0].BoardName)
}

func TestBoardSearchRerunUpdatesInPlace(t *testing.T) {
	s := openStore(t)
	searchURL := SearchURL(baseURL, defaultSearchPath, "mountains")
	session := browser.NewFakeSession(map[string]*browser.FakePage{
		searchURL: {Snapshots: []string{"", boardCards("40 Pins", "ann", "bob")}, Heights: []int{900}},
	})
	deps, _ := testDeps(s, session, nil)
	search := NewBoardSearch(deps)

	_, err := search.Run(context.Background(), "mountains")
	require.NoError(t, err)

	// The count can no longer be read; the stored value must survive
	session.Pages[searchURL] = &browser.FakePage{Snapshots: []string{"", boardCards("many Pins", "ann", "bob")}, Heights: []int{900}}
	result, err := search.Run(context.Background(), "mountains")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Commits.Inserted)
	assert.Equal(t, 2, result.Commits.Updated)
	assert.Equal(t, 2, result.Unparsed)

	boards, err := s.Boards(context.Background(), "mountains")
	require.NoError(t, err)
	require.Len(t, boards, 2)
	for _, b := range boards {
		assert.Equal(t, int64(40), b.PinCount.Int64)
	}
}

func TestBoardSearchSameBoardUnderTwoTerms(t *testing.T) {
	s := openStore(t)
	session := browser.NewFakeSession(map[string]*browser.FakePage{
		SearchURL(baseURL, defaultSearchPath, "alps"):  {Snapshots: []string{"", boardCards("3 Pins", "ann")}, Heights: []int{900}},
		SearchURL(baseURL, defaultSearchPath, "peaks"): {Snapshots: []string{"", boardCards("3 Pins", "ann")}, Heights: []int{900}},
	})
	deps, _ := testDeps(s, session, nil)
	search := NewBoardSearch(deps)

	_, err := search.Run(context.Background(), "alps")
	require.NoError(t, err)
	_, err = search.Run(context.Background(), "peaks")
	require.NoError(t, err)

	n, err := s.Count(context.Background(), store.TableBoards)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func seedBoards(t *testing.T, s *store.Store, urls ...string) {
	t.Helper()
	for _, u := range urls {
		require.NoError(t, s.Upsert(context.Background(), store.TableBoards,
			store.Row{"board_url": u, "search_term": "mountains"},
			store.Row{"pin_count": 3, "sections_count": 0}))
	}
}

func TestExpansionAndDeduplication(t *testing.T) {
	s := openStore(t)
	boardA, boardB, boardC := baseURL+"/ann/peaks/", baseURL+"/bob/peaks/", baseURL+"/cat/peaks/"
	seedBoards(t, s, boardA, boardB, boardC)

	session := browser.NewFakeSession(map[string]*browser.FakePage{
		boardA: {Snapshots: []string{"", pinTiles("1", "2")}, Heights: []int{900}},
		boardB: {Snapshots: []string{"", pinTiles("2"), pinTiles("2", "3")}, Heights: []int{900}},
		// boardC never renders a list
	})
	deps, _ := testDeps(s, session, nil)
	ctx := context.Background()

	result, err := NewBoardExpansion(deps).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Boards)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 4, result.Pins)
	assert.Equal(t, 4, result.Commits.Inserted)

	n, err := s.Count(ctx, store.TablePins)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	pending, err := s.BoardsPendingExpansion(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{boardC}, pending)

	dedup := NewDeduplication(s, nil, logger.NewNopLogger())
	dr, err := dedup.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), dr.Added)
	assert.Equal(t, 3, dr.Total)

	dr, err = dedup.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), dr.Added)
	assert.Equal(t, 3, dr.Total)

	pins, err := s.UniquePins(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 3)
	assert.Equal(t, baseURL+"/pin/1/", pins[0].PinURL)
	assert.Equal(t, "https://i.pinimg.com/originals/1.jpg", pins[0].ImageURL)
}

func TestExpansionMarksEmptyBoardExpanded(t *testing.T) {
	s := openStore(t)
	empty := baseURL + "/dan/empty/"
	seedBoards(t, s, empty)

	session := browser.NewFakeSession(map[string]*browser.FakePage{
		empty: {Snapshots: []string{""}, Heights: []int{900}},
	})
	deps, launcher := testDeps(s, session, nil)
	ctx := context.Background()

	result, err := NewBoardExpansion(deps).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Boards)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Pins)

	pending, err := s.BoardsPendingExpansion(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	result, err = NewBoardExpansion(deps).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Boards)
	assert.Equal(t, 1, launcher.Launches, "an expanded board is not scrolled again")
}

func TestExpansionWithNothingPending(t *testing.T) {
	s := openStore(t)
	session := browser.NewFakeSession(nil)
	deps, launcher := testDeps(s, session, nil)

	result, err := NewBoardExpansion(deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Boards)
	assert.Equal(t, 0, launcher.Launches)
}

func seedUniquePins(t *testing.T, s *store.Store, pins map[string]string) {
	t.Helper()
	ctx := context.Background()
	for pinURL, imageURL := range pins {
		require.NoError(t, s.Upsert(ctx, store.TablePins,
			store.Row{"pin_url": pinURL, "board_url": baseURL + "/ann/peaks/"},
			store.Row{"image_url": imageURL, "title": "t"}))
	}
	_, err := s.Deduplicate(ctx)
	require.NoError(t, err)
}

func TestDownloadIsIdempotent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasSuffix(r.URL.Path, "missing.jpg") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("image " + r.URL.Path))
	}))
	defer srv.Close()

	s := openStore(t)
	seedUniquePins(t, s, map[string]string{
		baseURL + "/pin/1/": srv.URL + "/img/1.jpg",
		baseURL + "/pin/2/": srv.URL + "/img/2.png",
		baseURL + "/pin/3/": srv.URL + "/img/missing.jpg",
		baseURL + "/pin/4/": "",
	})

	dir := t.TempDir()
	files, err := storage.NewManager(dir)
	require.NoError(t, err)
	fetcher := downloader.NewHTTPFetcher(config.DownloadConfig{Timeout: 5 * time.Second, RetryAttempts: 2}, logger.NewNopLogger()).
		WithBackoff(&retry.ConstantBackoff{Delay: time.Millisecond})
	stage := NewDownload(s, fetcher, files, nil, nil, logger.NewNopLogger())
	stage.SaveMetadata = true
	ctx := context.Background()

	result, err := stage.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, &DownloadResult{Tasks: 3, Downloaded: 2, Failed: 1, NoMedia: 1}, result)

	data, err := os.ReadFile(filepath.Join(dir, "2.png"))
	require.NoError(t, err)
	assert.Equal(t, "image /img/2.png", string(data))

	meta, err := metadata.Load(filepath.Join(dir, "2.png"))
	require.NoError(t, err)
	assert.Equal(t, baseURL+"/pin/2/", meta.PinURL)
	assert.Equal(t, int64(len("image /img/2.png")), meta.FileSize)
	assert.False(t, metadata.Exists(filepath.Join(dir, "3.jpg")))

	pins, err := s.UniquePins(ctx)
	require.NoError(t, err)
	marked := 0
	for _, p := range pins {
		if p.Downloaded {
			marked++
			assert.Equal(t, filepath.Join(dir, storage.FileName(p.PinURL, p.ImageURL)), p.FilePath)
		}
	}
	assert.Equal(t, 2, marked)

	failed := pins[0]
	for _, p := range pins {
		if p.PinURL == baseURL+"/pin/3/" {
			failed = p
		}
	}
	assert.True(t, failed.Failed)
	assert.Contains(t, failed.LastError, "404")

	before := hits.Load()
	result, err = stage.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, &DownloadResult{Tasks: 2, Skipped: 2, NoMedia: 1, Abandoned: 1}, result)
	// the permanently missing image is not requested again
	assert.Equal(t, before, hits.Load())
}

func TestDownloadRetriesTransientFailureNextRun(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("image"))
	}))
	defer srv.Close()

	s := openStore(t)
	seedUniquePins(t, s, map[string]string{baseURL + "/pin/9/": srv.URL + "/img/9.jpg"})
	files, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	fetcher := downloader.NewHTTPFetcher(config.DownloadConfig{Timeout: 5 * time.Second, RetryAttempts: 2}, logger.NewNopLogger()).
		WithBackoff(&retry.ConstantBackoff{Delay: time.Millisecond})
	stage := NewDownload(s, fetcher, files, nil, nil, logger.NewNopLogger())
	ctx := context.Background()

	result, err := stage.Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	pins, err := s.UniquePins(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.False(t, pins[0].Failed, "exhausted retries on a 503 stay eligible")

	result, err = stage.Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, int32(3), hits.Load())
}
