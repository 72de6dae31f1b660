package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pinscraper/pkg/errors"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "pins.db"), DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func boardKey(url, term string) Row {
	return Row{"board_url": url, "search_term": term}
}

func TestOpenCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "pins.db")

	s, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, path, s.Path())

	// Reopening applies the schema again without error
	s2, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer s2.Close()
}

func TestOpenConcurrentlyOnFreshPath(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pins.db")

	const openers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, openers)
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := Open(path, DefaultOptions())
			if err != nil {
				errCh <- err
				return
			}
			defer s.Close()
			errCh <- s.Upsert(ctx, TableBoards, boardKey(fmt.Sprintf("https://p/a/%d/", i), "mountains"), Row{"pin_count": i})
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	s, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(ctx, TableBoards)
	require.NoError(t, err)
	assert.Equal(t, openers, n)
}

func TestOpenAddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
	CREATE TABLE stage1 (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		search_term TEXT NOT NULL,
		board_url TEXT NOT NULL,
		pin_count INTEGER,
		sections_count INTEGER NOT NULL DEFAULT 0,
		board_name TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(board_url, search_term)
	);
	CREATE TABLE stage3 (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pin_url TEXT NOT NULL UNIQUE,
		board_url TEXT NOT NULL,
		image_url TEXT,
		title TEXT,
		downloaded INTEGER NOT NULL DEFAULT 0,
		file_path TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	INSERT INTO stage1 (search_term, board_url) VALUES ('mountains', 'https://p/a/old/');
	INSERT INTO stage3 (pin_url, board_url) VALUES ('https://p/pin/1/', 'https://p/a/old/');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.MarkExpanded(ctx, "https://p/a/old/"))
	require.NoError(t, s.MarkFailed(ctx, "https://p/pin/1/", "gone"))
	pins, err := s.UniquePins(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.True(t, pins[0].Failed)

	// A second open finds the columns in place
	s2, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer s2.Close()
}

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN("/tmp/x.db", DefaultOptions())
	assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")

	dsn = buildDSN("/tmp/x.db", Options{DisableWAL: true})
	assert.NotContains(t, dsn, "journal_mode")
	assert.NotContains(t, dsn, "busy_timeout")
}

func TestInsertExistsUpdate(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	key := boardKey("https://www.pinterest.com/a/peaks/", "mountains")

	exists, err := s.Exists(ctx, TableBoards, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Insert(ctx, TableBoards, key, Row{"pin_count": 120, "sections_count": 2, "board_name": "Peaks"}))

	exists, err = s.Exists(ctx, TableBoards, key)
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := s.Update(ctx, TableBoards, key, Row{"pin_count": 130, "sections_count": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	boards, err := s.Boards(ctx, "mountains")
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, int64(130), boards[0].PinCount.Int64)
	assert.Equal(t, 3, boards[0].SectionsCount)
	assert.Equal(t, "Peaks", boards[0].BoardName)
}

func TestInsertConflict(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	key := boardKey("https://www.pinterest.com/a/peaks/", "mountains")

	require.NoError(t, s.Insert(ctx, TableBoards, key, Row{"pin_count": 1}))
	err := s.Insert(ctx, TableBoards, key, Row{"pin_count": 2})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, errs.KindPersistenceConflict, errs.KindOf(err))

	// Same board under a different term is a distinct identity
	require.NoError(t, s.Insert(ctx, TableBoards, boardKey("https://www.pinterest.com/a/peaks/", "alps"), nil))
	n, err := s.Count(ctx, TableBoards)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpdateNullPinCountKeepsStoredValue(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	key := boardKey("https://www.pinterest.com/a/peaks/", "mountains")

	require.NoError(t, s.Insert(ctx, TableBoards, key, Row{"pin_count": 42}))
	_, err := s.Update(ctx, TableBoards, key, Row{"pin_count": nil, "sections_count": 1})
	require.NoError(t, err)

	boards, err := s.Boards(ctx, "mountains")
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.True(t, boards[0].PinCount.Valid)
	assert.Equal(t, int64(42), boards[0].PinCount.Int64)
	assert.Equal(t, 1, boards[0].SectionsCount)
}

func TestUpdateMissingRow(t *testing.T) {
	s := setupTestStore(t)

	n, err := s.Update(context.Background(), TableBoards, boardKey("https://x/", "t"), Row{"pin_count": 1})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	key := Row{"pin_url": "https://www.pinterest.com/pin/1/", "board_url": "https://www.pinterest.com/a/b/"}

	require.NoError(t, s.Upsert(ctx, TablePins, key, Row{"image_url": "https://i.pinimg.com/236x/a.jpg", "title": "first"}))
	require.NoError(t, s.Upsert(ctx, TablePins, key, Row{"image_url": "https://i.pinimg.com/originals/a.jpg", "title": "second"}))

	n, err := s.Count(ctx, TablePins)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Deduplicate(ctx)
	require.NoError(t, err)
	pins, err := s.UniquePins(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, "second", pins[0].Title)
	assert.Equal(t, "https://i.pinimg.com/originals/a.jpg", pins[0].ImageURL)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	tests := []struct {
		name string
		run  func() error
	}{
		{"unknown table", func() error {
			_, err := s.Exists(ctx, Table("users; DROP TABLE stage1"), Row{"id": 1})
			return err
		}},
		{"missing identity column", func() error {
			return s.Insert(ctx, TableBoards, Row{"board_url": "x", "other": "y"}, nil)
		}},
		{"identity as field", func() error {
			_, err := s.Update(ctx, TableBoards, boardKey("x", "t"), Row{"board_url": "y"})
			return err
		}},
		{"unknown column", func() error {
			return s.Upsert(ctx, TablePins, Row{"pin_url": "p", "board_url": "b"}, Row{"likes": 3})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.Equal(t, errs.KindInputValidation, errs.KindOf(err))
		})
	}
}

func TestBoardsPendingExpansion(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.Insert(ctx, TableBoards, boardKey("https://p/a/one/", "mountains"), nil))
	require.NoError(t, s.Insert(ctx, TableBoards, boardKey("https://p/a/two/", "mountains"), nil))
	require.NoError(t, s.Insert(ctx, TableBoards, boardKey("https://p/a/one/", "alps"), nil))
	require.NoError(t, s.Insert(ctx, TablePins, Row{"pin_url": "https://p/pin/1/", "board_url": "https://p/a/two/"}, nil))

	pending, err := s.BoardsPendingExpansion(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://p/a/one/"}, pending)

	// An expanded board stays done under every term, also without pins
	require.NoError(t, s.MarkExpanded(ctx, "https://p/a/one/"))
	pending, err = s.BoardsPendingExpansion(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, s.Insert(ctx, TableBoards, boardKey("https://p/a/one/", "peaks"), nil))
	pending, err = s.BoardsPendingExpansion(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "a new search term does not reopen an expanded board")

	assert.Error(t, s.MarkExpanded(ctx, "https://p/a/unknown/"))
}

func TestDeduplicate(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	insertPin := func(pin, board string) {
		require.NoError(t, s.Insert(ctx, TablePins, Row{"pin_url": pin, "board_url": board}, Row{"image_url": pin + "img.jpg"}))
	}
	insertPin("https://p/pin/1/", "https://p/a/b1/")
	insertPin("https://p/pin/1/", "https://p/a/b2/")
	insertPin("https://p/pin/2/", "https://p/a/b2/")

	added, err := s.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	added, err = s.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Zero(t, added, "re-running adds nothing")

	pins, err := s.UniquePins(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 2)
	assert.Equal(t, "https://p/a/b1/", pins[0].BoardURL)

	require.NoError(t, s.MarkDownloaded(ctx, "https://p/pin/1/", "/out/1.jpg"))
	pins, err = s.UniquePins(ctx)
	require.NoError(t, err)
	assert.True(t, pins[0].Downloaded)
	assert.Equal(t, "/out/1.jpg", pins[0].FilePath)
	assert.False(t, pins[1].Downloaded)

	assert.Error(t, s.MarkDownloaded(ctx, "https://p/pin/404/", "/out/x.jpg"))

	require.NoError(t, s.MarkFailed(ctx, "https://p/pin/2/", "unexpected status 404"))
	pins, err = s.UniquePins(ctx)
	require.NoError(t, err)
	assert.False(t, pins[0].Failed)
	assert.True(t, pins[1].Failed)
	assert.Equal(t, "unexpected status 404", pins[1].LastError)
	assert.Error(t, s.MarkFailed(ctx, "https://p/pin/404/", "x"))
}

func TestConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	var wg sync.WaitGroup
	errCh := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := boardKey("https://p/a/shared/", "mountains")
			errCh <- s.Upsert(ctx, TableBoards, key, Row{"pin_count": i})
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	n, err := s.Count(ctx, TableBoards)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
