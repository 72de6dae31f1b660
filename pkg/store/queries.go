package store

import (
	"context"
	"database/sql"
	"fmt"

	errs "pinscraper/pkg/errors"
)

// Board is one stage1 row
type Board struct {
	ID            int64
	SearchTerm    string
	BoardURL      string
	PinCount      sql.NullInt64
	SectionsCount int
	BoardName     string
}

// UniquePin is one stage3 row
type UniquePin struct {
	ID         int64
	PinURL     string
	BoardURL   string
	ImageURL   string
	Title      string
	Downloaded bool
	FilePath   string
	// Failed is set once a download failed in a way retrying cannot fix
	Failed    bool
	LastError string
}

// Boards returns the boards discovered for term in discovery order
func (s *Store) Boards(ctx context.Context, term string) ([]Board, error) {
	query := `
	SELECT id, search_term, board_url, pin_count, sections_count, COALESCE(board_name, '')
	FROM stage1
	WHERE search_term = ?
	ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, term)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistenceFailure, "store.boards",
			fmt.Errorf("failed to query boards: %w", err))
	}
	defer rows.Close()

	var boards []Board
	for rows.Next() {
		var b Board
		if err := rows.Scan(&b.ID, &b.SearchTerm, &b.BoardURL, &b.PinCount, &b.SectionsCount, &b.BoardName); err != nil {
			return nil, errs.Wrap(errs.KindPersistenceFailure, "store.boards",
				fmt.Errorf("failed to scan board: %w", err))
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// BoardsPendingExpansion returns the distinct board URLs that were never
// fully expanded and have no stage2 rows yet, oldest first
func (s *Store) BoardsPendingExpansion(ctx context.Context) ([]string, error) {
	query := `
	SELECT s1.board_url
	FROM stage1 s1
	WHERE NOT EXISTS (SELECT 1 FROM stage2 s2 WHERE s2.board_url = s1.board_url)
	GROUP BY s1.board_url
	HAVING MAX(s1.expanded_at) IS NULL
	ORDER BY MIN(s1.id)
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistenceFailure, "store.pending",
			fmt.Errorf("failed to query pending boards: %w", err))
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, errs.Wrap(errs.KindPersistenceFailure, "store.pending", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// MarkExpanded records that a board was scrolled to the end, under every
// search term it was found with, so it is not expanded again even when it
// holds no pins
func (s *Store) MarkExpanded(ctx context.Context, boardURL string) error {
	query := `
	UPDATE stage1
	SET expanded_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
	WHERE board_url = ?
	`

	res, err := s.db.ExecContext(ctx, query, boardURL)
	if err != nil {
		return errs.Wrap(errs.KindPersistenceFailure, "store.mark_expanded",
			fmt.Errorf("failed to mark board expanded: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.KindPersistenceFailure, "store.mark_expanded",
			fmt.Sprintf("no board %q", boardURL))
	}
	return nil
}

// Count returns the number of rows in table
func (s *Store) Count(ctx context.Context, table Table) (int, error) {
	if _, err := lookup(table); err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, errs.Wrap(errs.KindPersistenceFailure, "store.count",
			fmt.Errorf("failed to count %s: %w", table, err))
	}
	return n, nil
}

// Deduplicate copies every pin not yet in stage3 from stage2, one row per
// pin URL, and returns how many new unique pins were added
func (s *Store) Deduplicate(ctx context.Context) (int64, error) {
	query := `
	INSERT OR IGNORE INTO stage3 (pin_url, board_url, image_url, title)
	SELECT pin_url, MIN(board_url), MAX(image_url), MAX(title)
	FROM stage2
	GROUP BY pin_url
	`

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, errs.Wrap(errs.KindPersistenceFailure, "store.deduplicate",
			fmt.Errorf("failed to deduplicate pins: %w", err))
	}
	return res.RowsAffected()
}

// UniquePins returns every stage3 row in insertion order
func (s *Store) UniquePins(ctx context.Context) ([]UniquePin, error) {
	query := `
	SELECT id, pin_url, board_url, COALESCE(image_url, ''), COALESCE(title, ''), downloaded, COALESCE(file_path, ''),
		failed, COALESCE(last_error, '')
	FROM stage3
	ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistenceFailure, "store.unique_pins",
			fmt.Errorf("failed to query unique pins: %w", err))
	}
	defer rows.Close()

	var pins []UniquePin
	for rows.Next() {
		var p UniquePin
		if err := rows.Scan(&p.ID, &p.PinURL, &p.BoardURL, &p.ImageURL, &p.Title, &p.Downloaded, &p.FilePath, &p.Failed, &p.LastError); err != nil {
			return nil, errs.Wrap(errs.KindPersistenceFailure, "store.unique_pins",
				fmt.Errorf("failed to scan unique pin: %w", err))
		}
		pins = append(pins, p)
	}
	return pins, rows.Err()
}

// MarkDownloaded records the saved file for a unique pin
func (s *Store) MarkDownloaded(ctx context.Context, pinURL, path string) error {
	n, err := s.Update(ctx, TableUniquePins, Row{"pin_url": pinURL}, Row{
		"downloaded": 1,
		"file_path":  path,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.KindPersistenceFailure, "store.mark_downloaded",
			fmt.Sprintf("no unique pin %q", pinURL))
	}
	return nil
}

// MarkFailed records a download failure that a later run would repeat
func (s *Store) MarkFailed(ctx context.Context, pinURL, reason string) error {
	n, err := s.Update(ctx, TableUniquePins, Row{"pin_url": pinURL}, Row{
		"failed":     1,
		"last_error": reason,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.KindPersistenceFailure, "store.mark_failed",
			fmt.Sprintf("no unique pin %q", pinURL))
	}
	return nil
}
