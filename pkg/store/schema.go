package store

import (
	"fmt"

	errs "pinscraper/pkg/errors"
)

// Table names one stage's output
type Table string

const (
	// TableBoards holds discovered boards, one row per (board_url, search_term)
	TableBoards Table = "stage1"
	// TablePins holds pins per board, one row per (pin_url, board_url)
	TablePins Table = "stage2"
	// TableUniquePins holds the globally unique pins handed to Download
	TableUniquePins Table = "stage3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS stage1 (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	search_term TEXT NOT NULL,
	board_url TEXT NOT NULL,
	pin_count INTEGER,
	sections_count INTEGER NOT NULL DEFAULT 0,
	board_name TEXT,
	expanded_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(board_url, search_term)
);

CREATE INDEX IF NOT EXISTS idx_stage1_term ON stage1(search_term);

CREATE TABLE IF NOT EXISTS stage2 (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	board_url TEXT NOT NULL,
	pin_url TEXT NOT NULL,
	image_url TEXT,
	title TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(pin_url, board_url)
);

CREATE INDEX IF NOT EXISTS idx_stage2_board ON stage2(board_url);

CREATE TABLE IF NOT EXISTS stage3 (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pin_url TEXT NOT NULL UNIQUE,
	board_url TEXT NOT NULL,
	image_url TEXT,
	title TEXT,
	downloaded INTEGER NOT NULL DEFAULT 0,
	file_path TEXT,
	failed INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// addedColumns are columns introduced after the first schema. Databases
// created before them are altered on open.
var addedColumns = []struct {
	table      Table
	column     string
	definition string
}{
	{TableBoards, "expanded_at", "DATETIME"},
	{TableUniquePins, "failed", "INTEGER NOT NULL DEFAULT 0"},
	{TableUniquePins, "last_error", "TEXT"},
}

// tableSchema lists the columns SQL may be built from for one table
type tableSchema struct {
	identity []string
	mutable  map[string]bool
	// keepOnNull columns retain their stored value when updated with NULL
	keepOnNull map[string]bool
}

var schemas = map[Table]tableSchema{
	TableBoards: {
		identity:   []string{"board_url", "search_term"},
		mutable:    map[string]bool{"pin_count": true, "sections_count": true, "board_name": true},
		keepOnNull: map[string]bool{"pin_count": true, "board_name": true},
	},
	TablePins: {
		identity: []string{"pin_url", "board_url"},
		mutable:  map[string]bool{"image_url": true, "title": true},
	},
	TableUniquePins: {
		identity: []string{"pin_url"},
		mutable: map[string]bool{
			"board_url": true, "image_url": true, "title": true,
			"downloaded": true, "file_path": true,
			"failed": true, "last_error": true,
		},
	},
}

// lookup validates table and returns its schema
func lookup(table Table) (tableSchema, error) {
	s, ok := schemas[table]
	if !ok {
		return tableSchema{}, errs.New(errs.KindInputValidation, "store", fmt.Sprintf("unknown table %q", table))
	}
	return s, nil
}

// identityArgs returns the identity column values of key in schema order
func (s tableSchema) identityArgs(table Table, key Row) ([]any, error) {
	if len(key) != len(s.identity) {
		return nil, errs.New(errs.KindInputValidation, "store",
			fmt.Sprintf("key for %s must hold exactly %v", table, s.identity))
	}
	args := make([]any, 0, len(s.identity))
	for _, col := range s.identity {
		v, ok := key[col]
		if !ok {
			return nil, errs.New(errs.KindInputValidation, "store",
				fmt.Sprintf("key for %s is missing %q", table, col))
		}
		args = append(args, v)
	}
	return args, nil
}

// checkMutable rejects any field that is not a mutable column of the table
func (s tableSchema) checkMutable(table Table, fields Row) error {
	for col := range fields {
		if !s.mutable[col] {
			return errs.New(errs.KindInputValidation, "store",
				fmt.Sprintf("column %q is not writable on %s", col, table))
		}
	}
	return nil
}
