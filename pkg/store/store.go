package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pinscraper/pkg/config"
	errs "pinscraper/pkg/errors"
)

// ErrConflict is matched by errors.Is when an insert hits an existing identity
var ErrConflict = errors.New("record already exists")

// Row maps column names to values. Keys hold identity columns, fields hold
// mutable ones.
type Row map[string]any

// Store is the SQLite-backed persistent store shared by every stage.
// Each method is a self-contained statement, so concurrent callers only
// share the connection pool.
type Store struct {
	db   *sql.DB
	path string
}

// Options configures how the database is opened
type Options struct {
	// BusyTimeout is how long a connection waits on a locked database
	BusyTimeout time.Duration
	// MaxOpenConns bounds the connection pool
	MaxOpenConns int
	// DisableWAL keeps the rollback journal instead of write-ahead logging
	DisableWAL bool
}

// DefaultOptions returns the default database options
func DefaultOptions() Options {
	return Options{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// OptionsFromConfig converts the database section of the configuration
func OptionsFromConfig(cfg config.DatabaseConfig) Options {
	return Options{
		BusyTimeout:  cfg.BusyTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		DisableWAL:   cfg.DisableWAL,
	}
}

// Open opens or creates the database at path and applies the schema
func Open(path string, opts Options) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, errs.Wrap(errs.KindPersistenceFailure, "store.open",
				fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path, opts))
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistenceFailure, "store.open",
			fmt.Errorf("failed to open database: %w", err))
	}

	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, path: path}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.KindPersistenceFailure, "store.open",
			fmt.Errorf("failed to create tables: %w", err))
	}

	return s, nil
}

// buildDSN sets pragmas through the DSN so every pooled connection gets them
func buildDSN(path string, opts Options) string {
	params := []string{"mode=rwc"}
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if !opts.DisableWAL {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

func (s *Store) createTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}
	return s.migrate(ctx)
}

// migrate adds any column missing from a database created by an older schema
func (s *Store) migrate(ctx context.Context) error {
	for _, c := range addedColumns {
		var n int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", string(c.table), c.column).Scan(&n)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", c.table, err)
		}
		if n > 0 {
			continue
		}

		_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.definition))
		// A concurrent opener may have added it first
		if err != nil && !strings.Contains(err.Error(), "duplicate column name") {
			return fmt.Errorf("add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether a row with the given identity is present
func (s *Store) Exists(ctx context.Context, table Table, key Row) (bool, error) {
	schema, err := lookup(table)
	if err != nil {
		return false, err
	}
	args, err := schema.identityArgs(table, key)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s)", table, whereIdentity(schema))
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, errs.Wrap(errs.KindPersistenceFailure, "store.exists",
			fmt.Errorf("failed to query %s: %w", table, err))
	}
	return exists, nil
}

// Insert adds a new row. A uniqueness violation yields a persistence
// conflict that matches ErrConflict.
func (s *Store) Insert(ctx context.Context, table Table, key Row, fields Row) error {
	schema, err := lookup(table)
	if err != nil {
		return err
	}
	idArgs, err := schema.identityArgs(table, key)
	if err != nil {
		return err
	}
	if err := schema.checkMutable(table, fields); err != nil {
		return err
	}

	cols := append([]string{}, schema.identity...)
	args := idArgs
	for _, col := range sortedColumns(fields) {
		cols = append(cols, col)
		args = append(args, fields[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return errs.Wrap(errs.KindPersistenceConflict, "store.insert",
				fmt.Errorf("%w in %s: %v", ErrConflict, table, err))
		}
		return errs.Wrap(errs.KindPersistenceFailure, "store.insert",
			fmt.Errorf("failed to insert into %s: %w", table, err))
	}
	return nil
}

// Update rewrites the listed mutable fields of an existing row and
// returns the number of rows changed. Identity columns are never touched.
func (s *Store) Update(ctx context.Context, table Table, key Row, fields Row) (int64, error) {
	schema, err := lookup(table)
	if err != nil {
		return 0, err
	}
	idArgs, err := schema.identityArgs(table, key)
	if err != nil {
		return 0, err
	}
	if err := schema.checkMutable(table, fields); err != nil {
		return 0, err
	}

	var sets []string
	var args []any
	for _, col := range sortedColumns(fields) {
		if schema.keepOnNull[col] {
			sets = append(sets, fmt.Sprintf("%s = COALESCE(?, %s)", col, col))
		} else {
			sets = append(sets, col+" = ?")
		}
		args = append(args, fields[col])
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, idArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), whereIdentity(schema))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errs.Wrap(errs.KindPersistenceFailure, "store.update",
			fmt.Errorf("failed to update %s: %w", table, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.KindPersistenceFailure, "store.update", err)
	}
	return n, nil
}

// Upsert inserts the row or, when the identity exists, updates the listed
// fields. The last writer wins.
func (s *Store) Upsert(ctx context.Context, table Table, key Row, fields Row) error {
	schema, err := lookup(table)
	if err != nil {
		return err
	}
	idArgs, err := schema.identityArgs(table, key)
	if err != nil {
		return err
	}
	if err := schema.checkMutable(table, fields); err != nil {
		return err
	}

	cols := append([]string{}, schema.identity...)
	args := idArgs
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	for _, col := range sortedColumns(fields) {
		cols = append(cols, col)
		args = append(args, fields[col])
		if schema.keepOnNull[col] {
			sets = append(sets, fmt.Sprintf("%s = COALESCE(excluded.%s, %s)", col, col, col))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), placeholders(len(cols)),
		strings.Join(schema.identity, ", "), strings.Join(sets, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errs.Wrap(errs.KindPersistenceFailure, "store.upsert",
			fmt.Errorf("failed to upsert into %s: %w", table, err))
	}
	return nil
}

func whereIdentity(schema tableSchema) string {
	conds := make([]string, len(schema.identity))
	for i, col := range schema.identity {
		conds[i] = col + " = ?"
	}
	return strings.Join(conds, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sortedColumns(fields Row) []string {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// isUniqueViolation checks the extended SQLite result code
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
