package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AmirTlinov/context-pack/internal/journal/migrations"
	"github.com/AmirTlinov/context-pack/internal/pack"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// SQLiteJournal implements pack.Journal using SQLite.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// NewSQLiteJournal opens the journal at path and migrates it to the latest schema.
// path can be a file path or ":memory:".
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	return &SQLiteJournal{db: db, path: path}, nil
}

// OpenSQLiteJournal opens an existing journal without migrating it. A schema that is
// behind or ahead of this binary fails with migration_required.
func OpenSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		db.Close()
		return nil, pack.MigrationRequired("journal %s: %v; run 'ctxpack journal migrate'", path, err)
	}
	return &SQLiteJournal{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection for the journal.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// DB returns the underlying connection.
func (j *SQLiteJournal) DB() *sql.DB { return j.db }

// Path returns the database path.
func (j *SQLiteJournal) Path() string { return j.path }

// Append records one mutation.
func (j *SQLiteJournal) Append(ctx context.Context, entry pack.JournalEntry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO mutations (pack_id, action, revision, request_id, at) VALUES (?, ?, ?, ?, ?)`,
		entry.PackID, entry.Action, entry.Revision, entry.RequestID, entry.At.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// List returns entries newest first. An empty packID lists every pack.
func (j *SQLiteJournal) List(ctx context.Context, packID string, limit int) ([]*pack.JournalEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if packID == "" {
		rows, err = j.db.QueryContext(ctx,
			`SELECT id, pack_id, action, revision, request_id, at FROM mutations ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = j.db.QueryContext(ctx,
			`SELECT id, pack_id, action, revision, request_id, at FROM mutations WHERE pack_id = ? ORDER BY id DESC LIMIT ?`,
			packID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []*pack.JournalEntry
	for rows.Next() {
		var (
			e  pack.JournalEntry
			at int64
		)
		if err := rows.Scan(&e.ID, &e.PackID, &e.Action, &e.Revision, &e.RequestID, &at); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.At = time.UnixMilli(at).UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Compile-time check that SQLiteJournal implements pack.Journal interface
var _ pack.Journal = (*SQLiteJournal)(nil)
