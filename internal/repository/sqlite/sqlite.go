// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so no C toolchain is
// needed. Use ":memory:" for tests.
//
// SCHEMA NOTES:
// Folder membership (folder_exams) references the user's bookmark row through
// a composite foreign key (user_id, exam_id) -> bookmarks. Removing a bookmark
// therefore removes the exam from every folder of that user in the same
// statement, and an edge without a bookmark cannot be inserted at all.
// Deleting an exam cascades to files, bookmarks (and through them folder
// edges), flashes and reports.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New opens the SQLite database at dbPath and runs migrations.
//
// The pool is capped at one connection. SQLite serialises writers anyway,
// PRAGMA foreign_keys is per connection, and each connection to ":memory:"
// would otherwise see its own empty database. Because of the cap, code in
// this package never issues a query while another *sql.Rows is still open.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Required: the bookmark/folder cascade lives entirely in foreign keys.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// withTx runs fn inside a transaction. fn must only use tx; with a single
// pooled connection a query on db.conn would block forever.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			google_id  TEXT NOT NULL DEFAULT '',
			email      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// lightning and report_count are checked here as well as in code.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS exams (
			id               TEXT PRIMARY KEY,
			title            TEXT NOT NULL,
			course_name      TEXT NOT NULL,
			instructor       TEXT NOT NULL DEFAULT '',
			department       TEXT NOT NULL DEFAULT '',
			semester         TEXT NOT NULL DEFAULT '',
			exam_type        TEXT NOT NULL DEFAULT '',
			has_answers      TEXT NOT NULL DEFAULT '',
			description      TEXT NOT NULL DEFAULT '',
			lightning        INTEGER NOT NULL DEFAULT 0 CHECK (lightning >= 0),
			report_count     INTEGER NOT NULL DEFAULT 0 CHECK (report_count >= 0),
			last_reported_at DATETIME,
			uploaded_by      TEXT NOT NULL REFERENCES users(id),
			created_at       DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_exams_uploaded_by ON exams(uploaded_by);
		CREATE INDEX IF NOT EXISTS idx_exams_created_at ON exams(created_at);
		CREATE INDEX IF NOT EXISTS idx_exams_lightning ON exams(lightning);
	`)
	if err != nil {
		return fmt.Errorf("creating exams table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS exam_files (
			id          TEXT PRIMARY KEY,
			exam_id     TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
			position    INTEGER NOT NULL,
			type        TEXT NOT NULL,
			name        TEXT NOT NULL,
			url         TEXT NOT NULL DEFAULT '',
			external_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_exam_files_exam ON exam_files(exam_id, position);
	`)
	if err != nil {
		return fmt.Errorf("creating exam_files table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS bookmarks (
			user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			exam_id  TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
			saved_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, exam_id)
		);
		CREATE INDEX IF NOT EXISTS idx_bookmarks_exam ON bookmarks(exam_id);

		CREATE TABLE IF NOT EXISTS folders (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_folders_user ON folders(user_id);

		CREATE TABLE IF NOT EXISTS folder_exams (
			folder_id TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
			user_id   TEXT NOT NULL,
			exam_id   TEXT NOT NULL,
			added_at  DATETIME NOT NULL,
			PRIMARY KEY (folder_id, exam_id),
			FOREIGN KEY (user_id, exam_id)
				REFERENCES bookmarks(user_id, exam_id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_folder_exams_bookmark ON folder_exams(user_id, exam_id);
	`)
	if err != nil {
		return fmt.Errorf("creating collection tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS flashes (
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			exam_id    TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
			flashed_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, exam_id)
		);
		CREATE INDEX IF NOT EXISTS idx_flashes_exam ON flashes(exam_id);

		CREATE TABLE IF NOT EXISTS reports (
			id          TEXT PRIMARY KEY,
			exam_id     TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
			reported_by TEXT NOT NULL DEFAULT '',
			note        TEXT NOT NULL DEFAULT '',
			reported_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reports_exam ON reports(exam_id, reported_at);
	`)
	if err != nil {
		return fmt.Errorf("creating engagement tables: %w", err)
	}

	// Added after the first release; older databases lack it.
	if err := db.addColumnIfNotExists("exam_files", "mime_type",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding mime_type to exam_files: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
