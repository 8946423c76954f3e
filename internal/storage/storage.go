// Package storage writes the per-run crawl record to SQLite. The database
// is an output artifact recreated on every run; the frontier itself is
// never persisted or read back.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/sitemap-crawler/sitemapper/internal/frontier"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	visited     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	duplicates  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          INTEGER NOT NULL REFERENCES runs(id),
	url             TEXT NOT NULL,
	state           TEXT NOT NULL,
	status_code     INTEGER NOT NULL,
	last_modified   TEXT,
	crawled_at      TEXT,
	discovered_from TEXT,
	UNIQUE(run_id, url)
);

CREATE INDEX IF NOT EXISTS idx_pages_run_state ON pages(run_id, state);
`

// RunSummary describes one finished crawl.
type RunSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Visited    int
	Failed     int
	Duplicates int
}

// Database is the crawl-record store.
type Database struct {
	db *sql.DB
}

// Open opens (or creates) the record database at path.
func Open(path string) (*Database, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Database{db: db}, nil
}

// Close closes the database.
func (d *Database) Close() error {
	return d.db.Close()
}

// RecordRun writes the run summary and every terminal entry in one
// transaction. Returns the run ID.
func (d *Database) RecordRun(summary RunSummary, entries []frontier.Entry) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO runs (started_at, finished_at, visited, failed, duplicates)
		VALUES (?, ?, ?, ?, ?)
	`, summary.StartedAt.UTC().Format(time.RFC3339),
		summary.FinishedAt.UTC().Format(time.RFC3339),
		summary.Visited, summary.Failed, summary.Duplicates)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO pages (run_id, url, state, status_code, last_modified, crawled_at, discovered_from)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, entry := range entries {
		var lastMod, crawledAt sql.NullString
		if !entry.LastModified.IsZero() {
			lastMod = sql.NullString{String: entry.LastModified.UTC().Format(time.RFC3339), Valid: true}
		}
		if !entry.CrawledAt.IsZero() {
			crawledAt = sql.NullString{String: entry.CrawledAt.UTC().Format(time.RFC3339), Valid: true}
		}
		if _, err := stmt.Exec(runID, entry.URL, entry.State.String(),
			entry.StatusCode, lastMod, crawledAt, entry.DiscoveredFrom); err != nil {
			return 0, fmt.Errorf("failed to insert page %q: %w", entry.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// PageCount returns how many pages were recorded for a run.
func (d *Database) PageCount(runID int64) (int, error) {
	var count int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM pages WHERE run_id = ?`, runID).Scan(&count)
	return count, err
}

// PagesByState returns recorded URLs for a run in insertion order.
func (d *Database) PagesByState(runID int64, state frontier.State) ([]string, error) {
	rows, err := d.db.Query(`
		SELECT url FROM pages WHERE run_id = ? AND state = ? ORDER BY id
	`, runID, state.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}
