// Package cache stores per-project compilation reports keyed by document
// content hash. The cache is purely an optimization: the reference graph
// and diagnostics are always recomputable from the documents, and any byte
// change in a project's documents invalidates its entry.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/specc-dev/specc/internal/diag"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	project      TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	report       TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL
);
`

// Cache is a sqlite-backed result cache.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached report for the project if its content hash still
// matches, and whether there was a hit. A hash mismatch is a plain miss.
func (c *Cache) Get(ctx context.Context, project, contentHash string) (*diag.Report, bool, error) {
	var storedHash, reportJSON string
	err := c.db.QueryRowContext(ctx,
		`SELECT content_hash, report FROM results WHERE project = ?`, project,
	).Scan(&storedHash, &reportJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query cache: %w", err)
	}
	if storedHash != contentHash {
		return nil, false, nil
	}

	var report diag.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		// A corrupt entry is just a miss; the pipeline recomputes.
		return nil, false, nil
	}
	return &report, true, nil
}

// Put stores the report for the project, replacing any prior entry.
func (c *Cache) Put(ctx context.Context, project, contentHash string, report *diag.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO results (project, content_hash, report, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(project) DO UPDATE SET
		   content_hash = excluded.content_hash,
		   report = excluded.report,
		   created_at = excluded.created_at`,
		project, contentHash, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}
