// Package history keeps a local record of upload jobs in SQLite so the
// CLI can show past uploads and their outcomes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kumasuke/remedy/internal/upload"
)

// Entry is one recorded job.
type Entry struct {
	ID         string
	FileName   string
	Format     string
	StorageKey string
	Status     upload.Status
	Mock       bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store persists job history.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enabling WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			format TEXT NOT NULL,
			storage_key TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			mock INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("history: creating jobs table: %w", err)
	}
	return nil
}

// Record inserts or replaces the row for job.
func (s *Store) Record(ctx context.Context, job *upload.Job) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, file_name, format, storage_key, status, mock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			storage_key = excluded.storage_key,
			status = excluded.status,
			mock = excluded.mock,
			updated_at = excluded.updated_at
	`, job.ID, job.OriginalFileName, job.Format, job.StorageKey, string(job.Status), job.Mock, job.CreatedAt.UTC(), now)
	if err != nil {
		return fmt.Errorf("history: recording job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateStatus sets the status (and mock flag) of an existing row.
func (s *Store) UpdateStatus(ctx context.Context, jobID string, status upload.Status, mock bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, mock = ?, updated_at = ? WHERE id = ?
	`, string(status), mock, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("history: updating job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("history: job %s not found", jobID)
	}
	return nil
}

// List returns entries newest-first, at most limit rows (0 = all).
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT id, file_name, format, storage_key, status, mock, created_at, updated_at
		FROM jobs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: listing jobs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.ID, &e.FileName, &e.Format, &e.StorageKey, &status, &e.Mock, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}
		e.Status = upload.Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
