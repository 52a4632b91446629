package taskindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id           TEXT PRIMARY KEY,
	email             TEXT NOT NULL DEFAULT '',
	repo_name         TEXT NOT NULL DEFAULT '',
	repo_url          TEXT NOT NULL DEFAULT '',
	latest_commit_sha TEXT NOT NULL DEFAULT '',
	pages_url         TEXT NOT NULL DEFAULT '',
	latest_round      INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);
`

// SQLiteStore is the durable Store backend.
//
// SQLite has a single writer anyway; the mutex additionally makes the
// read-merge-write inside Upsert one critical section, so same-key
// concurrent upserts cannot interleave.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the index database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply index schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, taskID string) (*Record, error) {
	return s.get(ctx, taskID)
}

func (s *SQLiteStore) get(ctx context.Context, taskID string) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, email, repo_name, repo_url, latest_commit_sha,
			pages_url, latest_round, created_at, updated_at
		FROM tasks WHERE task_id = ?;
	`, taskID).Scan(&rec.TaskID, &rec.Email, &rec.RepoName, &rec.RepoURL,
		&rec.LatestCommitSHA, &rec.PagesURL, &rec.LatestRound,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, taskID string, upd Update) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	rec, err := s.get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{TaskID: taskID, CreatedAt: now}
	}
	upd.apply(rec, now)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, email, repo_name, repo_url, latest_commit_sha,
			pages_url, latest_round, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			email = excluded.email,
			repo_name = excluded.repo_name,
			repo_url = excluded.repo_url,
			latest_commit_sha = excluded.latest_commit_sha,
			pages_url = excluded.pages_url,
			latest_round = excluded.latest_round,
			updated_at = excluded.updated_at;
	`, rec.TaskID, rec.Email, rec.RepoName, rec.RepoURL, rec.LatestCommitSHA,
		rec.PagesURL, rec.LatestRound, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert task %s: %w", taskID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?;`, taskID); err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, email, repo_name, repo_url, latest_commit_sha,
			pages_url, latest_round, created_at, updated_at
		FROM tasks ORDER BY created_at ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.TaskID, &rec.Email, &rec.RepoName, &rec.RepoURL,
			&rec.LatestCommitSHA, &rec.PagesURL, &rec.LatestRound,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: iterate: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
