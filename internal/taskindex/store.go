package taskindex

import (
	"context"
	"time"
)

// Record is the deployment state of one task.
type Record struct {
	TaskID          string    `json:"task_id"`
	Email           string    `json:"email"`
	RepoName        string    `json:"repo_name"`
	RepoURL         string    `json:"repo_url"`
	LatestCommitSHA string    `json:"latest_commit_sha"`
	PagesURL        string    `json:"pages_url"`
	LatestRound     int       `json:"latest_round"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Update is a partial record change; nil fields are left untouched.
type Update struct {
	Email           *string
	RepoName        *string
	RepoURL         *string
	LatestCommitSHA *string
	PagesURL        *string
	LatestRound     *int
}

// Store is a durable, concurrency-safe task index.
//
// Upsert merges only the supplied fields, never the whole record, so
// concurrent callers cannot silently erase each other's writes. The
// index must only ever be mutated through Upsert; callers never
// read-modify-write the record set themselves.
type Store interface {
	// Get returns the record for taskID, or nil when absent.
	Get(ctx context.Context, taskID string) (*Record, error)

	// Upsert creates the record (created_at = now) or merges upd into
	// the existing one, setting updated_at. Returns the merged record.
	Upsert(ctx context.Context, taskID string, upd Update) (*Record, error)

	// Delete removes the record. Maintenance tooling only; the main
	// flow never deletes.
	Delete(ctx context.Context, taskID string) error

	// List returns all records.
	List(ctx context.Context) ([]Record, error)

	// Close releases the backing medium.
	Close() error
}

// String returns a pointer for an Update field.
func String(s string) *string { return &s }

// Int returns a pointer for an Update field.
func Int(i int) *int { return &i }

// apply merges upd into rec. latest_round is clamped so it never
// decreases across updates to the same record.
func (u Update) apply(rec *Record, now time.Time) {
	if u.Email != nil {
		rec.Email = *u.Email
	}
	if u.RepoName != nil {
		rec.RepoName = *u.RepoName
	}
	if u.RepoURL != nil {
		rec.RepoURL = *u.RepoURL
	}
	if u.LatestCommitSHA != nil {
		rec.LatestCommitSHA = *u.LatestCommitSHA
	}
	if u.PagesURL != nil {
		rec.PagesURL = *u.PagesURL
	}
	if u.LatestRound != nil && *u.LatestRound > rec.LatestRound {
		rec.LatestRound = *u.LatestRound
	}
	rec.UpdatedAt = now
}
