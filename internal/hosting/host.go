package hosting

import "context"

// Host is the repository-hosting collaborator consumed by the core.
//
// Every method is a suspension point: implementations must honor ctx
// cancellation and must not hold caller locks while blocked.
type Host interface {
	// Owner returns the account all repositories are created under.
	Owner() string

	// CreateRepository creates a new public repository with no initial
	// commit. The returned Repository carries the canonical HTML URL.
	CreateRepository(ctx context.Context, name, description string) (*Repository, error)

	// GetRepository fetches an existing repository, or ErrNotFound.
	GetRepository(ctx context.Context, name string) (*Repository, error)

	// ListEntries lists one directory level, normalized to the
	// FileEntry | DirEntry sum type. Path "" is the repository root.
	ListEntries(ctx context.Context, repo, branch, path string) ([]Entry, error)

	// ReadFile returns the decoded content of one file, or ErrNotFound.
	ReadFile(ctx context.Context, repo, branch, path string) ([]byte, error)

	// StatFile returns metadata for one file without its content, or
	// ErrNotFound. Used by the non-atomic commit fallback, which needs
	// the current blob SHA to update or delete a path.
	StatFile(ctx context.Context, repo, branch, path string) (*FileEntry, error)

	// BranchHead resolves the tip of branch to its commit SHA and the
	// SHA of the tree that commit references. ErrBranchNotFound on an
	// empty repository.
	BranchHead(ctx context.Context, repo, branch string) (commitSHA, treeSHA string, err error)

	// ListTree lists every blob reachable from the given tree,
	// recursively, with path, blob SHA, and file mode.
	ListTree(ctx context.Context, repo, treeSHA string) ([]TreeEntry, error)

	// CreateBlob stores an immutable content object and returns its SHA.
	CreateBlob(ctx context.Context, repo string, content []byte) (string, error)

	// CreateTree builds a tree from entries, layered on baseTreeSHA when
	// non-empty, and returns the new tree's SHA.
	CreateTree(ctx context.Context, repo, baseTreeSHA string, entries []TreeEntry) (string, error)

	// CreateCommit creates a commit object referencing treeSHA and the
	// given parents (none for the first commit on an empty repository).
	CreateCommit(ctx context.Context, repo, message, treeSHA string, parentSHAs []string) (string, error)

	// UpdateBranch moves branch to commitSHA, creating the ref when it
	// does not exist yet. This is the only mutation other readers can
	// observe from a commit sequence.
	UpdateBranch(ctx context.Context, repo, branch, commitSHA string) error

	// PutFile creates or updates a single file through the contents API
	// (non-atomic fallback path). sha is the current blob SHA when
	// updating, empty when creating.
	PutFile(ctx context.Context, repo, branch, path, message string, content []byte, sha string) (commitSHA string, err error)

	// DeleteFile removes a single file through the contents API.
	DeleteFile(ctx context.Context, repo, branch, path, message, sha string) (commitSHA string, err error)

	// LatestPipelineRun returns the most recent workflow run for the
	// repository, or nil when no run has registered yet.
	LatestPipelineRun(ctx context.Context, repo string) (*PipelineRun, error)

	// EnablePages turns on workflow-driven Pages builds for the
	// repository's default branch.
	EnablePages(ctx context.Context, repo, branch string) error
}
