package hosting

import "errors"

var (
	// ErrBranchNotFound is returned when a branch ref does not exist yet,
	// which is the normal state of a freshly created empty repository.
	ErrBranchNotFound = errors.New("hosting: branch not found")

	// ErrNotFound is returned for missing repositories, files, or paths.
	ErrNotFound = errors.New("hosting: not found")
)

// Repository identifies a hosted repository.
type Repository struct {
	Owner         string
	Name          string
	HTMLURL       string
	DefaultBranch string
}

// FullName returns the owner-qualified repository name.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Entry is one item of a directory listing: a file or a directory.
// The host API reports both through one ambiguous shape; the client
// normalizes to this sum type at the boundary so downstream code never
// branches on raw payloads.
type Entry interface {
	EntryPath() string
}

// FileEntry describes a tracked file.
type FileEntry struct {
	Name string
	Path string
	Size int
	SHA  string
}

func (e FileEntry) EntryPath() string { return e.Path }

// DirEntry describes a subdirectory.
type DirEntry struct {
	Name string
	Path string
}

func (e DirEntry) EntryPath() string { return e.Path }

// TreeEntry is one path in a tree object under construction.
type TreeEntry struct {
	Path    string
	BlobSHA string
	Mode    string
}

// FileModeBlob is the regular-file mode used for generated content.
const FileModeBlob = "100644"

// Workflow run lifecycle values as reported by the host.
const (
	RunStatusCompleted = "completed"

	RunConclusionSuccess = "success"
)

// PipelineRun is the state of one workflow run.
type PipelineRun struct {
	ID         int64
	Status     string
	Conclusion string
}

// Completed reports whether the run reached a terminal status.
func (r PipelineRun) Completed() bool {
	return r.Status == RunStatusCompleted
}

// Succeeded reports whether the run completed with a successful conclusion.
func (r PipelineRun) Succeeded() bool {
	return r.Completed() && r.Conclusion == RunConclusionSuccess
}
