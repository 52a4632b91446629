package commit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrathamGupta06/website-developer/internal/hosting"
	"github.com/PrathamGupta06/website-developer/internal/staging"
)

// fakeHost is an in-memory git object store implementing hosting.Host.
type fakeHost struct {
	nextID   int
	branches map[string]string // branch -> commit SHA
	commits  map[string]fakeCommit
	trees    map[string][]hosting.TreeEntry
	blobs    map[string][]byte

	// contents-API view for the per-file fallback: path -> blob SHA
	files map[string]string

	failUpdateBranch error
	failCreateBlob   error
	putFileErrs      map[string]error
}

type fakeCommit struct {
	message string
	treeSHA string
	parents []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		branches: make(map[string]string),
		commits:  make(map[string]fakeCommit),
		trees:    make(map[string][]hosting.TreeEntry),
		blobs:    make(map[string][]byte),
		files:    make(map[string]string),
	}
}

func (f *fakeHost) sha(kind string) string {
	f.nextID++
	return fmt.Sprintf("%s-%04d", kind, f.nextID)
}

// seed installs a branch tip whose tree contains the given files.
func (f *fakeHost) seed(branch string, files map[string]string) {
	var entries []hosting.TreeEntry
	for path, content := range files {
		blobSHA := f.sha("blob")
		f.blobs[blobSHA] = []byte(content)
		f.files[path] = blobSHA
		entries = append(entries, hosting.TreeEntry{Path: path, BlobSHA: blobSHA, Mode: hosting.FileModeBlob})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	treeSHA := f.sha("tree")
	f.trees[treeSHA] = entries
	commitSHA := f.sha("commit")
	f.commits[commitSHA] = fakeCommit{message: "seed", treeSHA: treeSHA}
	f.branches[branch] = commitSHA
}

func (f *fakeHost) Owner() string { return "octo" }

func (f *fakeHost) CreateRepository(ctx context.Context, name, description string) (*hosting.Repository, error) {
	return &hosting.Repository{Owner: "octo", Name: name, DefaultBranch: "main"}, nil
}

func (f *fakeHost) GetRepository(ctx context.Context, name string) (*hosting.Repository, error) {
	return &hosting.Repository{Owner: "octo", Name: name, DefaultBranch: "main"}, nil
}

func (f *fakeHost) ListEntries(ctx context.Context, repo, branch, path string) ([]hosting.Entry, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeHost) ReadFile(ctx context.Context, repo, branch, path string) ([]byte, error) {
	sha, ok := f.files[path]
	if !ok {
		return nil, hosting.ErrNotFound
	}
	return f.blobs[sha], nil
}

func (f *fakeHost) StatFile(ctx context.Context, repo, branch, path string) (*hosting.FileEntry, error) {
	sha, ok := f.files[path]
	if !ok {
		return nil, hosting.ErrNotFound
	}
	return &hosting.FileEntry{Name: path, Path: path, SHA: sha}, nil
}

func (f *fakeHost) BranchHead(ctx context.Context, repo, branch string) (string, string, error) {
	commitSHA, ok := f.branches[branch]
	if !ok {
		return "", "", hosting.ErrBranchNotFound
	}
	return commitSHA, f.commits[commitSHA].treeSHA, nil
}

func (f *fakeHost) ListTree(ctx context.Context, repo, treeSHA string) ([]hosting.TreeEntry, error) {
	entries, ok := f.trees[treeSHA]
	if !ok {
		return nil, fmt.Errorf("unknown tree %s", treeSHA)
	}
	return entries, nil
}

func (f *fakeHost) CreateBlob(ctx context.Context, repo string, content []byte) (string, error) {
	if f.failCreateBlob != nil {
		return "", f.failCreateBlob
	}
	sha := f.sha("blob")
	f.blobs[sha] = content
	return sha, nil
}

func (f *fakeHost) CreateTree(ctx context.Context, repo, baseTreeSHA string, entries []hosting.TreeEntry) (string, error) {
	merged := make(map[string]hosting.TreeEntry)
	if baseTreeSHA != "" {
		base, ok := f.trees[baseTreeSHA]
		if !ok {
			return "", fmt.Errorf("unknown base tree %s", baseTreeSHA)
		}
		for _, e := range base {
			merged[e.Path] = e
		}
	}
	for _, e := range entries {
		if _, ok := f.blobs[e.BlobSHA]; !ok {
			return "", fmt.Errorf("entry %q references nonexistent blob %s", e.Path, e.BlobSHA)
		}
		merged[e.Path] = e
	}

	flat := make([]hosting.TreeEntry, 0, len(merged))
	for _, e := range merged {
		flat = append(flat, e)
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].Path < flat[j].Path })

	sha := f.sha("tree")
	f.trees[sha] = flat
	return sha, nil
}

func (f *fakeHost) CreateCommit(ctx context.Context, repo, message, treeSHA string, parents []string) (string, error) {
	if _, ok := f.trees[treeSHA]; !ok {
		return "", fmt.Errorf("unknown tree %s", treeSHA)
	}
	sha := f.sha("commit")
	f.commits[sha] = fakeCommit{message: message, treeSHA: treeSHA, parents: parents}
	return sha, nil
}

func (f *fakeHost) UpdateBranch(ctx context.Context, repo, branch, commitSHA string) error {
	if f.failUpdateBranch != nil {
		return f.failUpdateBranch
	}
	f.branches[branch] = commitSHA
	return nil
}

func (f *fakeHost) PutFile(ctx context.Context, repo, branch, path, message string, content []byte, sha string) (string, error) {
	if err := f.putFileErrs[path]; err != nil {
		return "", err
	}
	blobSHA := f.sha("blob")
	f.blobs[blobSHA] = content
	f.files[path] = blobSHA
	return f.sha("commit"), nil
}

func (f *fakeHost) DeleteFile(ctx context.Context, repo, branch, path, message, sha string) (string, error) {
	delete(f.files, path)
	return f.sha("commit"), nil
}

func (f *fakeHost) LatestPipelineRun(ctx context.Context, repo string) (*hosting.PipelineRun, error) {
	return nil, nil
}

func (f *fakeHost) EnablePages(ctx context.Context, repo, branch string) error { return nil }

func (f *fakeHost) treePaths(t *testing.T, treeSHA string) []string {
	t.Helper()
	entries, ok := f.trees[treeSHA]
	require.True(t, ok, "tree %s must exist", treeSHA)
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths
}

func stageAll(upserts map[string]string, deletes ...string) staging.Snapshot {
	area := staging.New()
	for path, content := range upserts {
		area.StageUpsert(path, []byte(content))
	}
	for _, path := range deletes {
		area.StageDelete(path)
	}
	return area.Snapshot()
}

func TestAtomicCommitOnEmptyRepository(t *testing.T) {
	host := newFakeHost()
	b := NewBuilder(host, nil)

	snap := stageAll(map[string]string{
		"index.html": "<html>",
		"style.css":  "body{}",
		"script.js":  "void 0",
	}, "ghost.txt")

	result, err := b.Commit(context.Background(), "r", "main", snap, "initial site", ModeAtomic)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 0, result.Modified)
	assert.Equal(t, 0, result.Deleted, "nothing to delete in an empty repo")
	require.NotEmpty(t, result.CommitSHA)

	published := host.commits[host.branches["main"]]
	assert.Empty(t, published.parents, "first commit has no parent")
	assert.ElementsMatch(t, []string{"index.html", "script.js", "style.css"}, host.treePaths(t, published.treeSHA))
}

func TestAtomicCommitDeletionsOmitPathsFromTree(t *testing.T) {
	host := newFakeHost()
	host.seed("main", map[string]string{
		"index.html": "old",
		"style.css":  "old",
		"legacy.js":  "old",
	})
	oldTip := host.branches["main"]
	b := NewBuilder(host, nil)

	snap := stageAll(map[string]string{"index.html": "new"}, "legacy.js")

	result, err := b.Commit(context.Background(), "r", "main", snap, "round 2", ModeAtomic)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 1, result.Deleted)

	published := host.commits[host.branches["main"]]
	assert.Equal(t, []string{oldTip}, published.parents)
	assert.ElementsMatch(t, []string{"index.html", "style.css"}, host.treePaths(t, published.treeSHA),
		"new tree omits exactly the tombstoned path and keeps the rest")
}

func TestAtomicCommitEmptySnapshotReproducesBaseTree(t *testing.T) {
	host := newFakeHost()
	host.seed("main", map[string]string{"index.html": "x", "style.css": "y"})
	oldTip := host.branches["main"]
	oldTree := host.commits[oldTip].treeSHA
	b := NewBuilder(host, nil)

	_, err := b.Commit(context.Background(), "r", "main", staging.New().Snapshot(), "noop", ModeAtomic)
	require.NoError(t, err)

	newTip := host.branches["main"]
	assert.NotEqual(t, oldTip, newTip, "a new commit object is still created")
	assert.Equal(t, oldTree, host.commits[newTip].treeSHA, "tree is content-identical to the base")
}

func TestAtomicCommitCreatedVsModifiedAccounting(t *testing.T) {
	host := newFakeHost()
	host.seed("main", map[string]string{"index.html": "v1"})
	b := NewBuilder(host, nil)

	snap := stageAll(map[string]string{
		"index.html": "v2",    // exists: modified
		"about.html": "fresh", // new: created
	})

	result, err := b.Commit(context.Background(), "r", "main", snap, "round", ModeAtomic)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Modified)
}

func TestAtomicCommitRefUpdateFailureLeavesBranchUntouched(t *testing.T) {
	host := newFakeHost()
	host.seed("main", map[string]string{"index.html": "v1"})
	oldTip := host.branches["main"]
	host.failUpdateBranch = errors.New("ref moved concurrently")
	b := NewBuilder(host, nil)

	_, err := b.Commit(context.Background(), "r", "main", stageAll(map[string]string{"index.html": "v2"}), "round", ModeAtomic)
	require.Error(t, err)
	assert.Equal(t, oldTip, host.branches["main"], "no partial state is ever visible")
}

func TestAtomicCommitBlobFailureAbortsRound(t *testing.T) {
	host := newFakeHost()
	host.failCreateBlob = errors.New("content rejected")
	b := NewBuilder(host, nil)

	_, err := b.Commit(context.Background(), "r", "main", stageAll(map[string]string{"a": "x"}), "round", ModeAtomic)
	require.Error(t, err)
	assert.Empty(t, host.branches, "branch never created on failure")
}

func TestAtomicCommitNothingStagedOnEmptyRepo(t *testing.T) {
	host := newFakeHost()
	b := NewBuilder(host, nil)

	_, err := b.Commit(context.Background(), "r", "main", staging.New().Snapshot(), "noop", ModeAtomic)
	assert.ErrorIs(t, err, ErrNothingStaged)
}

func TestPerFileFallbackAppliesEachPath(t *testing.T) {
	host := newFakeHost()
	host.seed("main", map[string]string{"index.html": "v1", "legacy.js": "old"})
	b := NewBuilder(host, nil)

	snap := stageAll(map[string]string{
		"index.html": "v2",
		"about.html": "new page",
	}, "legacy.js")

	result, err := b.Commit(context.Background(), "r", "main", snap, "round", ModePerFile)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 1, result.Deleted)
	assert.NotEmpty(t, result.CommitSHA)

	assert.NotContains(t, host.files, "legacy.js")
	assert.Contains(t, host.files, "about.html")
}

func TestPerFileFallbackSkipsFailedPaths(t *testing.T) {
	host := newFakeHost()
	host.putFileErrs = map[string]error{"bad.html": errors.New("rejected")}
	b := NewBuilder(host, nil)

	snap := stageAll(map[string]string{"bad.html": "x", "good.html": "y"})

	result, err := b.Commit(context.Background(), "r", "main", snap, "round", ModePerFile)
	require.Error(t, err, "failed paths are reported")
	assert.Equal(t, 1, result.Created, "remaining paths still applied")
	assert.Contains(t, host.files, "good.html")
	assert.NotContains(t, host.files, "bad.html")
}
