package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// newTestHost points a host at a local API stub with an unbounded
// limiter. The stubs answer deterministically, so no call retries.
func newTestHost(t *testing.T, mux *http.ServeMux) *GitHubHost {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return &GitHubHost{
		gh:      client,
		owner:   "octo",
		limiter: rate.NewLimiter(rate.Inf, 1),
		retry:   DefaultRetryConfig(),
		logger:  zap.NewNop(),
	}
}

func TestListEntriesNormalizesFilesAndDirs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/site/contents/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		fmt.Fprint(w, `[
			{"type":"file","name":"index.html","path":"index.html","size":120,"sha":"abc123"},
			{"type":"dir","name":"attachments","path":"attachments"}
		]`)
	})
	h := newTestHost(t, mux)

	entries, err := h.ListEntries(context.Background(), "site", "main", "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	file, ok := entries[0].(FileEntry)
	require.True(t, ok)
	assert.Equal(t, "index.html", file.Name)
	assert.Equal(t, 120, file.Size)
	assert.Equal(t, "abc123", file.SHA)

	dir, ok := entries[1].(DirEntry)
	require.True(t, ok)
	assert.Equal(t, "attachments", dir.Path)
}

func TestListEntriesCollapsesSingleFileShape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/site/contents/index.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"file","name":"index.html","path":"index.html","size":5,"sha":"abc123"}`)
	})
	h := newTestHost(t, mux)

	entries, err := h.ListEntries(context.Background(), "site", "main", "index.html")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "index.html", entries[0].EntryPath())
}

func TestReadFileDecodesContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/site/contents/README.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"file","name":"README.md","path":"README.md","encoding":"base64","content":"aGVsbG8="}`)
	})
	h := newTestHost(t, mux)

	content, err := h.ReadFile(context.Background(), "site", "main", "README.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)
}

func TestReadFileMissingIsErrNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/site/contents/missing.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	h := newTestHost(t, mux)

	_, err := h.ReadFile(context.Background(), "site", "main", "missing.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStatFileReturnsMetadataOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/site/contents/script.js", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"file","name":"script.js","path":"script.js","size":42,"sha":"def456"}`)
	})
	h := newTestHost(t, mux)

	entry, err := h.StatFile(context.Background(), "site", "main", "script.js")
	require.NoError(t, err)
	assert.Equal(t, "def456", entry.SHA)
	assert.Equal(t, 42, entry.Size)
}

func TestBranchHeadOnEmptyRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/site/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		// GitHub reports 409 for ref lookups on a repo with no commits.
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message":"Git Repository is empty."}`)
	})
	h := newTestHost(t, mux)

	_, _, err := h.BranchHead(context.Background(), "site", "main")
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestBranchHeadResolvesCommitAndTree(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/site/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ref":"refs/heads/main","object":{"type":"commit","sha":"c0ffee"}}`)
	})
	mux.HandleFunc("/repos/octo/site/git/commits/c0ffee", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sha":"c0ffee","tree":{"sha":"7ree"}}`)
	})
	h := newTestHost(t, mux)

	commitSHA, treeSHA, err := h.BranchHead(context.Background(), "site", "main")
	require.NoError(t, err)
	assert.Equal(t, "c0ffee", commitSHA)
	assert.Equal(t, "7ree", treeSHA)
}

func TestEnablePagesTreatsAlreadyEnabledAsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/site/pages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message":"GitHub Pages is already enabled."}`)
	})
	h := newTestHost(t, mux)

	assert.NoError(t, h.EnablePages(context.Background(), "site", "main"))
}

func TestLatestPipelineRunBeforeFirstTrigger(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/site/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count":0,"workflow_runs":[]}`)
	})
	h := newTestHost(t, mux)

	run, err := h.LatestPipelineRun(context.Background(), "site")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestLatestPipelineRunReportsNewest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/site/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("per_page"))
		fmt.Fprint(w, `{"total_count":3,"workflow_runs":[{"id":99,"status":"completed","conclusion":"success"}]}`)
	})
	h := newTestHost(t, mux)

	run, err := h.LatestPipelineRun(context.Background(), "site")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, int64(99), run.ID)
	assert.True(t, run.Succeeded())
}

func TestPagesURL(t *testing.T) {
	h := &GitHubHost{owner: "octo"}
	assert.Equal(t, "https://octo.github.io/generated-task-1/", h.PagesURL("generated-task-1"))
}
