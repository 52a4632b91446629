package hosting

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// GitHubConfig holds GitHub client configuration.
type GitHubConfig struct {
	// Token is the personal access token used for all API calls.
	Token string

	// Owner is the account repositories are created under. When empty,
	// the authenticated user's login is resolved at construction time.
	Owner string

	// RequestsPerSecond caps the client-side API call rate. Default: 5.
	RequestsPerSecond float64

	// Retry controls transient-error retry behavior.
	Retry RetryConfig
}

// GitHubHost implements Host against the GitHub REST API.
type GitHubHost struct {
	gh      *github.Client
	owner   string
	limiter *rate.Limiter
	retry   RetryConfig
	logger  *zap.Logger
}

var _ Host = (*GitHubHost)(nil)

// NewGitHubHost creates an authenticated GitHub host client.
func NewGitHubHost(ctx context.Context, cfg GitHubConfig, logger *zap.Logger) (*GitHubHost, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github token not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(ctx, ts)

	h := &GitHubHost{
		gh:      github.NewClient(tc),
		owner:   cfg.Owner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		retry:   cfg.Retry,
		logger:  logger.Named("github"),
	}

	if h.owner == "" {
		user, _, err := h.gh.Users.Get(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("resolve authenticated user: %w", err)
		}
		h.owner = user.GetLogin()
	}

	return h, nil
}

// Owner returns the account repositories are created under.
func (h *GitHubHost) Owner() string { return h.owner }

// call throttles and retries one API operation.
func (h *GitHubHost) call(ctx context.Context, op func() (*github.Response, error)) (*github.Response, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return retryOperation(ctx, h.retry, h.logger, op)
}

// CreateRepository creates a public repository with no initial commit.
func (h *GitHubHost) CreateRepository(ctx context.Context, name, description string) (*Repository, error) {
	var created *github.Repository
	_, err := h.call(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		created, resp, err = h.gh.Repositories.Create(ctx, "", &github.Repository{
			Name:        github.String(name),
			Description: github.String(description),
			Private:     github.Bool(false),
			AutoInit:    github.Bool(false),
		})
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("create repository %s: %w", name, err)
	}
	return h.toRepository(created), nil
}

// GetRepository fetches an existing repository.
func (h *GitHubHost) GetRepository(ctx context.Context, name string) (*Repository, error) {
	var repo *github.Repository
	resp, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		repo, r, err = h.gh.Repositories.Get(ctx, h.owner, name)
		return r, err
	})
	if err != nil {
		if statusCode(resp) == http.StatusNotFound {
			return nil, fmt.Errorf("repository %s/%s: %w", h.owner, name, ErrNotFound)
		}
		return nil, fmt.Errorf("get repository %s: %w", name, err)
	}
	return h.toRepository(repo), nil
}

func (h *GitHubHost) toRepository(r *github.Repository) *Repository {
	branch := r.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}
	return &Repository{
		Owner:         h.owner,
		Name:          r.GetName(),
		HTMLURL:       r.GetHTMLURL(),
		DefaultBranch: branch,
	}
}

// ListEntries lists one directory level, normalized to the sum type.
// The contents endpoint returns either a single object or a list
// depending on the path; both shapes collapse to []Entry here.
func (h *GitHubHost) ListEntries(ctx context.Context, repo, branch, path string) ([]Entry, error) {
	var file *github.RepositoryContent
	var dir []*github.RepositoryContent
	resp, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		file, dir, r, err = h.gh.Repositories.GetContents(ctx, h.owner, repo, path, &github.RepositoryContentGetOptions{Ref: branch})
		return r, err
	})
	if err != nil {
		if statusCode(resp) == http.StatusNotFound {
			return nil, fmt.Errorf("path %q in %s: %w", path, repo, ErrNotFound)
		}
		return nil, fmt.Errorf("list %q in %s: %w", path, repo, err)
	}

	if file != nil {
		dir = []*github.RepositoryContent{file}
	}
	entries := make([]Entry, 0, len(dir))
	for _, item := range dir {
		entries = append(entries, normalizeEntry(item))
	}
	return entries, nil
}

func normalizeEntry(item *github.RepositoryContent) Entry {
	if item.GetType() == "dir" {
		return DirEntry{Name: item.GetName(), Path: item.GetPath()}
	}
	return FileEntry{
		Name: item.GetName(),
		Path: item.GetPath(),
		Size: item.GetSize(),
		SHA:  item.GetSHA(),
	}
}

// ReadFile returns the decoded content of one file.
func (h *GitHubHost) ReadFile(ctx context.Context, repo, branch, path string) ([]byte, error) {
	var file *github.RepositoryContent
	resp, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		file, _, r, err = h.gh.Repositories.GetContents(ctx, h.owner, repo, path, &github.RepositoryContentGetOptions{Ref: branch})
		return r, err
	})
	if err != nil {
		if statusCode(resp) == http.StatusNotFound {
			return nil, fmt.Errorf("file %q in %s: %w", path, repo, ErrNotFound)
		}
		return nil, fmt.Errorf("read %q in %s: %w", path, repo, err)
	}
	if file == nil {
		return nil, fmt.Errorf("path %q in %s is a directory", path, repo)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %q in %s: %w", path, repo, err)
	}
	return []byte(content), nil
}

// StatFile returns metadata for one file without decoding its content.
func (h *GitHubHost) StatFile(ctx context.Context, repo, branch, path string) (*FileEntry, error) {
	var file *github.RepositoryContent
	resp, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		file, _, r, err = h.gh.Repositories.GetContents(ctx, h.owner, repo, path, &github.RepositoryContentGetOptions{Ref: branch})
		return r, err
	})
	if err != nil {
		if statusCode(resp) == http.StatusNotFound {
			return nil, fmt.Errorf("file %q in %s: %w", path, repo, ErrNotFound)
		}
		return nil, fmt.Errorf("stat %q in %s: %w", path, repo, err)
	}
	if file == nil {
		return nil, fmt.Errorf("path %q in %s is a directory", path, repo)
	}

	entry := normalizeEntry(file).(FileEntry)
	return &entry, nil
}

// BranchHead resolves the branch tip commit and its tree.
func (h *GitHubHost) BranchHead(ctx context.Context, repo, branch string) (string, string, error) {
	var ref *github.Reference
	resp, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		ref, r, err = h.gh.Git.GetRef(ctx, h.owner, repo, "heads/"+branch)
		return r, err
	})
	if err != nil {
		// 409 is what GitHub returns for a ref lookup on an empty repo.
		if code := statusCode(resp); code == http.StatusNotFound || code == http.StatusConflict {
			return "", "", ErrBranchNotFound
		}
		return "", "", fmt.Errorf("resolve branch %s of %s: %w", branch, repo, err)
	}

	commitSHA := ref.GetObject().GetSHA()

	var commit *github.Commit
	_, err = h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		commit, r, err = h.gh.Git.GetCommit(ctx, h.owner, repo, commitSHA)
		return r, err
	})
	if err != nil {
		return "", "", fmt.Errorf("fetch tip commit %s of %s: %w", commitSHA, repo, err)
	}

	return commitSHA, commit.GetTree().GetSHA(), nil
}

// ListTree lists every blob under a tree, recursively.
func (h *GitHubHost) ListTree(ctx context.Context, repo, treeSHA string) ([]TreeEntry, error) {
	var tree *github.Tree
	_, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		tree, r, err = h.gh.Git.GetTree(ctx, h.owner, repo, treeSHA, true)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("list tree %s of %s: %w", treeSHA, repo, err)
	}

	var entries []TreeEntry
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" {
			entries = append(entries, TreeEntry{
				Path:    entry.GetPath(),
				BlobSHA: entry.GetSHA(),
				Mode:    entry.GetMode(),
			})
		}
	}
	return entries, nil
}

// CreateBlob stores content as a base64-encoded blob; base64 keeps
// binary attachments intact.
func (h *GitHubHost) CreateBlob(ctx context.Context, repo string, content []byte) (string, error) {
	var blob *github.Blob
	_, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		blob, r, err = h.gh.Git.CreateBlob(ctx, h.owner, repo, &github.Blob{
			Content:  github.String(base64.StdEncoding.EncodeToString(content)),
			Encoding: github.String("base64"),
		})
		return r, err
	})
	if err != nil {
		return "", fmt.Errorf("create blob in %s: %w", repo, err)
	}
	return blob.GetSHA(), nil
}

// CreateTree builds a tree object layered on baseTreeSHA.
func (h *GitHubHost) CreateTree(ctx context.Context, repo, baseTreeSHA string, entries []TreeEntry) (string, error) {
	ghEntries := make([]*github.TreeEntry, 0, len(entries))
	for _, e := range entries {
		ghEntries = append(ghEntries, &github.TreeEntry{
			Path: github.String(e.Path),
			Mode: github.String(e.Mode),
			Type: github.String("blob"),
			SHA:  github.String(e.BlobSHA),
		})
	}

	var tree *github.Tree
	_, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		tree, r, err = h.gh.Git.CreateTree(ctx, h.owner, repo, baseTreeSHA, ghEntries)
		return r, err
	})
	if err != nil {
		return "", fmt.Errorf("create tree in %s: %w", repo, err)
	}
	return tree.GetSHA(), nil
}

// CreateCommit creates a commit object. parentSHAs is empty for the
// first commit on an empty repository.
func (h *GitHubHost) CreateCommit(ctx context.Context, repo, message, treeSHA string, parentSHAs []string) (string, error) {
	parents := make([]*github.Commit, 0, len(parentSHAs))
	for _, sha := range parentSHAs {
		parents = append(parents, &github.Commit{SHA: github.String(sha)})
	}

	var commit *github.Commit
	_, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		commit, r, err = h.gh.Git.CreateCommit(ctx, h.owner, repo, &github.Commit{
			Message: github.String(message),
			Tree:    &github.Tree{SHA: github.String(treeSHA)},
			Parents: parents,
		}, nil)
		return r, err
	})
	if err != nil {
		return "", fmt.Errorf("create commit in %s: %w", repo, err)
	}
	return commit.GetSHA(), nil
}

// UpdateBranch moves the branch ref to commitSHA, creating it when the
// repository has no commits yet. The update is non-forced: a concurrent
// tip move rejects it, which surfaces as a commit failure upstream.
func (h *GitHubHost) UpdateBranch(ctx context.Context, repo, branch, commitSHA string) error {
	ref := &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(commitSHA)},
	}

	resp, err := h.call(ctx, func() (*github.Response, error) {
		_, r, err := h.gh.Git.UpdateRef(ctx, h.owner, repo, ref, false)
		return r, err
	})
	if err == nil {
		return nil
	}

	if code := statusCode(resp); code == http.StatusNotFound || code == http.StatusUnprocessableEntity {
		_, err = h.call(ctx, func() (*github.Response, error) {
			_, r, err := h.gh.Git.CreateRef(ctx, h.owner, repo, ref)
			return r, err
		})
		if err != nil {
			return fmt.Errorf("create branch %s in %s: %w", branch, repo, err)
		}
		return nil
	}

	return fmt.Errorf("move branch %s in %s to %s: %w", branch, repo, commitSHA, err)
}

// PutFile creates or updates one file through the contents API.
func (h *GitHubHost) PutFile(ctx context.Context, repo, branch, path, message string, content []byte, sha string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	}
	if sha != "" {
		opts.SHA = github.String(sha)
	}

	var result *github.RepositoryContentResponse
	var err error
	if sha == "" {
		_, err = h.call(ctx, func() (*github.Response, error) {
			var r *github.Response
			var err error
			result, r, err = h.gh.Repositories.CreateFile(ctx, h.owner, repo, path, opts)
			return r, err
		})
	} else {
		_, err = h.call(ctx, func() (*github.Response, error) {
			var r *github.Response
			var err error
			result, r, err = h.gh.Repositories.UpdateFile(ctx, h.owner, repo, path, opts)
			return r, err
		})
	}
	if err != nil {
		return "", fmt.Errorf("put file %q in %s: %w", path, repo, err)
	}
	return result.GetSHA(), nil
}

// DeleteFile removes one file through the contents API.
func (h *GitHubHost) DeleteFile(ctx context.Context, repo, branch, path, message, sha string) (string, error) {
	var result *github.RepositoryContentResponse
	_, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		result, r, err = h.gh.Repositories.DeleteFile(ctx, h.owner, repo, path, &github.RepositoryContentFileOptions{
			Message: github.String(message),
			SHA:     github.String(sha),
			Branch:  github.String(branch),
		})
		return r, err
	})
	if err != nil {
		return "", fmt.Errorf("delete file %q in %s: %w", path, repo, err)
	}
	return result.GetSHA(), nil
}

// LatestPipelineRun returns the most recent workflow run, or nil when no
// run has registered yet (the pipeline trigger is asynchronous).
func (h *GitHubHost) LatestPipelineRun(ctx context.Context, repo string) (*PipelineRun, error) {
	var runs *github.WorkflowRuns
	_, err := h.call(ctx, func() (*github.Response, error) {
		var r *github.Response
		var err error
		runs, r, err = h.gh.Actions.ListRepositoryWorkflowRuns(ctx, h.owner, repo, &github.ListWorkflowRunsOptions{
			ListOptions: github.ListOptions{PerPage: 1},
		})
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("list workflow runs for %s: %w", repo, err)
	}
	if runs.GetTotalCount() == 0 || len(runs.WorkflowRuns) == 0 {
		return nil, nil
	}

	run := runs.WorkflowRuns[0]
	return &PipelineRun{
		ID:         run.GetID(),
		Status:     run.GetStatus(),
		Conclusion: run.GetConclusion(),
	}, nil
}

// EnablePages turns on workflow-driven Pages builds. An already-enabled
// site reports 409, which is not an error here.
func (h *GitHubHost) EnablePages(ctx context.Context, repo, branch string) error {
	resp, err := h.call(ctx, func() (*github.Response, error) {
		_, r, err := h.gh.Repositories.EnablePages(ctx, h.owner, repo, &github.Pages{
			BuildType: github.String("workflow"),
			Source: &github.PagesSource{
				Branch: github.String(branch),
				Path:   github.String("/"),
			},
		})
		return r, err
	})
	if err != nil {
		if statusCode(resp) == http.StatusConflict {
			h.logger.Debug("pages already enabled", zap.String("repo", repo))
			return nil
		}
		return fmt.Errorf("enable pages for %s: %w", repo, err)
	}
	return nil
}

// PagesURL returns the expected published site address for a repository.
func (h *GitHubHost) PagesURL(repo string) string {
	return fmt.Sprintf("https://%s.github.io/%s/", h.owner, repo)
}
