package commit

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/PrathamGupta06/website-developer/internal/hosting"
	"github.com/PrathamGupta06/website-developer/internal/staging"
)

// Mode selects how a snapshot is published.
type Mode int

const (
	// ModeAtomic publishes the whole snapshot as exactly one commit.
	ModeAtomic Mode = iota

	// ModePerFile publishes each staged path as its own commit through
	// the contents API. Partial application is possible; failed paths
	// are skipped and reported.
	ModePerFile
)

// Result is the outcome of one commit attempt.
type Result struct {
	CommitSHA string
	Created   int
	Modified  int
	Deleted   int
}

// ErrNothingStaged is returned when the snapshot is empty and the branch
// does not exist yet, so there is nothing to publish.
var ErrNothingStaged = errors.New("commit: nothing staged")

// Builder converts staging snapshots into commits against a host.
type Builder struct {
	host   hosting.Host
	logger *zap.Logger
}

// NewBuilder creates a commit builder.
func NewBuilder(host hosting.Host, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{host: host, logger: logger.Named("commit")}
}

// Commit publishes snap against repo's branch with the given message.
//
// On any failure the round is not published: the branch ref is only
// moved after every object exists, so no partial tree is ever visible.
// Re-invoking with an unchanged snapshot against an unchanged tip is
// safe but produces a new commit object; callers must clear the staging
// area after any attempt.
func (b *Builder) Commit(ctx context.Context, repo, branch string, snap staging.Snapshot, message string, mode Mode) (*Result, error) {
	if mode == ModePerFile {
		return b.commitPerFile(ctx, repo, branch, snap, message)
	}
	return b.commitAtomic(ctx, repo, branch, snap, message)
}

func (b *Builder) commitAtomic(ctx context.Context, repo, branch string, snap staging.Snapshot, message string) (*Result, error) {
	parentSHA, baseTreeSHA, err := b.host.BranchHead(ctx, repo, branch)
	if err != nil && !errors.Is(err, hosting.ErrBranchNotFound) {
		return nil, fmt.Errorf("resolve tip: %w", err)
	}
	firstCommit := errors.Is(err, hosting.ErrBranchNotFound)

	if snap.Empty() && firstCommit {
		return nil, ErrNothingStaged
	}

	// Base listing, for created-vs-modified accounting and for building
	// the replacement tree when deletions are staged.
	var base []hosting.TreeEntry
	if !firstCommit {
		base, err = b.host.ListTree(ctx, repo, baseTreeSHA)
		if err != nil {
			return nil, fmt.Errorf("list base tree: %w", err)
		}
	}
	existing := make(map[string]hosting.TreeEntry, len(base))
	for _, e := range base {
		existing[e.Path] = e
	}

	result := &Result{}

	entries := make([]hosting.TreeEntry, 0, len(snap.Upserts))
	for _, path := range sortedPaths(snap.Upserts) {
		blobSHA, err := b.host.CreateBlob(ctx, repo, snap.Upserts[path])
		if err != nil {
			return nil, fmt.Errorf("create blob for %q: %w", path, err)
		}
		entries = append(entries, hosting.TreeEntry{
			Path:    path,
			BlobSHA: blobSHA,
			Mode:    hosting.FileModeBlob,
		})
		if _, ok := existing[path]; ok {
			result.Modified++
		} else {
			result.Created++
		}
	}

	for path := range snap.Deletes {
		if _, ok := existing[path]; ok {
			result.Deleted++
		}
	}

	// A tree represents "file not present" by absence. When deletions
	// are staged the new tree is a complete replacement listing with the
	// tombstoned paths left out; otherwise it layers on the base tree.
	baseForTree := baseTreeSHA
	if result.Deleted > 0 {
		baseForTree = ""
		staged := make(map[string]struct{}, len(snap.Upserts))
		for path := range snap.Upserts {
			staged[path] = struct{}{}
		}
		for _, e := range base {
			if _, isUpsert := staged[e.Path]; isUpsert {
				continue
			}
			if _, isDeleted := snap.Deletes[e.Path]; isDeleted {
				continue
			}
			entries = append(entries, e)
		}
	}

	// An empty snapshot against an existing base reuses the base tree:
	// the new commit's tree is content-identical to the parent's.
	treeSHA := baseTreeSHA
	if len(entries) > 0 || baseForTree == "" {
		treeSHA, err = b.host.CreateTree(ctx, repo, baseForTree, entries)
		if err != nil {
			return nil, fmt.Errorf("create tree: %w", err)
		}
	}

	var parents []string
	if !firstCommit {
		parents = []string{parentSHA}
	}
	commitSHA, err := b.host.CreateCommit(ctx, repo, message, treeSHA, parents)
	if err != nil {
		return nil, fmt.Errorf("create commit: %w", err)
	}

	// The only mutation other readers can observe. A concurrent tip move
	// rejects this update and the whole round fails; retry from a fresh
	// tip if the previous attempt truly failed.
	if err := b.host.UpdateBranch(ctx, repo, branch, commitSHA); err != nil {
		return nil, fmt.Errorf("update branch: %w", err)
	}

	result.CommitSHA = commitSHA
	b.logger.Info("published commit",
		zap.String("repo", repo),
		zap.String("commit", commitSHA),
		zap.Int("created", result.Created),
		zap.Int("modified", result.Modified),
		zap.Int("deleted", result.Deleted),
	)
	return result, nil
}

// commitPerFile publishes each path independently. Failed paths are
// skipped; the joined error reports them while the result still carries
// whatever was applied.
func (b *Builder) commitPerFile(ctx context.Context, repo, branch string, snap staging.Snapshot, message string) (*Result, error) {
	result := &Result{}
	var errs []error

	for _, path := range sortedPaths(snap.Upserts) {
		stat, err := b.host.StatFile(ctx, repo, branch, path)
		if err != nil && !errors.Is(err, hosting.ErrNotFound) {
			errs = append(errs, fmt.Errorf("stat %q: %w", path, err))
			continue
		}

		sha := ""
		if stat != nil {
			sha = stat.SHA
		}
		commitSHA, err := b.host.PutFile(ctx, repo, branch, path, fmt.Sprintf("%s: %s", message, path), snap.Upserts[path], sha)
		if err != nil {
			b.logger.Warn("could not put file", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		result.CommitSHA = commitSHA
		if stat != nil {
			result.Modified++
		} else {
			result.Created++
		}
	}

	deletes := make([]string, 0, len(snap.Deletes))
	for path := range snap.Deletes {
		deletes = append(deletes, path)
	}
	sort.Strings(deletes)
	for _, path := range deletes {
		stat, err := b.host.StatFile(ctx, repo, branch, path)
		if errors.Is(err, hosting.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("stat %q: %w", path, err))
			continue
		}

		commitSHA, err := b.host.DeleteFile(ctx, repo, branch, path, fmt.Sprintf("%s: delete %s", message, path), stat.SHA)
		if err != nil {
			b.logger.Warn("could not delete file", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		result.CommitSHA = commitSHA
		result.Deleted++
	}

	return result, errors.Join(errs...)
}

func sortedPaths(m map[string][]byte) []string {
	paths := make([]string, 0, len(m))
	for path := range m {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
