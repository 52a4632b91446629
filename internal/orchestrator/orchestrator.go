package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PrathamGupta06/website-developer/internal/commit"
	"github.com/PrathamGupta06/website-developer/internal/deploy"
	"github.com/PrathamGupta06/website-developer/internal/dispatch"
	"github.com/PrathamGupta06/website-developer/internal/hosting"
	"github.com/PrathamGupta06/website-developer/internal/notify"
	"github.com/PrathamGupta06/website-developer/internal/scaffold"
	"github.com/PrathamGupta06/website-developer/internal/staging"
	"github.com/PrathamGupta06/website-developer/internal/taskindex"
)

// DefaultBranch is the branch all rounds publish to.
const DefaultBranch = "main"

// ErrRoundActive is returned when a round is requested for a task that
// already has one in flight.
var ErrRoundActive = errors.New("orchestrator: round already in progress for task")

// Request carries one validated build request.
type Request struct {
	TaskID      string
	Email       string
	Round       int
	Nonce       string
	Brief       string
	Checks      []string
	CallbackURL string
	Attachments []scaffold.Attachment
}

// Outcome is the result of one round.
type Outcome struct {
	RoundID   string        `json:"round_id"`
	TaskID    string        `json:"task_id"`
	Round     int           `json:"round"`
	RepoName  string        `json:"repo_name"`
	RepoURL   string        `json:"repo_url"`
	PagesURL  string        `json:"pages_url"`
	CommitSHA string        `json:"commit_sha"`
	Commit    commit.Result `json:"commit"`
	Deploy    deploy.Status `json:"deploy"`
	Delivered bool          `json:"delivered"`
}

// repoHost is the subset of the hosting client the orchestrator uses
// for repository setup.
type repoHost interface {
	CreateRepository(ctx context.Context, name, description string) (*hosting.Repository, error)
	GetRepository(ctx context.Context, name string) (*hosting.Repository, error)
	EnablePages(ctx context.Context, repo, branch string) error
	PagesURL(repo string) string
}

// committer publishes a staging snapshot.
type committer interface {
	Commit(ctx context.Context, repo, branch string, snap staging.Snapshot, message string, mode commit.Mode) (*commit.Result, error)
}

// readinessWaiter blocks until the deployment settles.
type readinessWaiter interface {
	Wait(ctx context.Context, repo, artifactURL string) deploy.Status
}

// deliverer posts the completion payload.
type deliverer interface {
	Deliver(ctx context.Context, url string, payload dispatch.Payload) bool
}

// Orchestrator runs build rounds.
type Orchestrator struct {
	host       repoHost
	generator  scaffold.Generator
	committer  committer
	poller     readinessWaiter
	dispatcher deliverer
	index      taskindex.Store
	notifier   notify.Notifier
	mode       commit.Mode
	logger     *zap.Logger

	activeMu sync.Mutex
	active   map[string]struct{}
}

// New creates an orchestrator.
func New(host repoHost, gen scaffold.Generator, c committer, p readinessWaiter, d deliverer, index taskindex.Store, notifier notify.Notifier, mode commit.Mode, logger *zap.Logger) *Orchestrator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		host:       host,
		generator:  gen,
		committer:  c,
		poller:     p,
		dispatcher: d,
		index:      index,
		notifier:   notifier,
		mode:       mode,
		logger:     logger.Named("orchestrator"),
		active:     make(map[string]struct{}),
	}
}

// Run executes one round end to end. It returns an error only for
// conditions fatal to the round: a second in-flight round for the same
// task, the index or host unreachable at setup, or commit failure.
// Everything downstream of the commit degrades into the Outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if !o.acquire(req.TaskID) {
		RoundsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrRoundActive, req.TaskID)
	}
	defer o.release(req.TaskID)

	out := &Outcome{
		RoundID: uuid.NewString(),
		TaskID:  req.TaskID,
		Round:   req.Round,
	}
	log := o.logger.With(
		zap.String("task_id", req.TaskID),
		zap.String("round_id", out.RoundID),
		zap.Int("round", req.Round),
	)
	started := time.Now()
	log.Info("round started", zap.Int("attachments", len(req.Attachments)))
	o.notifier.Notify(ctx, notify.Event{
		Kind: "round_started", TaskID: req.TaskID, RoundID: out.RoundID, Round: req.Round,
	})

	repo, err := o.setupRepository(ctx, req, log)
	if err != nil {
		RoundsTotal.WithLabelValues("setup_failed").Inc()
		o.notifyFailure(ctx, out, started, err)
		return nil, err
	}
	out.RepoName = repo.Name
	out.RepoURL = repo.HTMLURL
	out.PagesURL = o.host.PagesURL(repo.Name)

	area := staging.New()
	if err := o.generator.Generate(ctx, area, scaffold.Request{
		Brief:       req.Brief,
		Checks:      req.Checks,
		Round:       req.Round,
		Attachments: req.Attachments,
	}); err != nil {
		RoundsTotal.WithLabelValues("canceled").Inc()
		o.notifyFailure(ctx, out, started, err)
		return nil, fmt.Errorf("generate content: %w", err)
	}

	snap := area.Snapshot()
	// The area is single-use: whatever happens to this attempt, nothing
	// staged here may leak into a later round.
	area.Clear()

	message := fmt.Sprintf("Round %d: automated site update", req.Round)
	res, err := o.committer.Commit(ctx, repo.Name, DefaultBranch, snap, message, o.mode)
	if err != nil {
		CommitsTotal.WithLabelValues("error").Inc()
		RoundsTotal.WithLabelValues("commit_failed").Inc()
		o.notifyFailure(ctx, out, started, err)
		return nil, fmt.Errorf("publish round: %w", err)
	}
	CommitsTotal.WithLabelValues("success").Inc()
	out.Commit = *res
	out.CommitSHA = res.CommitSHA

	out.Deploy = o.poller.Wait(ctx, repo.Name, out.PagesURL)

	if req.CallbackURL != "" {
		out.Delivered = o.dispatcher.Deliver(ctx, req.CallbackURL, dispatch.Payload{
			Email:     req.Email,
			Task:      req.TaskID,
			Round:     req.Round,
			Nonce:     req.Nonce,
			RepoURL:   out.RepoURL,
			CommitSHA: out.CommitSHA,
			PagesURL:  out.PagesURL,
		})
		if out.Delivered {
			DeliveriesTotal.WithLabelValues("accepted").Inc()
		} else {
			DeliveriesTotal.WithLabelValues("exhausted").Inc()
		}
	}

	// The round has materially succeeded once the commit is published;
	// an index write failure is logged, not escalated.
	if _, err := o.index.Upsert(ctx, req.TaskID, taskindex.Update{
		Email:           taskindex.String(req.Email),
		RepoName:        taskindex.String(out.RepoName),
		RepoURL:         taskindex.String(out.RepoURL),
		LatestCommitSHA: taskindex.String(out.CommitSHA),
		PagesURL:        taskindex.String(out.PagesURL),
		LatestRound:     taskindex.Int(req.Round),
	}); err != nil {
		log.Error("task index update failed", zap.Error(err))
	}

	elapsed := time.Since(started)
	RoundsTotal.WithLabelValues("completed").Inc()
	RoundDuration.Observe(elapsed.Seconds())
	log.Info("round finished",
		zap.String("commit", out.CommitSHA),
		zap.Bool("pipeline_succeeded", out.Deploy.PipelineSucceeded),
		zap.Bool("artifact_reachable", out.Deploy.ArtifactReachable),
		zap.Bool("delivered", out.Delivered),
		zap.Duration("elapsed", elapsed),
	)
	o.notifier.Notify(ctx, notify.Event{
		Kind:    "round_finished",
		TaskID:  req.TaskID,
		RoundID: out.RoundID,
		Round:   req.Round,
		Elapsed: elapsed,
		Detail: fmt.Sprintf("commit %s, reachable=%t, delivered=%t",
			out.CommitSHA, out.Deploy.ArtifactReachable, out.Delivered),
	})
	return out, nil
}

// setupRepository resolves the repository for this round: the one the
// index already knows, or a freshly created one for a first round.
func (o *Orchestrator) setupRepository(ctx context.Context, req Request, log *zap.Logger) (*hosting.Repository, error) {
	rec, err := o.index.Get(ctx, req.TaskID)
	if err != nil {
		return nil, fmt.Errorf("index lookup: %w", err)
	}

	if rec != nil && rec.RepoName != "" {
		repo, err := o.host.GetRepository(ctx, rec.RepoName)
		if err != nil {
			return nil, fmt.Errorf("fetch repository %s: %w", rec.RepoName, err)
		}
		log.Info("reusing repository", zap.String("repo", repo.Name), zap.Int("latest_round", rec.LatestRound))
		return repo, nil
	}

	name := "generated-" + req.TaskID
	repo, err := o.host.CreateRepository(ctx, name, fmt.Sprintf("Generated website for task %s", req.TaskID))
	if err != nil {
		// A reused task id after an index wipe: the repository may
		// already exist.
		existing, getErr := o.host.GetRepository(ctx, name)
		if getErr != nil {
			return nil, fmt.Errorf("create repository %s: %w", name, err)
		}
		log.Info("repository already exists, reusing", zap.String("repo", name))
		repo = existing
	} else {
		log.Info("created repository", zap.String("repo", repo.Name))
	}

	if err := o.host.EnablePages(ctx, repo.Name, DefaultBranch); err != nil {
		// Pages enablement is retried implicitly: builds for the branch
		// still trigger once the site is configured host-side.
		log.Warn("could not enable pages", zap.String("repo", repo.Name), zap.Error(err))
	}
	return repo, nil
}

func (o *Orchestrator) notifyFailure(ctx context.Context, out *Outcome, started time.Time, err error) {
	o.notifier.Notify(ctx, notify.Event{
		Kind:    "round_failed",
		TaskID:  out.TaskID,
		RoundID: out.RoundID,
		Round:   out.Round,
		Elapsed: time.Since(started),
		Detail:  err.Error(),
	})
}

func (o *Orchestrator) acquire(taskID string) bool {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	if _, busy := o.active[taskID]; busy {
		return false
	}
	o.active[taskID] = struct{}{}
	return true
}

func (o *Orchestrator) release(taskID string) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	delete(o.active, taskID)
}
