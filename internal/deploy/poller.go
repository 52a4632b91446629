package deploy

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/PrathamGupta06/website-developer/internal/hosting"
)

// Config bounds the readiness wait.
type Config struct {
	// StartGrace is slept before the first status check; the pipeline
	// trigger is asynchronous and a run may not have registered yet.
	// Default: 5s.
	StartGrace time.Duration

	// PollInterval is the delay between pipeline status checks.
	// Default: 10s.
	PollInterval time.Duration

	// PipelineTimeout bounds the whole pipeline wait. Default: 5m.
	PipelineTimeout time.Duration

	// ProbeAttempts is the maximum number of reachability probes.
	// Default: 30.
	ProbeAttempts int

	// ProbeInterval is the delay between reachability probes.
	// Default: 10s.
	ProbeInterval time.Duration

	// ProbeTimeout is the per-probe request timeout. Default: 10s.
	ProbeTimeout time.Duration
}

// DefaultConfig returns the default readiness budgets.
func DefaultConfig() Config {
	return Config{
		StartGrace:      5 * time.Second,
		PollInterval:    10 * time.Second,
		PipelineTimeout: 5 * time.Minute,
		ProbeAttempts:   30,
		ProbeInterval:   10 * time.Second,
		ProbeTimeout:    10 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.StartGrace == 0 {
		c.StartGrace = d.StartGrace
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PipelineTimeout == 0 {
		c.PipelineTimeout = d.PipelineTimeout
	}
	if c.ProbeAttempts == 0 {
		c.ProbeAttempts = d.ProbeAttempts
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = d.ProbeInterval
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
}

// Status is the outcome of one readiness wait.
type Status struct {
	PipelineCompleted bool   `json:"pipeline_completed"`
	PipelineSucceeded bool   `json:"pipeline_succeeded"`
	ArtifactReachable bool   `json:"artifact_reachable"`
	ArtifactURL       string `json:"artifact_url"`
}

// Doer issues HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RunSource reports the most recent pipeline run for a repository.
// hosting.Host satisfies it.
type RunSource interface {
	LatestPipelineRun(ctx context.Context, repo string) (*hosting.PipelineRun, error)
}

// Poller observes pipeline runs and probes the published artifact.
type Poller struct {
	host   RunSource
	client Doer
	cfg    Config
	logger *zap.Logger

	// sleep is swapped out in tests for deterministic timing.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a readiness poller.
func NewPoller(host RunSource, client Doer, cfg Config, logger *zap.Logger) *Poller {
	cfg.applyDefaults()
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		host:   host,
		client: client,
		cfg:    cfg,
		logger: logger.Named("deploy"),
		sleep:  sleepCtx,
	}
}

// Wait blocks until the repository's latest pipeline run terminates (or
// the pipeline budget runs out), then probes artifactURL until it
// answers 2xx or the probe budget runs out. The reachability probe runs
// even after a pipeline timeout or failure: the artifact may already be
// live from a previous round.
//
// Wait always returns; ctx cancellation ends it early with whatever was
// observed so far.
func (p *Poller) Wait(ctx context.Context, repo, artifactURL string) Status {
	status := Status{ArtifactURL: artifactURL}

	if err := p.sleep(ctx, p.cfg.StartGrace); err != nil {
		return status
	}

	p.waitForPipeline(ctx, repo, &status)
	p.probeArtifact(ctx, artifactURL, &status)
	return status
}

func (p *Poller) waitForPipeline(ctx context.Context, repo string, status *Status) {
	log := p.logger.With(zap.String("repo", repo))

	for elapsed := time.Duration(0); elapsed < p.cfg.PipelineTimeout; elapsed += p.cfg.PollInterval {
		run, err := p.host.LatestPipelineRun(ctx, repo)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			// Transient status-fetch failures just mean another poll.
			log.Debug("pipeline status check failed", zap.Error(err))
		case run == nil:
			log.Debug("no pipeline run registered yet")
		case run.Completed():
			status.PipelineCompleted = true
			status.PipelineSucceeded = run.Succeeded()
			if !run.Succeeded() {
				// Reported onward, not retried here.
				log.Warn("pipeline completed unsuccessfully", zap.String("conclusion", run.Conclusion))
			}
			return
		default:
			log.Debug("pipeline run in progress", zap.String("run_status", run.Status))
		}

		if err := p.sleep(ctx, p.cfg.PollInterval); err != nil {
			return
		}
	}

	log.Warn("pipeline did not complete within budget", zap.Duration("budget", p.cfg.PipelineTimeout))
}

func (p *Poller) probeArtifact(ctx context.Context, url string, status *Status) {
	log := p.logger.With(zap.String("artifact_url", url))

	for attempt := 1; attempt <= p.cfg.ProbeAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if p.probeOnce(ctx, url) {
			status.ArtifactReachable = true
			log.Info("artifact reachable", zap.Int("attempt", attempt))
			return
		}
		log.Debug("artifact not reachable yet", zap.Int("attempt", attempt))

		if attempt < p.cfg.ProbeAttempts {
			if err := p.sleep(ctx, p.cfg.ProbeInterval); err != nil {
				return
			}
		}
	}

	log.Warn("artifact probe budget exhausted", zap.Int("attempts", p.cfg.ProbeAttempts))
}

func (p *Poller) probeOnce(ctx context.Context, url string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
