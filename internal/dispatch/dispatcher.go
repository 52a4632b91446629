package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Payload is the completion report posted to the callback URL.
type Payload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

// Config bounds delivery retries.
type Config struct {
	// MaxAttempts is the total number of delivery attempts. Default: 5.
	MaxAttempts int

	// BaseDelay is the sleep before the second attempt; it doubles
	// after every failed attempt. No jitter: acceptable for a low-QPS
	// system. Default: 1s.
	BaseDelay time.Duration

	// RequestTimeout is the per-attempt request timeout. Default: 30s.
	RequestTimeout time.Duration
}

// DefaultConfig returns the default delivery budgets.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
}

// Doer issues HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Dispatcher posts completion payloads with bounded retries.
type Dispatcher struct {
	client Doer
	cfg    Config
	logger *zap.Logger

	// sleep is swapped out in tests for deterministic timing.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a result dispatcher.
func NewDispatcher(client Doer, cfg Config, logger *zap.Logger) *Dispatcher {
	cfg.applyDefaults()
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		client: client,
		cfg:    cfg,
		logger: logger.Named("dispatch"),
		sleep:  sleepCtx,
	}
}

// Deliver posts payload as JSON to url. Only a 2xx response counts as
// accepted; any other status or transport failure is retried until the
// attempt budget is spent. Returns whether delivery was accepted.
func (d *Dispatcher) Deliver(ctx context.Context, url string, payload Payload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		// Payload is plain strings and ints; this cannot happen in
		// practice, but the dispatcher never raises past its boundary.
		d.logger.Error("payload not serializable", zap.Error(err))
		return false
	}

	log := d.logger.With(
		zap.String("callback_url", url),
		zap.String("task", payload.Task),
		zap.Int("round", payload.Round),
	)

	delay := d.cfg.BaseDelay
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		accepted, detail := d.attempt(ctx, url, body)
		if accepted {
			log.Info("delivered completion payload", zap.Int("attempt", attempt))
			return true
		}

		log.Warn("delivery attempt failed",
			zap.Int("attempt", attempt),
			zap.String("detail", detail),
		)

		if attempt == d.cfg.MaxAttempts {
			break
		}
		if err := d.sleep(ctx, delay); err != nil {
			log.Warn("delivery canceled", zap.Error(err))
			return false
		}
		delay *= 2
	}

	log.Error("delivery failed after all attempts", zap.Int("attempts", d.cfg.MaxAttempts))
	return false
}

func (d *Dispatcher) attempt(ctx context.Context, url string, body []byte) (bool, string) {
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, ""
	}
	return false, resp.Status
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
