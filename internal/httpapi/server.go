// Package httpapi provides the HTTP boundary for sitebuilderd.
package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/PrathamGupta06/website-developer/internal/orchestrator"
	"github.com/PrathamGupta06/website-developer/internal/scaffold"
)

// Runner executes one build round. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host   string
	Port   int
	Secret string
}

// Server provides HTTP endpoints for sitebuilderd.
type Server struct {
	echo   *echo.Echo
	runner Runner
	logger *zap.Logger
	config Config

	// baseCtx bounds background rounds; canceled at shutdown.
	baseCtx context.Context
	rounds  sync.WaitGroup
}

// NewServer creates a new HTTP server. baseCtx bounds the background
// rounds spawned by accepted build requests.
func NewServer(baseCtx context.Context, runner Runner, logger *zap.Logger, cfg Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("shared secret cannot be empty")
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		runner:  runner,
		logger:  logger,
		config:  cfg,
		baseCtx: baseCtx,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/build", s.handleBuild)
}

// AttachmentRef is one named attachment, its content carried as a
// data: URI.
type AttachmentRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BuildRequest is the request body for POST /build.
type BuildRequest struct {
	Email         string          `json:"email"`
	Secret        string          `json:"secret"`
	Task          string          `json:"task"`
	Round         int             `json:"round"`
	Nonce         string          `json:"nonce"`
	Brief         string          `json:"brief"`
	Checks        []string        `json:"checks"`
	EvaluationURL string          `json:"evaluation_url"`
	Attachments   []AttachmentRef `json:"attachments"`
}

// BuildResponse is the response body for POST /build.
type BuildResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Task    string `json:"task,omitempty"`
	Round   int    `json:"round,omitempty"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleBuild validates a build request and runs the round in the
// background. The only synchronous rejections are an invalid secret
// and a malformed request shape; every later failure is logged and
// reported out of band.
func (s *Server) handleBuild(c echo.Context) error {
	var req BuildRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid build request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.config.Secret)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret")
	}

	if err := validateBuildRequest(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	attachments := s.decodeAttachments(req.Task, req.Attachments)

	run := orchestrator.Request{
		TaskID:      req.Task,
		Email:       req.Email,
		Round:       req.Round,
		Nonce:       req.Nonce,
		Brief:       req.Brief,
		Checks:      req.Checks,
		CallbackURL: req.EvaluationURL,
		Attachments: attachments,
	}

	s.rounds.Add(1)
	go func() {
		defer s.rounds.Done()
		if _, err := s.runner.Run(s.baseCtx, run); err != nil {
			s.logger.Error("round failed",
				zap.String("task", run.TaskID),
				zap.Int("round", run.Round),
				zap.Error(err),
			)
		}
	}()

	return c.JSON(http.StatusAccepted, BuildResponse{
		Status:  "accepted",
		Message: "Build request accepted and processing started",
		Task:    req.Task,
		Round:   req.Round,
	})
}

func validateBuildRequest(req *BuildRequest) error {
	switch {
	case req.Task == "":
		return fmt.Errorf("task is required")
	case req.Round < 1:
		return fmt.Errorf("round must be at least 1")
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		return fmt.Errorf("a valid email is required")
	case req.Brief == "":
		return fmt.Errorf("brief is required")
	case req.EvaluationURL != "" && !strings.HasPrefix(req.EvaluationURL, "http"):
		return fmt.Errorf("evaluation_url must be an http(s) URL")
	}
	return nil
}

// decodeAttachments decodes data: URIs. Undecodable attachments are
// dropped with a warning rather than failing the request.
func (s *Server) decodeAttachments(task string, refs []AttachmentRef) []scaffold.Attachment {
	out := make([]scaffold.Attachment, 0, len(refs))
	for _, ref := range refs {
		att, err := scaffold.ParseDataURI(ref.URL)
		if err != nil {
			s.logger.Warn("skipping undecodable attachment",
				zap.String("task", task),
				zap.String("name", ref.Name),
				zap.Error(err),
			)
			continue
		}
		att.Name = ref.Name
		out = append(out, att)
	}
	return out
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and waits for in-flight rounds
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.rounds.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
