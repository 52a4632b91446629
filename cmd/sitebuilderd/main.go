// Sitebuilderd accepts build requests and publishes generated websites
// to GitHub repositories with Pages deployments.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for the full set of knobs.
//
// Usage:
//
//	# Start with environment configuration
//	SERVER_SECRET=... GITHUB_TOKEN=... sitebuilderd
//
//	# Start with a config file
//	sitebuilderd -config /etc/sitebuilderd/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/PrathamGupta06/website-developer/internal/commit"
	"github.com/PrathamGupta06/website-developer/internal/config"
	"github.com/PrathamGupta06/website-developer/internal/deploy"
	"github.com/PrathamGupta06/website-developer/internal/dispatch"
	"github.com/PrathamGupta06/website-developer/internal/hosting"
	"github.com/PrathamGupta06/website-developer/internal/httpapi"
	"github.com/PrathamGupta06/website-developer/internal/logging"
	"github.com/PrathamGupta06/website-developer/internal/notify"
	"github.com/PrathamGupta06/website-developer/internal/orchestrator"
	"github.com/PrathamGupta06/website-developer/internal/scaffold"
	"github.com/PrathamGupta06/website-developer/internal/taskindex"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  sitebuilderd           Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  sitebuilderd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("sitebuilderd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires every component and blocks until ctx is canceled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting sitebuilderd",
		zap.Int("port", cfg.Server.Port),
		zap.String("commit_mode", cfg.GitHub.CommitMode),
		zap.String("index_backend", cfg.Index.Backend),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	host, err := hosting.NewGitHubHost(ctx, hosting.GitHubConfig{
		Token:             cfg.GitHub.Token.Value(),
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize github host: %w", err)
	}
	logger.Info("github host ready", zap.String("owner", host.Owner()))

	index, err := openIndex(cfg)
	if err != nil {
		return fmt.Errorf("open task index: %w", err)
	}
	defer index.Close()

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		// The sink is best effort from the first moment on.
		logger.Warn("notifier unavailable, continuing without one", zap.Error(err))
		notifier = notify.Nop{}
	}

	mode := commit.ModeAtomic
	if cfg.GitHub.CommitMode == "per_file" {
		mode = commit.ModePerFile
	}

	orch := orchestrator.New(
		host,
		scaffold.NewTemplateGenerator(logger),
		commit.NewBuilder(host, logger),
		deploy.NewPoller(host, nil, deploy.Config{
			StartGrace:      cfg.Deploy.StartGrace,
			PollInterval:    cfg.Deploy.PollInterval,
			PipelineTimeout: cfg.Deploy.PipelineTimeout,
			ProbeAttempts:   cfg.Deploy.ProbeAttempts,
			ProbeInterval:   cfg.Deploy.ProbeInterval,
			ProbeTimeout:    cfg.Deploy.ProbeTimeout,
		}, logger),
		dispatch.NewDispatcher(nil, dispatch.Config{
			MaxAttempts:    cfg.Dispatch.MaxAttempts,
			BaseDelay:      cfg.Dispatch.BaseDelay,
			RequestTimeout: cfg.Dispatch.RequestTimeout,
		}, logger),
		index,
		notifier,
		mode,
		logger,
	)

	srv, err := httpapi.NewServer(ctx, orch, logger, httpapi.Config{
		Port:   cfg.Server.Port,
		Secret: cfg.Server.Secret.Value(),
	})
	if err != nil {
		return fmt.Errorf("initialize http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
		return err
	}
	return http.ErrServerClosed
}

func openIndex(cfg *config.Config) (taskindex.Store, error) {
	switch cfg.Index.Backend {
	case "csv":
		return taskindex.OpenCSV(cfg.Index.Path)
	case "memory":
		return taskindex.NewMemory(), nil
	default:
		return taskindex.OpenSQLite(cfg.Index.Path)
	}
}

func newNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, error) {
	if !cfg.Telegram.Token.IsSet() {
		return notify.Nop{}, nil
	}
	return notify.NewTelegram(cfg.Telegram.Token.Value(), cfg.Telegram.ChatID, logger)
}
