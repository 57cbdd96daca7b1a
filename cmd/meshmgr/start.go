package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/meshmgr/internal/api"
	"github.com/mattjoyce/meshmgr/internal/config"
	"github.com/mattjoyce/meshmgr/internal/events"
	"github.com/mattjoyce/meshmgr/internal/journal"
	"github.com/mattjoyce/meshmgr/internal/lock"
	"github.com/mattjoyce/meshmgr/internal/log"
	"github.com/mattjoyce/meshmgr/internal/metrics"
	"github.com/mattjoyce/meshmgr/internal/orchestrator"
	"github.com/mattjoyce/meshmgr/internal/registry"
)

const shutdownTimeout = 30 * time.Second

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Discover agents and run their poll loops until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger := log.New(cmd.ErrOrStderr(), cfg.Service.LogLevel, cfg.Service.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStart(ctx, cfg, logger)
		},
	}
}

// runStart runs the manager until ctx is cancelled.
func runStart(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger = log.WithComponent(logger, "main")
	logger.Info("meshmgr starting", "version", version, "server_url", cfg.Mesh.ServerURL)

	pidLock, err := lock.Acquire(cfg.Service.LockPath)
	if err != nil {
		return fmt.Errorf("acquire PID lock: %w", err)
	}
	defer func() { _ = pidLock.Release() }()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	store, err := registry.OpenStore(ctx, cfg.Metadata)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	regOpts := []registry.Option{}
	if store != nil {
		regOpts = append(regOpts, registry.WithStore(store))
	}
	handlers := registry.New(cfg, logger, regOpts...).Discover(ctx)

	m := metrics.New(nil)
	hub := events.NewHub(256)
	orchOpts := []orchestrator.Option{
		orchestrator.WithEvents(hub),
		orchestrator.WithMetrics(m),
	}

	var tasks api.TaskLog
	if cfg.Journal.Path != "" {
		j, err := journal.Open(ctx, cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open task journal: %w", err)
		}
		defer j.Close()
		recorder := journal.NewRecorder(j, logger)
		defer recorder.Close()
		orchOpts = append(orchOpts, orchestrator.WithObserver(recorder))
		tasks = j
		logger.Info("task journal opened", "path", cfg.Journal.Path)
	}

	orch := orchestrator.New(cfg, logger, orchOpts...)

	apiCtx, stopAPI := context.WithCancel(context.Background())
	defer stopAPI()
	apiErr := make(chan error, 1)
	if cfg.API.Enabled {
		srv := api.New(api.Config{Listen: cfg.API.Listen, Token: cfg.API.Token}, orch, tasks, hub, m, logger)
		go func() { apiErr <- srv.Start(apiCtx) }()
	}

	// Loops stop through Shutdown, not through ctx, so the drain is explicit.
	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(context.Background(), handlers) }()

	select {
	case err := <-runErr:
		return finish(logger, err)
	case err := <-apiErr:
		logger.Error("API server failed", "error", err)
		shutdown(logger, orch)
		<-runErr
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		shutdown(logger, orch)
		return finish(logger, <-runErr)
	}
}

func shutdown(logger *slog.Logger, orch *orchestrator.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := orch.Shutdown(ctx); err != nil {
		logger.Error("shutdown did not complete", "error", err)
	}
}

func finish(logger *slog.Logger, err error) error {
	var fatal *orchestrator.FatalError
	if errors.As(err, &fatal) {
		logger.Error("fatal poll loop error", "agent_id", fatal.AgentID, "error", err, "stack", string(fatal.Stack))
		return err
	}
	if err != nil {
		return err
	}
	logger.Info("meshmgr stopped")
	return nil
}
