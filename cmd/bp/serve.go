package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/bullpen/internal/execution"
	"github.com/zulandar/bullpen/internal/notify"
	"github.com/zulandar/bullpen/internal/server"
	"go.uber.org/zap"
)

// shutdownGrace bounds how long serve waits for detached tasks on exit.
const shutdownGrace = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Bullpen API server",
		Long:  "Serves the JSON API, runs the abandoned-execution reaper and triggers prompt evolution from feedback.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Bullpen config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Server.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	a, err := newApp(ctx, cfg, gormDB)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
		defer done()
		if err := a.close(shutdownCtx); err != nil {
			a.logger.Warn("detached tasks still running at exit", zap.Error(err))
		}
	}()

	notifier, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return err
	}

	reaper, err := execution.NewReaper(gormDB, cfg.Reaper.Schedule, cfg.Reaper.StaleAfter, a.logger.Named("reaper"), a.metrics)
	if err != nil {
		return err
	}
	go reaper.Run(ctx)

	opts := server.StartOpts{
		DB:       gormDB,
		Port:     port,
		Out:      cmd.OutOrStdout(),
		Executor: a.executor,
		Notifier: notifier,
		Runner:   a.runner,
		Metrics:  a.metrics,
		Logger:   a.logger.Named("server"),
	}
	if a.evolution != nil {
		opts.Evolver = a.evolution
	}
	a.logger.Info("starting",
		zap.Int("port", port),
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("evolution", a.evolution != nil),
		zap.Bool("notify", notifier != nil))
	return server.Start(ctx, opts)
}
