// Package server exposes the agents, feedback, executions and dispatch
// resolver over a JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/bullpen/internal/detach"
	"github.com/zulandar/bullpen/internal/dispatch"
	"github.com/zulandar/bullpen/internal/metrics"
	"github.com/zulandar/bullpen/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Evolver schedules an evolution check for an agent.
type Evolver interface {
	Trigger(agentID, userID string)
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB       *gorm.DB
	Port     int
	Out      io.Writer
	Executor dispatch.Executor
	Evolver  Evolver         // optional; nil disables evolution triggers
	Notifier notify.Notifier // optional
	Runner   *detach.Runner
	Metrics  *metrics.Metrics // optional
	Logger   *zap.Logger
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Bullpen API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("server: db is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("server: executor is required")
	}
	if opts.Notifier != nil && opts.Runner == nil {
		return nil, fmt.Errorf("server: runner is required for notifications")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Metrics != nil {
		router.Use(instrument(opts.Metrics))
	}

	h := &handlers{
		db:       opts.DB,
		resolver: dispatch.NewResolver(opts.Executor, opts.Metrics, opts.Logger),
		evolver:  opts.Evolver,
		notifier: opts.Notifier,
		runner:   opts.Runner,
		logger:   opts.Logger,
	}
	registerRoutes(router, h)
	return router, nil
}
