package main

import (
	"context"
	"fmt"

	"github.com/zulandar/bullpen/internal/config"
	"github.com/zulandar/bullpen/internal/db"
	"github.com/zulandar/bullpen/internal/detach"
	"github.com/zulandar/bullpen/internal/evolution"
	"github.com/zulandar/bullpen/internal/llm"
	"github.com/zulandar/bullpen/internal/logging"
	"github.com/zulandar/bullpen/internal/metrics"
	"github.com/zulandar/bullpen/internal/specialist"
	"github.com/zulandar/bullpen/internal/usage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}

	return cfg, gormDB, nil
}

// app holds the long-lived collaborators shared by serve and the
// commands that call models.
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	logger    *zap.Logger
	metrics   *metrics.Metrics
	runner    *detach.Runner
	resolver  *llm.ChainResolver
	usage     *usage.Recorder
	executor  *specialist.Executor
	evolution *evolution.Controller // nil when evolution is disabled
}

func newApp(ctx context.Context, cfg *config.Config, gormDB *gorm.DB) (*app, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	registry := llm.NewRegistry()
	for _, pc := range cfg.Models.Providers {
		p, err := llm.NewGenAIProvider(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		registry.Register(pc.Name, p)
	}

	rt := &app{
		cfg:      cfg,
		db:       gormDB,
		logger:   logger,
		metrics:  metrics.NewMetrics(),
		runner:   detach.New(logger, detach.DefaultTimeout),
		resolver: llm.NewChainResolver(gormDB, registry, cfg.Models.DefaultModel, logger),
	}
	rt.usage = usage.NewRecorder(gormDB, llm.NewPricing(cfg.Pricing), rt.metrics)

	rt.executor, err = specialist.New(specialist.Opts{
		DB:       gormDB,
		Resolver: rt.resolver,
		Usage:    rt.usage,
		Runner:   rt.runner,
		Metrics:  rt.metrics,
		Logger:   logger.Named("specialist"),
	})
	if err != nil {
		return nil, err
	}

	if cfg.EvolutionEnabled() {
		rt.evolution, err = evolution.New(evolution.Opts{
			DB:       gormDB,
			Resolver: rt.resolver,
			Runner:   rt.runner,
			Usage:    rt.usage,
			Metrics:  rt.metrics,
			Logger:   logger.Named("evolution"),
			Config:   evolution.FromConfig(cfg.Evolution),
		})
		if err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// close drains detached tasks and flushes the logger.
func (a *app) close(ctx context.Context) error {
	err := a.runner.Shutdown(ctx)
	a.logger.Sync()
	return err
}
