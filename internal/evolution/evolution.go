// Package evolution revises a specialist agent's system prompt from the
// feedback it has accumulated.
//
// A check is cheap and safe to run after every feedback write: it is gated
// on a per-agent cooldown since the last evolution, on a minimum amount of
// new feedback, and on that feedback containing something to act on. Every
// revision snapshots the prompt it replaces, so no prompt is ever lost.
package evolution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/bullpen/internal/agent"
	"github.com/zulandar/bullpen/internal/detach"
	"github.com/zulandar/bullpen/internal/execution"
	"github.com/zulandar/bullpen/internal/feedback"
	"github.com/zulandar/bullpen/internal/llm"
	"github.com/zulandar/bullpen/internal/metrics"
	"github.com/zulandar/bullpen/internal/models"
	"github.com/zulandar/bullpen/internal/usage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Outcome is the result of one evolution check. Values match the
// bullpen_evolution_outcomes_total labels.
type Outcome string

const (
	OutcomeSkippedMissing  Outcome = metrics.EvolutionSkippedMissing
	OutcomeSkippedCooldown Outcome = metrics.EvolutionSkippedCooldown
	OutcomeSkippedGate     Outcome = metrics.EvolutionSkippedGate
	OutcomeSkippedModel    Outcome = metrics.EvolutionSkippedModel
	OutcomeEvolved         Outcome = metrics.EvolutionEvolved
	OutcomeError           Outcome = metrics.EvolutionError
)

// Opts holds the collaborators of a Controller.
type Opts struct {
	DB       *gorm.DB
	Resolver llm.Resolver
	Runner   *detach.Runner
	Usage    *usage.Recorder  // optional
	Metrics  *metrics.Metrics // optional
	Logger   *zap.Logger
	Config   Config
}

// Controller runs evolution checks.
type Controller struct {
	db       *gorm.DB
	resolver llm.Resolver
	runner   *detach.Runner
	usage    *usage.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time

	group singleflight.Group
}

// New creates a Controller.
func New(opts Opts) (*Controller, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("evolution: db is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("evolution: model resolver is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("evolution: runner is required")
	}
	cfg := opts.Config.withFloors()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		db:       opts.DB,
		resolver: opts.Resolver,
		runner:   opts.Runner,
		usage:    opts.Usage,
		metrics:  opts.Metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Trigger schedules a check as a detached task and returns immediately.
func (c *Controller) Trigger(agentID, userID string) {
	c.runner.Go("evolution.check", func(ctx context.Context) error {
		if outcome := c.MaybeEvolve(ctx, agentID, userID); outcome == OutcomeError {
			return fmt.Errorf("evolution check for agent %s failed", agentID)
		}
		return nil
	})
}

// MaybeEvolve runs one check for the agent and reports what happened. It
// never fails; errors are logged and reported as OutcomeError. Concurrent
// checks of the same agent share one run.
func (c *Controller) MaybeEvolve(ctx context.Context, agentID, userID string) Outcome {
	v, _, _ := c.group.Do(agentID+"/"+userID, func() (interface{}, error) {
		return c.check(ctx, agentID, userID), nil
	})
	outcome := v.(Outcome)
	if c.metrics != nil {
		c.metrics.RecordEvolution(string(outcome))
	}
	return outcome
}

func (c *Controller) check(ctx context.Context, agentID, userID string) Outcome {
	db := c.db.WithContext(ctx)
	log := c.logger.With(zap.String("agent", agentID))

	a, err := agent.Get(db, agentID, userID)
	if errors.Is(err, agent.ErrNotFound) {
		return OutcomeSkippedMissing
	}
	if err != nil {
		log.Error("evolution: load agent", zap.Error(err))
		return OutcomeError
	}
	if a.ArchivedAt != nil {
		return OutcomeSkippedMissing
	}

	marker, err := agent.LatestVersionBySource(db, a.ID, models.ChangeSourceEvolution)
	if err != nil {
		log.Error("evolution: load last evolution", zap.Error(err))
		return OutcomeError
	}
	var since time.Time
	if marker != nil {
		if c.now().Sub(marker.CreatedAt) < c.cfg.Cooldown {
			log.Debug("evolution: cooling down", zap.Time("last_evolution", marker.CreatedAt))
			return OutcomeSkippedCooldown
		}
		since = marker.CreatedAt
	}

	rows, err := feedback.ListSince(db, a.ID, since)
	if err != nil {
		log.Error("evolution: load feedback", zap.Error(err))
		return OutcomeError
	}
	if len(rows) < c.cfg.MinFeedback || !feedback.Actionable(rows) {
		log.Debug("evolution: gate not met", zap.Int("feedback", len(rows)))
		return OutcomeSkippedGate
	}

	items, err := c.enrich(db, rows)
	if err != nil {
		log.Error("evolution: load executions", zap.Error(err))
		return OutcomeError
	}

	rev, ok := c.revise(ctx, a, items, log)
	if !ok {
		return OutcomeSkippedModel
	}

	v, err := agent.ReplacePrompt(db, a.ID, rev.RevisedPrompt, models.ChangeSourceEvolution, rev.ChangesSummary)
	if err != nil {
		log.Error("evolution: save revision", zap.Error(err))
		return OutcomeError
	}
	log.Info("agent prompt evolved",
		zap.Int("snapshot_version", v.Version),
		zap.Int("feedback", len(items)),
		zap.String("summary", rev.ChangesSummary),
		zap.String("reasoning", rev.Reasoning),
	)
	return OutcomeEvolved
}

// enrich attaches the task and result of each row's execution, truncated.
// Rows without a resolvable execution keep empty task and result.
func (c *Controller) enrich(db *gorm.DB, rows []models.AgentFeedback) ([]Item, error) {
	var ids []string
	for _, r := range rows {
		if r.ExecutionID != nil {
			ids = append(ids, *r.ExecutionID)
		}
	}
	execs, err := execution.GetMany(db, ids)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		item := Item{Rating: r.Rating, Correction: r.Correction}
		if r.ExecutionID != nil {
			if e, ok := execs[*r.ExecutionID]; ok {
				item.Task = truncate(e.Task, c.cfg.TruncateChars)
				if e.Result != nil {
					item.Result = truncate(*e.Result, c.cfg.TruncateChars)
				}
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// revise asks the model for a structured revision. Any failure, including
// a reply without a usable prompt, is a soft skip.
func (c *Controller) revise(ctx context.Context, a *models.Agent, items []Item, log *zap.Logger) (*Revision, bool) {
	if len(items) < c.cfg.MinFeedback {
		return nil, false
	}
	prompt, err := RenderPrompt(a.Name, a.SystemPrompt, items)
	if err != nil {
		log.Error("evolution: render prompt", zap.Error(err))
		return nil, false
	}

	resolved, err := c.resolver.Resolve(ctx, a.UserID, c.cfg.ModelID)
	if err != nil || resolved == nil || resolved.Model == nil {
		log.Warn("evolution: no model", zap.Error(err))
		return nil, false
	}

	var rev Revision
	u, err := resolved.Model.GenerateObject(ctx, llm.Request{
		System: systemInstruction,
		Prompt: prompt,
	}, revisionSchema, &rev)
	c.trackUsage(a, resolved, u)
	if err != nil {
		log.Warn("evolution: revision declined", zap.Error(err))
		return nil, false
	}
	rev.RevisedPrompt = strings.TrimSpace(rev.RevisedPrompt)
	if rev.RevisedPrompt == "" {
		log.Warn("evolution: revision without prompt")
		return nil, false
	}
	return &rev, true
}

func (c *Controller) trackUsage(a *models.Agent, resolved *llm.Resolved, u llm.Usage) {
	if c.usage == nil || u.InputTokens+u.OutputTokens == 0 {
		return
	}
	entry := usage.Entry{
		UserID:   a.UserID,
		AgentID:  a.ID,
		Source:   models.UsageEvolution,
		Provider: resolved.Provider,
		Model:    resolved.ModelName,
		Usage:    u,
	}
	c.runner.Go("usage.record", func(ctx context.Context) error {
		_, err := c.usage.Record(ctx, entry)
		return err
	})
}
