// Package specialist runs one delegated task against a specialist agent.
//
// Every run is bracketed by an execution record: inserted as running before
// any model work, then marked completed or failed exactly once. A successful
// run also spawns a task thread holding the transcript.
package specialist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/bullpen/internal/conversation"
	"github.com/zulandar/bullpen/internal/detach"
	"github.com/zulandar/bullpen/internal/execution"
	"github.com/zulandar/bullpen/internal/llm"
	"github.com/zulandar/bullpen/internal/metrics"
	"github.com/zulandar/bullpen/internal/models"
	"github.com/zulandar/bullpen/internal/usage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Request is one delegated task.
type Request struct {
	Agent          *models.Agent
	Task           string
	Context        string
	UserID         string
	ConversationID string
	PreferredModel string
	ProjectID      string
}

// Result is what the dispatching conversation sees of a successful run.
type Result struct {
	AgentName    string `json:"agentName"`
	Result       string `json:"result"`
	ExecutionID  string `json:"executionId"`
	AgentID      string `json:"agentId"`
	TaskThreadID string `json:"taskThreadId"`
}

// Opts holds the collaborators of an Executor.
type Opts struct {
	DB       *gorm.DB
	Resolver llm.Resolver
	Usage    *usage.Recorder  // optional
	Runner   *detach.Runner   // required when Usage is set
	Metrics  *metrics.Metrics // optional
	Logger   *zap.Logger
}

// Executor runs specialist tasks.
type Executor struct {
	db       *gorm.DB
	resolver llm.Resolver
	usage    *usage.Recorder
	runner   *detach.Runner
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates an Executor.
func New(opts Opts) (*Executor, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("specialist: db is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("specialist: model resolver is required")
	}
	if opts.Usage != nil && opts.Runner == nil {
		return nil, fmt.Errorf("specialist: runner is required to record usage")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		db:       opts.DB,
		resolver: opts.Resolver,
		usage:    opts.Usage,
		runner:   opts.Runner,
		metrics:  opts.Metrics,
		logger:   logger,
	}, nil
}

// Execute runs req.Task with the agent's prompt as system context.
//
// A failure to insert the execution record is returned as is. A model
// resolution or generation failure is recorded on the execution as failed
// and then returned. Execution bookkeeping is not cancelled with ctx, so a
// disconnected caller still leaves a terminal record behind.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Agent == nil {
		return nil, fmt.Errorf("specialist: agent is required")
	}
	if req.Agent.UserID != req.UserID {
		return nil, fmt.Errorf("specialist: agent %s is not owned by %s", req.Agent.ID, req.UserID)
	}
	if strings.TrimSpace(req.Task) == "" {
		return nil, fmt.Errorf("specialist: task is required")
	}

	started := time.Now()
	store := e.db.WithContext(context.WithoutCancel(ctx))

	exec, err := execution.Start(store, execution.StartOpts{
		UserID:         req.UserID,
		AgentID:        req.Agent.ID,
		ConversationID: req.ConversationID,
		ProjectID:      req.ProjectID,
		Task:           req.Task,
	})
	if err != nil {
		return nil, fmt.Errorf("specialist: %w", err)
	}
	log := e.logger.With(
		zap.String("agent", req.Agent.Slug),
		zap.String("execution", exec.ID),
	)

	text, err := e.generate(ctx, store, exec, req)
	if err != nil {
		if ferr := execution.Fail(store, exec.ID, err.Error()); ferr != nil {
			log.Error("record failed execution", zap.Error(ferr))
		}
		e.record(models.ExecutionFailed, started)
		log.Warn("specialist execution failed", zap.Error(err))
		return nil, fmt.Errorf("specialist: run %s: %w", req.Agent.Slug, err)
	}

	if err := execution.Complete(store, exec.ID, text); err != nil {
		e.record(models.ExecutionFailed, started)
		return nil, fmt.Errorf("specialist: %w", err)
	}
	e.record(models.ExecutionCompleted, started)

	result := &Result{
		AgentName:   req.Agent.Name,
		Result:      text,
		ExecutionID: exec.ID,
		AgentID:     req.Agent.ID,
	}
	// The execution is already completed, so a missing thread only drops
	// the link to it.
	thread, err := conversation.CreateTaskThread(store, req.UserID, req.ConversationID, req.Agent.Name, req.Task, text)
	if err != nil {
		log.Error("create task thread", zap.Error(err))
	} else {
		result.TaskThreadID = thread.ID
	}

	log.Info("specialist execution completed",
		zap.String("task_thread", result.TaskThreadID),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// generate resolves a model and makes the single, unretried model call.
func (e *Executor) generate(ctx context.Context, store *gorm.DB, exec *models.AgentExecution, req Request) (string, error) {
	resolved, err := e.resolver.Resolve(ctx, req.UserID, req.PreferredModel)
	if err != nil {
		return "", err
	}
	if resolved == nil || resolved.Model == nil {
		return "", errors.New("model resolver returned no model")
	}
	if err := execution.SetModel(store, exec.ID, resolved.ModelName); err != nil {
		e.logger.Warn("record execution model", zap.String("execution", exec.ID), zap.Error(err))
	}

	resp, err := resolved.Model.Generate(ctx, llm.Request{
		System: req.Agent.SystemPrompt,
		Prompt: BuildPrompt(req.Task, req.Context),
	})
	if err != nil {
		return "", err
	}

	e.trackUsage(req, exec.ID, resolved, resp.Usage)
	return resp.Text, nil
}

// trackUsage records token usage as a detached task. Its failure is logged
// by the runner and never reaches the caller.
func (e *Executor) trackUsage(req Request, executionID string, resolved *llm.Resolved, u llm.Usage) {
	if e.usage == nil {
		return
	}
	entry := usage.Entry{
		UserID:      req.UserID,
		AgentID:     req.Agent.ID,
		ExecutionID: executionID,
		Source:      models.UsageSpecialist,
		Provider:    resolved.Provider,
		Model:       resolved.ModelName,
		Usage:       u,
	}
	e.runner.Go("usage.record", func(ctx context.Context) error {
		_, err := e.usage.Record(ctx, entry)
		return err
	})
}

func (e *Executor) record(status string, started time.Time) {
	if e.metrics != nil {
		e.metrics.RecordSpecialist(status, time.Since(started))
	}
}

// BuildPrompt renders the task, followed by a Context block when present.
func BuildPrompt(task, taskContext string) string {
	taskContext = strings.TrimSpace(taskContext)
	if taskContext == "" {
		return task
	}
	return task + "\n\nContext:\n" + taskContext
}
