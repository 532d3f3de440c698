package specialist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/bullpen/internal/conversation"
	"github.com/zulandar/bullpen/internal/db/dbtest"
	"github.com/zulandar/bullpen/internal/detach"
	"github.com/zulandar/bullpen/internal/execution"
	"github.com/zulandar/bullpen/internal/llm"
	"github.com/zulandar/bullpen/internal/llm/llmtest"
	"github.com/zulandar/bullpen/internal/metrics"
	"github.com/zulandar/bullpen/internal/models"
	"github.com/zulandar/bullpen/internal/usage"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	db       *gorm.DB
	model    *llmtest.Model
	resolver *llmtest.Resolver
	runner   *detach.Runner
	exec     *Executor
	agent    *models.Agent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	model := &llmtest.Model{Text: "Here is the plan.", Usage: llm.Usage{InputTokens: 200, OutputTokens: 50}}
	resolver := &llmtest.Resolver{Model: model, Provider: "google", ModelName: "gemini-2.5-flash"}
	runner := detach.New(zap.NewNop(), 0)
	t.Cleanup(runner.Wait)

	exec, err := New(Opts{
		DB:       db,
		Resolver: resolver,
		Usage:    usage.NewRecorder(db, nil, nil),
		Runner:   runner,
		Metrics:  metrics.NewMetrics(),
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	agent := &models.Agent{
		ID:             "agent-1",
		UserID:         "user-1",
		Name:           "Planner",
		Slug:           "planner",
		SystemPrompt:   "You plan weeks.",
		PreferredModel: "google:gemini-2.5-pro",
	}
	require.NoError(t, db.Create(agent).Error)

	return &harness{db: db, model: model, resolver: resolver, runner: runner, exec: exec, agent: agent}
}

func (h *harness) request() Request {
	return Request{
		Agent:          h.agent,
		Task:           "Plan my week",
		Context:        "I have three deadlines.",
		UserID:         "user-1",
		ConversationID: "coach-1",
		PreferredModel: h.agent.PreferredModel,
	}
}

func TestNew_Validation(t *testing.T) {
	db := dbtest.Open(t)

	_, err := New(Opts{Resolver: &llmtest.Resolver{}})
	assert.Error(t, err)
	_, err = New(Opts{DB: db})
	assert.Error(t, err)
	_, err = New(Opts{DB: db, Resolver: &llmtest.Resolver{}, Usage: usage.NewRecorder(db, nil, nil)})
	assert.Error(t, err)
}

func TestExecute_Success(t *testing.T) {
	h := newHarness(t)

	res, err := h.exec.Execute(context.Background(), h.request())
	require.NoError(t, err)
	assert.Equal(t, "Planner", res.AgentName)
	assert.Equal(t, "Here is the plan.", res.Result)
	assert.Equal(t, "agent-1", res.AgentID)

	exec, err := execution.Get(h.db, res.ExecutionID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, exec.Status)
	assert.Equal(t, "Here is the plan.", *exec.Result)
	assert.Equal(t, "gemini-2.5-flash", exec.Model)
	assert.NotNil(t, exec.CompletedAt)
	require.NotNil(t, exec.ConversationID)
	assert.Equal(t, "coach-1", *exec.ConversationID)

	thread, err := conversation.Get(h.db, res.TaskThreadID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationTask, thread.Type)
	assert.Equal(t, "coach-1", *thread.ParentID)
	msgs, err := conversation.Messages(thread)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Plan my week", msgs[0].Parts[0].Text)
	assert.Equal(t, "Here is the plan.", msgs[1].Parts[0].Text)

	reqs := h.model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You plan weeks.", reqs[0].System)
	assert.Equal(t, "Plan my week\n\nContext:\nI have three deadlines.", reqs[0].Prompt)

	calls := h.resolver.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "google:gemini-2.5-pro", calls[0].Preferred)
}

func TestExecute_TaskThreadFailureKeepsResult(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.Migrator().DropTable(&models.Conversation{}))

	res, err := h.exec.Execute(context.Background(), h.request())
	require.NoError(t, err)
	assert.Equal(t, "Here is the plan.", res.Result)
	assert.Empty(t, res.TaskThreadID)

	exec, err := execution.Get(h.db, res.ExecutionID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, exec.Status)
}

func TestExecute_RecordsUsageDetached(t *testing.T) {
	h := newHarness(t)

	res, err := h.exec.Execute(context.Background(), h.request())
	require.NoError(t, err)
	h.runner.Wait()

	rows, err := usage.ForExecution(h.db, res.ExecutionID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.UsageSpecialist, rows[0].Source)
	assert.Equal(t, 200, rows[0].InputTokens)
	assert.Equal(t, 50, rows[0].OutputTokens)
	assert.Equal(t, "google", rows[0].Provider)
}

func TestExecute_ModelFailure(t *testing.T) {
	h := newHarness(t)
	h.model.Err = errors.New("upstream 503")

	_, err := h.exec.Execute(context.Background(), h.request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 503")

	execs, err := execution.List(h.db, "user-1", execution.ListFilters{})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, models.ExecutionFailed, execs[0].Status)
	require.NotNil(t, execs[0].Result)
	assert.Equal(t, "upstream 503", *execs[0].Result)

	var threads int64
	require.NoError(t, h.db.Model(&models.Conversation{}).Count(&threads).Error)
	assert.Zero(t, threads)

	h.runner.Wait()
	rows, err := usage.ForExecution(h.db, execs[0].ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExecute_ResolveFailure(t *testing.T) {
	h := newHarness(t)
	h.resolver.Err = errors.New("no model configured")

	_, err := h.exec.Execute(context.Background(), h.request())
	require.Error(t, err)

	execs, err := execution.List(h.db, "user-1", execution.ListFilters{})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, models.ExecutionFailed, execs[0].Status)
	assert.Equal(t, "no model configured", *execs[0].Result)
	assert.Empty(t, h.model.Requests())
}

func TestExecute_CancelledCallerStillTerminal(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.model.Err = context.Canceled

	_, err := h.exec.Execute(ctx, h.request())
	require.Error(t, err)

	execs, err := execution.List(h.db, "user-1", execution.ListFilters{})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, models.ExecutionFailed, execs[0].Status)
}

func TestExecute_Preconditions(t *testing.T) {
	h := newHarness(t)

	req := h.request()
	req.Task = "  "
	_, err := h.exec.Execute(context.Background(), req)
	assert.Error(t, err)

	req = h.request()
	req.UserID = "user-2"
	_, err = h.exec.Execute(context.Background(), req)
	assert.Error(t, err)

	req = h.request()
	req.Agent = nil
	_, err = h.exec.Execute(context.Background(), req)
	assert.Error(t, err)

	execs, err := execution.List(h.db, "user-1", execution.ListFilters{})
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		task, ctx, want string
	}{
		{"Do it", "", "Do it"},
		{"Do it", "   ", "Do it"},
		{"Do it", "  notes ", "Do it\n\nContext:\nnotes"},
	}
	for _, tt := range tests {
		if got := BuildPrompt(tt.task, tt.ctx); got != tt.want {
			t.Errorf("BuildPrompt(%q, %q) = %q, want %q", tt.task, tt.ctx, got, tt.want)
		}
	}
}
