package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/bullpen/internal/conversation"
	"github.com/zulandar/bullpen/internal/db/dbtest"
	"github.com/zulandar/bullpen/internal/detach"
	"github.com/zulandar/bullpen/internal/dispatch"
	"github.com/zulandar/bullpen/internal/execution"
	"github.com/zulandar/bullpen/internal/metrics"
	"github.com/zulandar/bullpen/internal/models"
	"github.com/zulandar/bullpen/internal/notify"
	"github.com/zulandar/bullpen/internal/specialist"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- Fakes ---

type fakeExecutor struct {
	mu    sync.Mutex
	calls []specialist.Request
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, req specialist.Request) (*specialist.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &specialist.Result{
		AgentName:    req.Agent.Name,
		Result:       "done: " + req.Task,
		ExecutionID:  "exec-1",
		AgentID:      req.Agent.ID,
		TaskThreadID: "thread-1",
	}, nil
}

type fakeEvolver struct {
	mu       sync.Mutex
	triggers []string
}

func (f *fakeEvolver) Trigger(agentID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, agentID+"/"+userID)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, evt notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// --- Harness ---

type harness struct {
	db       *gorm.DB
	router   *gin.Engine
	exec     *fakeExecutor
	evolver  *fakeEvolver
	notifier *recordingNotifier
	runner   *detach.Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:       dbtest.Open(t),
		exec:     &fakeExecutor{},
		evolver:  &fakeEvolver{},
		notifier: &recordingNotifier{},
		runner:   detach.New(zap.NewNop(), 0),
	}
	t.Cleanup(h.runner.Wait)

	router, err := NewRouter(StartOpts{
		DB:       h.db,
		Executor: h.exec,
		Evolver:  h.evolver,
		Notifier: h.notifier,
		Runner:   h.runner,
		Metrics:  metrics.NewMetrics(),
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	h.router = router
	return h
}

func (h *harness) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(userHeader, userID)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) createAgent(t *testing.T, userID, name string) agentView {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/agents", userID, gin.H{
		"name":         name,
		"systemPrompt": "You are " + name + ".",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v agentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// --- Tests ---

func TestNewRouter_Validation(t *testing.T) {
	db := dbtest.Open(t)
	_, err := NewRouter(StartOpts{Executor: &fakeExecutor{}})
	assert.ErrorContains(t, err, "db is required")

	_, err = NewRouter(StartOpts{DB: db})
	assert.ErrorContains(t, err, "executor is required")

	_, err = NewRouter(StartOpts{DB: db, Executor: &fakeExecutor{}, Notifier: &recordingNotifier{}})
	assert.ErrorContains(t, err, "runner is required")
}

func TestStart_NilDB(t *testing.T) {
	err := Start(context.Background(), StartOpts{DB: nil})
	assert.ErrorContains(t, err, "db is required")
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestAPI_RequiresUser(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/agents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), userHeader)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/healthz", "", nil)

	rec := h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bullpen_http_requests_total")
}

func TestAgents_CRUD(t *testing.T) {
	h := newHarness(t)
	created := h.createAgent(t, "u1", "Research Assistant")
	assert.Equal(t, "research-assistant", created.Slug)

	rec := h.do(t, http.MethodGet, "/api/agents", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct{ Agents []agentView }](t, rec)
	require.Len(t, list.Agents, 1)

	rec = h.do(t, http.MethodPatch, "/api/agents/"+created.ID, "u1", gin.H{"description": "digs"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "digs", decode[agentView](t, rec).Description)

	rec = h.do(t, http.MethodDelete, "/api/agents/"+created.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/agents/"+created.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/agents", "u1", nil)
	assert.Empty(t, decode[struct{ Agents []agentView }](t, rec).Agents)

	rec = h.do(t, http.MethodGet, "/api/agents?archived=true", "u1", nil)
	assert.Len(t, decode[struct{ Agents []agentView }](t, rec).Agents, 1)
}

func TestAgents_OtherUserIsNotFound(t *testing.T) {
	h := newHarness(t)
	created := h.createAgent(t, "u1", "Coach")

	rec := h.do(t, http.MethodGet, "/api/agents/"+created.ID, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestAgents_CreateValidation(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/agents", "u1", gin.H{"name": "No prompt"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgents_PromptVersionsAndRevert(t *testing.T) {
	h := newHarness(t)
	created := h.createAgent(t, "u1", "Coach")

	rec := h.do(t, http.MethodPut, "/api/agents/"+created.ID+"/prompt", "u1", gin.H{"systemPrompt": "Be blunt."})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Be blunt.", decode[agentView](t, rec).SystemPrompt)

	rec = h.do(t, http.MethodGet, "/api/agents/"+created.ID+"/versions", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decode[struct{ Versions []versionView }](t, rec).Versions
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, models.ChangeSourceManual, versions[0].ChangeSource)
	initial := versions[1]
	assert.Equal(t, models.ChangeSourceInitial, initial.ChangeSource)

	rec = h.do(t, http.MethodPost, "/api/agents/"+created.ID+"/versions/"+initial.ID+"/revert", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You are Coach.", decode[agentView](t, rec).SystemPrompt)

	rec = h.do(t, http.MethodPost, "/api/agents/"+created.ID+"/versions/nope/revert", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedback_SubmitTriggersEvolution(t *testing.T) {
	h := newHarness(t)
	created := h.createAgent(t, "u1", "Coach")

	rec := h.do(t, http.MethodPost, "/api/agents/"+created.ID+"/feedback", "u1", gin.H{
		"rating":     models.RatingNegative,
		"correction": "Shorter, please.",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []string{created.ID + "/u1"}, h.evolver.triggers)

	rec = h.do(t, http.MethodGet, "/api/agents/"+created.ID+"/feedback/summary", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[struct {
		Negative    int64
		Corrections int64
	}](t, rec)
	assert.Equal(t, int64(1), summary.Negative)
	assert.Equal(t, int64(1), summary.Corrections)

	rec = h.do(t, http.MethodGet, "/api/agents/"+created.ID+"/feedback", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[struct{ Feedback []feedbackView }](t, rec).Feedback, 1)
}

func TestFeedback_Errors(t *testing.T) {
	h := newHarness(t)
	coach := h.createAgent(t, "u1", "Coach")
	writer := h.createAgent(t, "u1", "Writer")
	exec, err := execution.Start(h.db, execution.StartOpts{UserID: "u1", AgentID: writer.ID, Task: "draft"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		body   gin.H
		status int
	}{
		{"invalid rating", "/api/agents/" + coach.ID + "/feedback", gin.H{"rating": "meh"}, http.StatusBadRequest},
		{"missing rating", "/api/agents/" + coach.ID + "/feedback", gin.H{}, http.StatusBadRequest},
		{"unknown agent", "/api/agents/nope/feedback", gin.H{"rating": "positive"}, http.StatusNotFound},
		{"unknown execution", "/api/agents/" + coach.ID + "/feedback", gin.H{"rating": "positive", "executionId": "nope"}, http.StatusNotFound},
		{"execution of another agent", "/api/agents/" + coach.ID + "/feedback", gin.H{"rating": "positive", "executionId": exec.ID}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, tt.path, "u1", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, h.evolver.triggers)
}

func TestExecutions_ListAndGet(t *testing.T) {
	h := newHarness(t)
	coach := h.createAgent(t, "u1", "Coach")
	exec, err := execution.Start(h.db, execution.StartOpts{UserID: "u1", AgentID: coach.ID, Task: "plan"})
	require.NoError(t, err)
	require.NoError(t, execution.Complete(h.db, exec.ID, "planned"))

	rec := h.do(t, http.MethodGet, "/api/executions?status=completed", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[struct{ Executions []executionView }](t, rec).Executions, 1)

	rec = h.do(t, http.MethodGet, "/api/executions/"+exec.ID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[executionView](t, rec)
	assert.Equal(t, models.ExecutionCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "planned", *got.Result)

	rec = h.do(t, http.MethodGet, "/api/executions/"+exec.ID, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsage(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/usage", "u1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSettings(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/settings", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decode[map[string]string](t, rec)["defaultModel"])

	rec = h.do(t, http.MethodPut, "/api/settings", "u1", gin.H{"defaultModel": "google:gemini-2.5-pro"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/settings", "u1", nil)
	assert.Equal(t, "google:gemini-2.5-pro", decode[map[string]string](t, rec)["defaultModel"])

	rec = h.do(t, http.MethodGet, "/api/settings", "u2", nil)
	assert.Equal(t, "", decode[map[string]string](t, rec)["defaultModel"])

	rec = h.do(t, http.MethodPut, "/api/settings", "u1", gin.H{"defaultModel": "no-provider"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func approvedTurn(slug string) []conversation.Message {
	approved := true
	return []conversation.Message{
		conversation.TextMessage(conversation.RoleUser, "research this"),
		{
			ID:   "m2",
			Role: conversation.RoleAssistant,
			Parts: []conversation.Part{{
				Type:       dispatch.ToolPrefix + slug,
				ToolCallID: "call-1",
				State:      "approval-responded",
				Input:      json.RawMessage(`{"task":"find sources"}`),
				Approval:   &conversation.Approval{ID: "ap-1", Approved: &approved},
			}},
		},
	}
}

func TestResolveDispatch_StreamsAndPersists(t *testing.T) {
	h := newHarness(t)
	researcher := h.createAgent(t, "u1", "Researcher")
	conv, err := conversation.Create(h.db, conversation.CreateOpts{UserID: "u1", Messages: approvedTurn(researcher.Slug)})
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/api/dispatch/resolve", "u1", gin.H{"conversationId": conv.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	iResult := strings.Index(body, "event: dispatch-result")
	iMessages := strings.Index(body, "event: messages")
	iDone := strings.Index(body, "event: done")
	require.True(t, iResult >= 0 && iMessages > iResult && iDone > iMessages, body)
	assert.Contains(t, body, `"toolCallId":"call-1"`)

	require.Len(t, h.exec.calls, 1)
	assert.Equal(t, "find sources", h.exec.calls[0].Task)
	assert.Equal(t, conv.ID, h.exec.calls[0].ConversationID)

	stored, err := conversation.Get(h.db, conv.ID, "u1")
	require.NoError(t, err)
	msgs, err := conversation.Messages(stored)
	require.NoError(t, err)
	assert.Equal(t, "output-available", msgs[1].Parts[0].State)

	h.runner.Wait()
	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, "Researcher", h.notifier.events[0].AgentName)
	assert.Equal(t, "call-1", h.notifier.events[0].ToolCallID)

	// A second pass finds nothing left to run.
	rec = h.do(t, http.MethodPost, "/api/dispatch/resolve", "u1", gin.H{"conversationId": conv.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "event: dispatch-result")
	assert.Len(t, h.exec.calls, 1)
}

func TestResolveDispatch_PersistsFailure(t *testing.T) {
	h := newHarness(t)
	h.exec.err = errors.New("model unavailable")
	researcher := h.createAgent(t, "u1", "Researcher")
	conv, err := conversation.Create(h.db, conversation.CreateOpts{UserID: "u1", Messages: approvedTurn(researcher.Slug)})
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/api/dispatch/resolve", "u1", gin.H{"conversationId": conv.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "event: dispatch-result")

	stored, err := conversation.Get(h.db, conv.ID, "u1")
	require.NoError(t, err)
	msgs, err := conversation.Messages(stored)
	require.NoError(t, err)
	assert.Equal(t, "output-error", msgs[1].Parts[0].State)
	assert.Contains(t, msgs[1].Parts[0].ErrorText, "model unavailable")

	// The failed call is not run again.
	rec = h.do(t, http.MethodPost, "/api/dispatch/resolve", "u1", gin.H{"conversationId": conv.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, h.exec.calls, 1)

	h.runner.Wait()
	assert.Empty(t, h.notifier.events)
}

func TestResolveDispatch_InlineMessages(t *testing.T) {
	h := newHarness(t)
	researcher := h.createAgent(t, "u1", "Researcher")

	rec := h.do(t, http.MethodPost, "/api/dispatch/resolve", "u1", gin.H{"messages": approvedTurn(researcher.Slug)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: dispatch-result")
}

func TestResolveDispatch_Errors(t *testing.T) {
	h := newHarness(t)
	conv, err := conversation.Create(h.db, conversation.CreateOpts{UserID: "u1"})
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/api/dispatch/resolve", "u1", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/dispatch/resolve", "u2", gin.H{"conversationId": conv.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/dispatch/resolve", "u1", gin.H{"conversationId": conv.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty conversation has nothing to resolve")
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSSE(&buf, "done", map[string]int{"executed": 2}))
	assert.Equal(t, "event: done\ndata: {\"executed\":2}\n\n", buf.String())

	assert.Error(t, writeSSE(&buf, "bad", make(chan int)))
}
