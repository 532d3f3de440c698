// Package dispatch resolves approved dispatch tool calls in a chat turn by
// running them through the specialist executor.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zulandar/bullpen/internal/conversation"
	"github.com/zulandar/bullpen/internal/metrics"
	"github.com/zulandar/bullpen/internal/models"
	"github.com/zulandar/bullpen/internal/specialist"
	"go.uber.org/zap"
)

// Executor runs one specialist task.
type Executor interface {
	Execute(ctx context.Context, req specialist.Request) (*specialist.Result, error)
}

// Input is the argument payload of a dispatch tool call.
type Input struct {
	Task    string `json:"task"`
	Context string `json:"context,omitempty"`
}

// Executed is one tool call run during a Resolve pass.
type Executed struct {
	ToolCallID string             `json:"toolCallId"`
	Output     *specialist.Result `json:"output"`
}

// Resolver runs approved dispatch parts.
type Resolver struct {
	exec    Executor
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewResolver creates a Resolver. m and logger may be nil.
func NewResolver(exec Executor, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{exec: exec, metrics: m, logger: logger}
}

// Resolve runs every approved, not yet executed dispatch part of the
// assistant messages, in message and part order, and returns the updated
// message list with the calls that produced output. messages itself is not
// modified; persisting the returned list is up to the caller.
//
// A part naming an unknown agent is skipped. A failed run is recorded on the
// part as output-error and does not stop the remaining parts.
func (r *Resolver) Resolve(ctx context.Context, messages []conversation.Message, agents []models.Agent, userID, conversationID string) ([]conversation.Message, []Executed) {
	bySlug := make(map[string]*models.Agent, len(agents))
	for i := range agents {
		bySlug[agents[i].Slug] = &agents[i]
	}

	out := conversation.Clone(messages)
	var executed []Executed
	for mi := range out {
		if out[mi].Role != conversation.RoleAssistant {
			continue
		}
		for pi := range out[mi].Parts {
			part := &out[mi].Parts[pi]

			switch Classify(*part) {
			case PhaseApproved:
			case PhaseNone, PhasePending, PhaseApprovalRequested, PhaseDenied,
				PhaseOutputAvailable, PhaseOutputError:
				continue
			}

			slug, _ := Slug(part.Type)
			agent, ok := bySlug[slug]
			if !ok {
				r.logger.Debug("dispatch to unknown agent skipped",
					zap.String("slug", slug), zap.String("tool_call", part.ToolCallID))
				r.record(metrics.DispatchUnknownAgent)
				continue
			}

			result, err := r.run(ctx, part, agent, userID, conversationID)
			if err != nil {
				r.logger.Warn("dispatch failed",
					zap.String("slug", slug), zap.String("tool_call", part.ToolCallID), zap.Error(err))
				part.State = StateOutputError
				part.ErrorText = err.Error()
				part.ProviderExecuted = true
				r.record(metrics.DispatchFailed)
				continue
			}

			encoded, err := json.Marshal(result)
			if err != nil {
				part.State = StateOutputError
				part.ErrorText = fmt.Sprintf("encode dispatch output: %v", err)
				part.ProviderExecuted = true
				r.record(metrics.DispatchFailed)
				continue
			}
			part.State = StateOutputAvailable
			part.Output = encoded
			part.ProviderExecuted = true
			executed = append(executed, Executed{ToolCallID: part.ToolCallID, Output: result})
			r.record(metrics.DispatchExecuted)
		}
	}
	return out, executed
}

// Settled reports whether a Resolve pass moved any part of before to a
// terminal phase in after, successful or not. after must be the list
// Resolve returned for before.
func Settled(before, after []conversation.Message) bool {
	for mi := range after {
		if mi >= len(before) {
			return true
		}
		for pi := range after[mi].Parts {
			if pi >= len(before[mi].Parts) {
				return true
			}
			if Classify(before[mi].Parts[pi]) != Classify(after[mi].Parts[pi]) {
				return true
			}
		}
	}
	return false
}

func (r *Resolver) run(ctx context.Context, part *conversation.Part, agent *models.Agent, userID, conversationID string) (*specialist.Result, error) {
	var in Input
	if len(part.Input) > 0 {
		if err := json.Unmarshal(part.Input, &in); err != nil {
			return nil, fmt.Errorf("dispatch: invalid input: %w", err)
		}
	}
	return r.exec.Execute(ctx, specialist.Request{
		Agent:          agent,
		Task:           in.Task,
		Context:        in.Context,
		UserID:         userID,
		ConversationID: conversationID,
		PreferredModel: agent.PreferredModel,
	})
}

func (r *Resolver) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordDispatch(outcome)
	}
}
