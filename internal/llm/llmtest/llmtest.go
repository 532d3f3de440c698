// Package llmtest provides scripted llm.Model and llm.Resolver fakes.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/zulandar/bullpen/internal/llm"
)

// Model is a scripted llm.Model that records every request.
type Model struct {
	Text      string
	Err       error
	Object    any // JSON-encoded into GenerateObject's out
	ObjectErr error
	Usage     llm.Usage

	mu       sync.Mutex
	requests []llm.Request
	schemas  []llm.Schema
}

// Generate implements llm.Model.
func (m *Model) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.record(req, nil)
	if m.Err != nil {
		return nil, m.Err
	}
	return &llm.Response{Text: m.Text, Usage: m.Usage}, nil
}

// GenerateObject implements llm.Model.
func (m *Model) GenerateObject(ctx context.Context, req llm.Request, schema llm.Schema, out any) (llm.Usage, error) {
	m.record(req, &schema)
	if m.ObjectErr != nil {
		return llm.Usage{}, m.ObjectErr
	}
	if m.Object == nil {
		return m.Usage, errors.New("llmtest: no object scripted")
	}
	data, err := json.Marshal(m.Object)
	if err != nil {
		return llm.Usage{}, err
	}
	return m.Usage, json.Unmarshal(data, out)
}

func (m *Model) record(req llm.Request, schema *llm.Schema) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if schema != nil {
		m.schemas = append(m.schemas, *schema)
	}
}

// Requests returns a copy of the recorded requests.
func (m *Model) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// Schemas returns the schemas passed to GenerateObject.
func (m *Model) Schemas() []llm.Schema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Schema(nil), m.schemas...)
}

// ResolveCall is one recorded Resolve invocation.
type ResolveCall struct {
	UserID    string
	Preferred string
}

// Resolver always resolves to the same model, or fails with Err.
type Resolver struct {
	Model     llm.Model
	Provider  string
	ModelName string
	Err       error

	mu    sync.Mutex
	calls []ResolveCall
}

// Resolve implements llm.Resolver.
func (r *Resolver) Resolve(ctx context.Context, userID, preferredModelID string) (*llm.Resolved, error) {
	r.mu.Lock()
	r.calls = append(r.calls, ResolveCall{UserID: userID, Preferred: preferredModelID})
	r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	provider, name := r.Provider, r.ModelName
	if provider == "" {
		provider = "fake"
	}
	if name == "" {
		name = "fake-model"
	}
	return &llm.Resolved{Model: r.Model, Provider: provider, ModelName: name}, nil
}

// Calls returns a copy of the recorded Resolve calls.
func (r *Resolver) Calls() []ResolveCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ResolveCall(nil), r.calls...)
}
