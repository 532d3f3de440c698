// Package llm defines the language-model collaborators used by specialist
// execution and prompt evolution: model resolution, text and structured
// generation, and token pricing.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownProvider is returned for model IDs naming an unregistered provider.
var ErrUnknownProvider = errors.New("llm: unknown provider")

// Request is a single-turn generation request.
type Request struct {
	System string
	Prompt string
}

// Usage is the token accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the result of a text generation.
type Response struct {
	Text  string
	Usage Usage
}

// Field is one string property of a structured response.
type Field struct {
	Name        string
	Description string
}

// Schema describes a flat JSON object of required string fields.
type Schema struct {
	Fields []Field
}

// Model is a handle to one concrete model.
type Model interface {
	// Generate returns free text for req.
	Generate(ctx context.Context, req Request) (*Response, error)

	// GenerateObject asks for a JSON object matching schema and decodes it
	// into out. Any failure, including an unparseable reply, is an error;
	// callers that treat a missing object as "no answer" check for nil error.
	GenerateObject(ctx context.Context, req Request, schema Schema, out any) (Usage, error)
}

// Resolved is a model picked for a request.
type Resolved struct {
	Model     Model
	Provider  string
	ModelName string
}

// Resolver picks a model for a user, honouring an optional preferred model.
type Resolver interface {
	Resolve(ctx context.Context, userID, preferredModelID string) (*Resolved, error)
}

// ParseModelID splits "provider:model" into its parts.
func ParseModelID(id string) (string, string, error) {
	provider, model, ok := strings.Cut(id, ":")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("llm: model id %q must be written as provider:model", id)
	}
	return provider, model, nil
}
