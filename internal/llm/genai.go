package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/zulandar/bullpen/internal/config"
	"google.golang.org/genai"
)

// contentGenerator is the slice of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIProvider serves Gemini models through the Gemini API or Vertex AI.
type GenAIProvider struct {
	models contentGenerator
}

// NewGenAIProvider creates a provider from configuration. The API key is
// read from the environment variable the config names.
func NewGenAIProvider(ctx context.Context, pc config.ProviderConfig) (*GenAIProvider, error) {
	cc := &genai.ClientConfig{}
	switch pc.Backend {
	case "gemini", "":
		key := os.Getenv(pc.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("llm: provider %s: %s is not set", pc.Name, pc.APIKeyEnv)
		}
		cc.APIKey = key
		cc.Backend = genai.BackendGeminiAPI
	case "vertex":
		cc.Project = pc.Project
		cc.Location = pc.Location
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("llm: provider %s: unsupported backend %q", pc.Name, pc.Backend)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("llm: provider %s: create client: %w", pc.Name, err)
	}
	return &GenAIProvider{models: client.Models}, nil
}

// Model implements Provider.
func (p *GenAIProvider) Model(name string) (Model, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is required")
	}
	return &genaiModel{models: p.models, name: name}, nil
}

type genaiModel struct {
	models contentGenerator
	name   string
}

func (m *genaiModel) config(req Request) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return gc
}

// Generate implements Model.
func (m *genaiModel) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := m.models.GenerateContent(ctx, m.name, genai.Text(req.Prompt), m.config(req))
	if err != nil {
		return nil, fmt.Errorf("llm: generate with %s: %w", m.name, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("llm: generate with %s: empty response", m.name)
	}
	return &Response{Text: text, Usage: usageOf(resp)}, nil
}

// GenerateObject implements Model.
func (m *genaiModel) GenerateObject(ctx context.Context, req Request, schema Schema, out any) (Usage, error) {
	gc := m.config(req)
	gc.ResponseMIMEType = "application/json"
	gc.ResponseSchema = toGenAISchema(schema)

	resp, err := m.models.GenerateContent(ctx, m.name, genai.Text(req.Prompt), gc)
	if err != nil {
		return Usage{}, fmt.Errorf("llm: generate object with %s: %w", m.name, err)
	}
	usage := usageOf(resp)
	if err := json.Unmarshal([]byte(resp.Text()), out); err != nil {
		return usage, fmt.Errorf("llm: decode object from %s: %w", m.name, err)
	}
	return usage, nil
}

func toGenAISchema(s Schema) *genai.Schema {
	gs := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Fields)),
	}
	for _, f := range s.Fields {
		gs.Properties[f.Name] = &genai.Schema{Type: genai.TypeString, Description: f.Description}
		gs.Required = append(gs.Required, f.Name)
	}
	return gs
}

func usageOf(resp *genai.GenerateContentResponse) Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}
}
