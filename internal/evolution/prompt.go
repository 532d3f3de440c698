package evolution

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/zulandar/bullpen/internal/llm"
)

// systemInstruction frames the revision request.
const systemInstruction = `You maintain the system prompts of specialist assistant agents. You revise a prompt only as far as the user's feedback requires, keep every instruction that is not contradicted by the feedback, and always return the complete revised prompt.`

// revisionTemplate is the prompt sent with the current instructions and the
// feedback collected since the last revision.
const revisionTemplate = `# Prompt revision for "{{ .AgentName }}"

## Current system prompt

{{ .CurrentPrompt }}

## Feedback since the last revision ({{ len .Items }} items)
{{ range $i, $f := .Items }}
### Feedback {{ inc $i }}: {{ $f.Rating }}
{{ if $f.Task }}Task:
{{ $f.Task }}
{{ end }}{{ if $f.Result }}Agent output:
{{ $f.Result }}
{{ end }}{{ if $f.Correction }}User correction:
{{ $f.Correction }}
{{ end }}{{ end }}
## Instructions

1. Address every negative rating and every correction above.
2. Preserve behaviour that received positive feedback.
3. Return revisedPrompt as the full replacement system prompt, changesSummary as one sentence describing what changed, and reasoning as a short explanation tying the changes to the feedback.
`

var revisionTmpl = template.Must(template.New("revision").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(revisionTemplate))

// revisionSchema is the structured response requested from the model.
var revisionSchema = llm.Schema{Fields: []llm.Field{
	{Name: "revisedPrompt", Description: "The complete revised system prompt."},
	{Name: "changesSummary", Description: "One sentence summarising what changed."},
	{Name: "reasoning", Description: "Why these changes address the feedback."},
}}

// Item is one feedback row enriched with the execution it rated.
type Item struct {
	Rating     string
	Correction string
	Task       string
	Result     string
}

// Revision is the model's structured answer.
type Revision struct {
	RevisedPrompt  string `json:"revisedPrompt"`
	ChangesSummary string `json:"changesSummary"`
	Reasoning      string `json:"reasoning"`
}

type promptData struct {
	AgentName     string
	CurrentPrompt string
	Items         []Item
}

// RenderPrompt builds the revision request text.
func RenderPrompt(agentName, currentPrompt string, items []Item) (string, error) {
	var buf bytes.Buffer
	err := revisionTmpl.Execute(&buf, promptData{
		AgentName:     agentName,
		CurrentPrompt: currentPrompt,
		Items:         items,
	})
	if err != nil {
		return "", fmt.Errorf("evolution: execute template: %w", err)
	}
	return buf.String(), nil
}

// truncate returns at most n characters of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
