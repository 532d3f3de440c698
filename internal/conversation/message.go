package conversation

import "encoding/json"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// PartText is the type of a plain text part.
const PartText = "text"

// Message is one role-tagged entry of a conversation's message log.
type Message struct {
	ID    string `json:"id,omitempty"`
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is one typed piece of a message. Tool parts carry a lifecycle State,
// an optional Approval and, once run, either Output or ErrorText.
type Part struct {
	Type             string          `json:"type"`
	Text             string          `json:"text,omitempty"`
	ToolCallID       string          `json:"toolCallId,omitempty"`
	State            string          `json:"state,omitempty"`
	Approval         *Approval       `json:"approval,omitempty"`
	Input            json.RawMessage `json:"input,omitempty"`
	Output           json.RawMessage `json:"output,omitempty"`
	ErrorText        string          `json:"errorText,omitempty"`
	ProviderExecuted bool            `json:"providerExecuted,omitempty"`
}

// Approval is the user's consent decision on a tool call. Approved is nil
// until the user has answered.
type Approval struct {
	ID       string `json:"id,omitempty"`
	Approved *bool  `json:"approved,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// TextMessage builds a single-part text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Parts: []Part{{Type: PartText, Text: text}}}
}

// Clone returns a deep copy of msgs so callers can transform it without
// aliasing the original parts.
func Clone(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.Parts != nil {
			out[i].Parts = make([]Part, len(m.Parts))
			for j, p := range m.Parts {
				out[i].Parts[j] = p.clone()
			}
		}
	}
	return out
}

func (p Part) clone() Part {
	if p.Approval != nil {
		a := *p.Approval
		if a.Approved != nil {
			v := *a.Approved
			a.Approved = &v
		}
		p.Approval = &a
	}
	if p.Input != nil {
		p.Input = append(json.RawMessage(nil), p.Input...)
	}
	if p.Output != nil {
		p.Output = append(json.RawMessage(nil), p.Output...)
	}
	return p
}
