package server

import (
	"time"

	"github.com/zulandar/bullpen/internal/models"
)

type agentView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Slug           string     `json:"slug"`
	Description    string     `json:"description"`
	SystemPrompt   string     `json:"systemPrompt"`
	PreferredModel string     `json:"preferredModel,omitempty"`
	IsStarter      bool       `json:"isStarter"`
	ArchivedAt     *time.Time `json:"archivedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func newAgentView(a *models.Agent) agentView {
	return agentView{
		ID:             a.ID,
		Name:           a.Name,
		Slug:           a.Slug,
		Description:    a.Description,
		SystemPrompt:   a.SystemPrompt,
		PreferredModel: a.PreferredModel,
		IsStarter:      a.IsStarter,
		ArchivedAt:     a.ArchivedAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type versionView struct {
	ID            string    `json:"id"`
	AgentID       string    `json:"agentId"`
	Version       int       `json:"version"`
	SystemPrompt  string    `json:"systemPrompt"`
	ChangeSource  string    `json:"changeSource"`
	ChangeSummary string    `json:"changeSummary,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func newVersionView(v *models.AgentVersion) versionView {
	return versionView{
		ID:            v.ID,
		AgentID:       v.AgentID,
		Version:       v.Version,
		SystemPrompt:  v.SystemPrompt,
		ChangeSource:  v.ChangeSource,
		ChangeSummary: v.ChangeSummary,
		CreatedAt:     v.CreatedAt,
	}
}

type executionView struct {
	ID             string     `json:"id"`
	AgentID        string     `json:"agentId"`
	ConversationID *string    `json:"conversationId,omitempty"`
	ProjectID      *string    `json:"projectId,omitempty"`
	Task           string     `json:"task"`
	Result         *string    `json:"result,omitempty"`
	Status         string     `json:"status"`
	Model          string     `json:"model,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

func newExecutionView(e *models.AgentExecution) executionView {
	return executionView{
		ID:             e.ID,
		AgentID:        e.AgentID,
		ConversationID: e.ConversationID,
		ProjectID:      e.ProjectID,
		Task:           e.Task,
		Result:         e.Result,
		Status:         e.Status,
		Model:          e.Model,
		CreatedAt:      e.CreatedAt,
		CompletedAt:    e.CompletedAt,
	}
}

type feedbackView struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agentId"`
	ExecutionID *string   `json:"executionId,omitempty"`
	Rating      string    `json:"rating"`
	Correction  string    `json:"correction,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newFeedbackView(f *models.AgentFeedback) feedbackView {
	return feedbackView{
		ID:          f.ID,
		AgentID:     f.AgentID,
		ExecutionID: f.ExecutionID,
		Rating:      f.Rating,
		Correction:  f.Correction,
		CreatedAt:   f.CreatedAt,
	}
}
