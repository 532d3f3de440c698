package models

import "time"

// Execution statuses. running is the only non-terminal status.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// AgentExecution records one specialist run against a task.
type AgentExecution struct {
	ID             string  `gorm:"primaryKey;size:36"`
	UserID         string  `gorm:"size:64;not null;index"`
	AgentID        string  `gorm:"size:36;not null;index"`
	ConversationID *string `gorm:"size:36;index"`
	ProjectID      *string `gorm:"size:36"`
	Task           string  `gorm:"type:mediumtext;not null"`
	Result         *string `gorm:"type:mediumtext"`
	Status         string  `gorm:"size:16;default:running;index"`
	Model          string  `gorm:"size:128"`
	CreatedAt      time.Time
	CompletedAt    *time.Time
}
