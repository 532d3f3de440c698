package models

import "time"

// Usage sources.
const (
	UsageSpecialist = "specialist"
	UsageEvolution  = "evolution"
)

// TokenUsage is one model call's token and cost accounting.
type TokenUsage struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	UserID       string `gorm:"size:64;not null;index"`
	AgentID      string `gorm:"size:36;index"`
	ExecutionID  string `gorm:"size:36;index"`
	Source       string `gorm:"size:16;not null"`
	Provider     string `gorm:"size:32"`
	Model        string `gorm:"size:128"`
	InputTokens  int
	OutputTokens int
	CostCents    int
	CreatedAt    time.Time
}

// UserSettings holds per-user preferences consulted during model resolution.
type UserSettings struct {
	UserID       string `gorm:"primaryKey;size:64"`
	DefaultModel string `gorm:"size:128"`
	UpdatedAt    time.Time
}
