package models

import "time"

// Change sources recorded on an AgentVersion.
const (
	ChangeSourceInitial   = "initial"
	ChangeSourceManual    = "manual"
	ChangeSourceEvolution = "evolution"
)

// Agent is a user-owned specialist definition. SystemPrompt holds the live
// instruction text; every change to it is preceded by an AgentVersion row.
type Agent struct {
	ID             string     `gorm:"primaryKey;size:36"`
	UserID         string     `gorm:"size:64;not null;uniqueIndex:idx_agent_user_slug"`
	Name           string     `gorm:"size:128;not null"`
	Slug           string     `gorm:"size:160;not null;uniqueIndex:idx_agent_user_slug"`
	Description    string     `gorm:"type:text"`
	SystemPrompt   string     `gorm:"type:mediumtext;not null"`
	PreferredModel string     `gorm:"size:128"`
	IsStarter      bool       `gorm:"default:false"`
	ArchivedAt     *time.Time `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Versions []AgentVersion `gorm:"foreignKey:AgentID"`
}

// AgentVersion is an immutable snapshot of an agent's SystemPrompt.
type AgentVersion struct {
	ID            string `gorm:"primaryKey;size:36"`
	AgentID       string `gorm:"size:36;not null;uniqueIndex:idx_agent_version"`
	Version       int    `gorm:"not null;uniqueIndex:idx_agent_version"`
	SystemPrompt  string `gorm:"type:mediumtext;not null"`
	ChangeSource  string `gorm:"size:16;not null;index"`
	ChangeSummary string `gorm:"type:text"`
	CreatedAt     time.Time
}
