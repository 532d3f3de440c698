package models

import "time"

// Feedback ratings.
const (
	RatingPositive = "positive"
	RatingNegative = "negative"
)

// AgentFeedback is one rating submission against an agent, optionally tied
// to the execution that produced the rated output.
type AgentFeedback struct {
	ID          string    `gorm:"primaryKey;size:36"`
	UserID      string    `gorm:"size:64;not null"`
	AgentID     string    `gorm:"size:36;not null;index:idx_feedback_agent_created"`
	ExecutionID *string   `gorm:"size:36;index"`
	Rating      string    `gorm:"size:16;not null"`
	Correction  string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index:idx_feedback_agent_created"`
}
