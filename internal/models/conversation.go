package models

import "time"

// Conversation types.
const (
	ConversationCoaching = "coaching"
	ConversationTask     = "task"
)

// Conversation is a chat thread. Task threads are spawned one per
// successful specialist execution and point back at the coaching thread
// the dispatch came from.
type Conversation struct {
	ID        string  `gorm:"primaryKey;size:36"`
	UserID    string  `gorm:"size:64;not null;index"`
	Type      string  `gorm:"size:16;default:coaching;index"`
	ParentID  *string `gorm:"size:36;index"`
	Title     string  `gorm:"size:256"`
	Messages  string  `gorm:"type:json"` // JSON array of role-tagged messages
	CreatedAt time.Time
	UpdatedAt time.Time
}
