// Package conversation persists chat threads and their JSON message logs.
package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zulandar/bullpen/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a conversation does not exist or is not owned
// by the requesting user.
var ErrNotFound = errors.New("conversation: not found")

// maxTitleTaskRunes bounds the task excerpt used in task thread titles.
const maxTitleTaskRunes = 60

// CreateOpts holds parameters for creating a conversation.
type CreateOpts struct {
	UserID   string
	Type     string // defaults to coaching
	ParentID string
	Title    string
	Messages []Message
}

// Create inserts a conversation with an initial message log.
func Create(db *gorm.DB, opts CreateOpts) (*models.Conversation, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("conversation: create: user is required")
	}
	typ := opts.Type
	if typ == "" {
		typ = models.ConversationCoaching
	}
	if typ != models.ConversationCoaching && typ != models.ConversationTask {
		return nil, fmt.Errorf("conversation: create: invalid type %q", typ)
	}
	encoded, err := encode(opts.Messages)
	if err != nil {
		return nil, fmt.Errorf("conversation: create: %w", err)
	}

	c := models.Conversation{
		ID:       uuid.NewString(),
		UserID:   opts.UserID,
		Type:     typ,
		Title:    opts.Title,
		Messages: encoded,
	}
	if opts.ParentID != "" {
		parent := opts.ParentID
		c.ParentID = &parent
	}
	if err := db.Create(&c).Error; err != nil {
		return nil, fmt.Errorf("conversation: create: %w", err)
	}
	return &c, nil
}

// CreateTaskThread spawns the task conversation that holds one specialist
// run's transcript: the task as the user turn, the result as the reply.
func CreateTaskThread(db *gorm.DB, userID, parentID, agentName, task, result string) (*models.Conversation, error) {
	return Create(db, CreateOpts{
		UserID:   userID,
		Type:     models.ConversationTask,
		ParentID: parentID,
		Title:    TaskTitle(agentName, task),
		Messages: []Message{
			TextMessage(RoleUser, task),
			TextMessage(RoleAssistant, result),
		},
	})
}

// Get retrieves a conversation owned by userID.
func Get(db *gorm.DB, id, userID string) (*models.Conversation, error) {
	var c models.Conversation
	err := db.Where("id = ? AND user_id = ?", id, userID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get %s: %w", id, err)
	}
	return &c, nil
}

// ListChildren returns the task threads spawned from parentID, oldest first.
func ListChildren(db *gorm.DB, parentID, userID string) ([]models.Conversation, error) {
	var rows []models.Conversation
	err := db.Where("parent_id = ? AND user_id = ?", parentID, userID).
		Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("conversation: list children of %s: %w", parentID, err)
	}
	return rows, nil
}

// Messages decodes a conversation's message log.
func Messages(c *models.Conversation) ([]Message, error) {
	if c.Messages == "" {
		return nil, nil
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(c.Messages), &msgs); err != nil {
		return nil, fmt.Errorf("conversation: decode messages of %s: %w", c.ID, err)
	}
	return msgs, nil
}

// SaveMessages replaces the message log of a conversation owned by userID.
func SaveMessages(db *gorm.DB, id, userID string, msgs []Message) error {
	encoded, err := encode(msgs)
	if err != nil {
		return fmt.Errorf("conversation: save messages of %s: %w", id, err)
	}
	res := db.Model(&models.Conversation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("messages", encoded)
	if res.Error != nil {
		return fmt.Errorf("conversation: save messages of %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// TaskTitle derives a task thread title from the agent name and the first
// line of the task.
func TaskTitle(agentName, task string) string {
	line := strings.TrimSpace(task)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if utf8.RuneCountInString(line) > maxTitleTaskRunes {
		runes := []rune(line)
		line = strings.TrimSpace(string(runes[:maxTitleTaskRunes])) + "..."
	}
	if line == "" {
		return agentName
	}
	return agentName + ": " + line
}

func encode(msgs []Message) (string, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
