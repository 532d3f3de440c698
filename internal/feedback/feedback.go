// Package feedback is the append-only ledger of user ratings on agent output.
package feedback

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/bullpen/internal/models"
	"gorm.io/gorm"
)

// ErrInvalidRating is returned for a rating other than positive or negative.
var ErrInvalidRating = errors.New("feedback: invalid rating")

// SubmitOpts holds one feedback submission.
type SubmitOpts struct {
	UserID      string
	AgentID     string
	ExecutionID string
	Rating      string
	Correction  string
}

// Summary aggregates an agent's feedback history.
type Summary struct {
	Positive    int64      `json:"positive"`
	Negative    int64      `json:"negative"`
	Corrections int64      `json:"corrections"`
	LastAt      *time.Time `json:"lastAt,omitempty"`
}

// Submit appends a feedback row. Repeated submissions for the same
// execution are kept as separate rows.
func Submit(db *gorm.DB, opts SubmitOpts) (*models.AgentFeedback, error) {
	switch opts.Rating {
	case models.RatingPositive, models.RatingNegative:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRating, opts.Rating)
	}
	if opts.UserID == "" || opts.AgentID == "" {
		return nil, fmt.Errorf("feedback: submit: user and agent are required")
	}

	fb := models.AgentFeedback{
		ID:         uuid.NewString(),
		UserID:     opts.UserID,
		AgentID:    opts.AgentID,
		Rating:     opts.Rating,
		Correction: strings.TrimSpace(opts.Correction),
	}
	if opts.ExecutionID != "" {
		id := opts.ExecutionID
		fb.ExecutionID = &id
	}
	if err := db.Create(&fb).Error; err != nil {
		return nil, fmt.Errorf("feedback: submit for agent %s: %w", opts.AgentID, err)
	}
	return &fb, nil
}

// ListSince returns the agent's feedback created strictly after since,
// oldest first. A zero since returns the full history.
func ListSince(db *gorm.DB, agentID string, since time.Time) ([]models.AgentFeedback, error) {
	q := db.Where("agent_id = ?", agentID)
	if !since.IsZero() {
		q = q.Where("created_at > ?", since)
	}
	var rows []models.AgentFeedback
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("feedback: list for %s: %w", agentID, err)
	}
	return rows, nil
}

// ListForAgent returns the agent's most recent feedback, newest first.
func ListForAgent(db *gorm.DB, agentID string, limit int) ([]models.AgentFeedback, error) {
	q := db.Where("agent_id = ?", agentID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.AgentFeedback
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("feedback: list for %s: %w", agentID, err)
	}
	return rows, nil
}

// Summarize counts the agent's feedback by rating.
func Summarize(db *gorm.DB, agentID string) (Summary, error) {
	var s Summary
	type row struct {
		Rating string
		Count  int64
	}
	var rows []row
	err := db.Model(&models.AgentFeedback{}).
		Select("rating, COUNT(*) as count").
		Where("agent_id = ?", agentID).
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return s, fmt.Errorf("feedback: summarize %s: %w", agentID, err)
	}
	for _, r := range rows {
		switch r.Rating {
		case models.RatingPositive:
			s.Positive = r.Count
		case models.RatingNegative:
			s.Negative = r.Count
		}
	}

	if err := db.Model(&models.AgentFeedback{}).
		Where("agent_id = ? AND correction <> ''", agentID).
		Count(&s.Corrections).Error; err != nil {
		return s, fmt.Errorf("feedback: summarize %s: %w", agentID, err)
	}

	var last models.AgentFeedback
	err = db.Where("agent_id = ?", agentID).Order("created_at DESC").First(&last).Error
	if err == nil {
		s.LastAt = &last.CreatedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return s, fmt.Errorf("feedback: summarize %s: %w", agentID, err)
	}
	return s, nil
}

// Actionable reports whether rows carry a signal worth revising a prompt
// for: at least one negative rating or a non-empty correction.
func Actionable(rows []models.AgentFeedback) bool {
	for _, r := range rows {
		if r.Rating == models.RatingNegative || strings.TrimSpace(r.Correction) != "" {
			return true
		}
	}
	return false
}
