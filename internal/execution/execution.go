// Package execution stores the lifecycle of specialist runs. A row starts
// running and receives exactly one terminal write.
package execution

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/bullpen/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when an execution does not exist or is not
	// owned by the requesting user.
	ErrNotFound = errors.New("execution: not found")

	// ErrAlreadyTerminal is returned when a terminal write targets a row
	// that has already completed or failed.
	ErrAlreadyTerminal = errors.New("execution: already terminal")
)

// AbandonedMessage is the result recorded on rows failed by Reap.
const AbandonedMessage = "execution abandoned"

// now is swapped in tests.
var now = time.Now

// StartOpts holds parameters for recording a new run.
type StartOpts struct {
	UserID         string
	AgentID        string
	ConversationID string
	ProjectID      string
	Task           string
}

// ListFilters holds optional filters for listing executions.
type ListFilters struct {
	AgentID string
	Status  string
	Limit   int
}

// Start inserts a running execution.
func Start(db *gorm.DB, opts StartOpts) (*models.AgentExecution, error) {
	if opts.UserID == "" || opts.AgentID == "" {
		return nil, fmt.Errorf("execution: start: user and agent are required")
	}
	if opts.Task == "" {
		return nil, fmt.Errorf("execution: start: task is required")
	}

	e := models.AgentExecution{
		ID:             uuid.NewString(),
		UserID:         opts.UserID,
		AgentID:        opts.AgentID,
		ConversationID: optional(opts.ConversationID),
		ProjectID:      optional(opts.ProjectID),
		Task:           opts.Task,
		Status:         models.ExecutionRunning,
	}
	if err := db.Create(&e).Error; err != nil {
		return nil, fmt.Errorf("execution: start for agent %s: %w", opts.AgentID, err)
	}
	return &e, nil
}

// Complete marks a running execution completed with result.
func Complete(db *gorm.DB, id, result string) error {
	return finish(db, id, models.ExecutionCompleted, result)
}

// Fail marks a running execution failed, recording message as its result.
func Fail(db *gorm.DB, id, message string) error {
	return finish(db, id, models.ExecutionFailed, message)
}

// SetModel records which model served the run.
func SetModel(db *gorm.DB, id, model string) error {
	if err := db.Model(&models.AgentExecution{}).Where("id = ?", id).Update("model", model).Error; err != nil {
		return fmt.Errorf("execution: set model for %s: %w", id, err)
	}
	return nil
}

// finish applies the one terminal transition. The status guard in the WHERE
// clause makes a second write affect zero rows.
func finish(db *gorm.DB, id, status, result string) error {
	res := db.Model(&models.AgentExecution{}).
		Where("id = ? AND status = ?", id, models.ExecutionRunning).
		Updates(map[string]interface{}{
			"status":       status,
			"result":       result,
			"completed_at": now(),
		})
	if res.Error != nil {
		return fmt.Errorf("execution: mark %s %s: %w", id, status, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := db.Model(&models.AgentExecution{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("execution: mark %s %s: %w", id, status, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: %s", ErrAlreadyTerminal, id)
}

// Get retrieves an execution owned by userID.
func Get(db *gorm.DB, id, userID string) (*models.AgentExecution, error) {
	var e models.AgentExecution
	err := db.Where("id = ? AND user_id = ?", id, userID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("execution: get %s: %w", id, err)
	}
	return &e, nil
}

// GetMany loads executions by ID, keyed by ID. Missing IDs are absent from
// the map.
func GetMany(db *gorm.DB, ids []string) (map[string]models.AgentExecution, error) {
	result := make(map[string]models.AgentExecution)
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.AgentExecution
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("execution: batch get: %w", err)
	}
	for _, r := range rows {
		result[r.ID] = r
	}
	return result, nil
}

// List returns the user's executions, newest first.
func List(db *gorm.DB, userID string, filters ListFilters) ([]models.AgentExecution, error) {
	q := db.Where("user_id = ?", userID)
	if filters.AgentID != "" {
		q = q.Where("agent_id = ?", filters.AgentID)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}

	var rows []models.AgentExecution
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("execution: list for %s: %w", userID, err)
	}
	return rows, nil
}

// Reap fails every running execution created before cutoff and returns how
// many rows it changed.
func Reap(db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.Model(&models.AgentExecution{}).
		Where("status = ? AND created_at < ?", models.ExecutionRunning, cutoff).
		Updates(map[string]interface{}{
			"status":       models.ExecutionFailed,
			"result":       AbandonedMessage,
			"completed_at": now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("execution: reap before %s: %w", cutoff.Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
