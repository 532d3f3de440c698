package agent

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zulandar/bullpen/internal/db"
	"github.com/zulandar/bullpen/internal/models"
	"gorm.io/gorm"
)

// maxVersionAttempts bounds retries when two writers race to the same
// version number and the (agent_id, version) unique index rejects one.
const maxVersionAttempts = 3

// SaveVersion appends a snapshot of text to the agent's history. The next
// number is max(version)+1, computed in the same transaction as the insert.
func SaveVersion(gdb *gorm.DB, agentID, text, source, summary string) (*models.AgentVersion, error) {
	if !validSource(source) {
		return nil, fmt.Errorf("agent: save version for %s: invalid change source %q", agentID, source)
	}
	var v *models.AgentVersion
	err := withVersionRetry(func() error {
		return gdb.Transaction(func(tx *gorm.DB) error {
			var err error
			v, err = insertNextVersion(tx, agentID, text, source, summary)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("agent: save version for %s: %w", agentID, err)
	}
	return v, nil
}

// ReplacePrompt snapshots the agent's current prompt as a new version and
// overwrites the live prompt with text, both in one transaction.
func ReplacePrompt(gdb *gorm.DB, agentID, text, source, summary string) (*models.AgentVersion, error) {
	if !validSource(source) || source == models.ChangeSourceInitial {
		return nil, fmt.Errorf("agent: replace prompt for %s: invalid change source %q", agentID, source)
	}
	var v *models.AgentVersion
	err := withVersionRetry(func() error {
		return gdb.Transaction(func(tx *gorm.DB) error {
			var a models.Agent
			if err := tx.Where("id = ?", agentID).First(&a).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: %s", ErrNotFound, agentID)
				}
				return err
			}

			var err error
			v, err = insertNextVersion(tx, agentID, a.SystemPrompt, source, summary)
			if err != nil {
				return err
			}
			return tx.Model(&a).Updates(map[string]interface{}{
				"system_prompt": text,
				"updated_at":    now(),
			}).Error
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("agent: replace prompt for %s: %w", agentID, err)
	}
	return v, nil
}

// ListVersions returns the agent's history, newest first.
func ListVersions(gdb *gorm.DB, agentID string) ([]models.AgentVersion, error) {
	var versions []models.AgentVersion
	if err := gdb.Where("agent_id = ?", agentID).Order("version DESC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("agent: list versions for %s: %w", agentID, err)
	}
	return versions, nil
}

// LatestVersionBySource returns the newest version written by source, or
// nil when the agent has none.
func LatestVersionBySource(gdb *gorm.DB, agentID, source string) (*models.AgentVersion, error) {
	var v models.AgentVersion
	err := gdb.Where("agent_id = ? AND change_source = ?", agentID, source).
		Order("version DESC").First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("agent: latest %s version for %s: %w", source, agentID, err)
	}
	return &v, nil
}

// Revert restores the prompt from versionID. The current prompt is first
// snapshotted as a manual version noting which version was restored.
func Revert(gdb *gorm.DB, agentID, versionID, userID string) (*models.Agent, error) {
	if _, err := Get(gdb, agentID, userID); err != nil {
		return nil, err
	}

	var target models.AgentVersion
	err := gdb.Where("id = ? AND agent_id = ?", versionID, agentID).First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: version %s", ErrNotFound, versionID)
	}
	if err != nil {
		return nil, fmt.Errorf("agent: revert %s: %w", agentID, err)
	}

	summary := fmt.Sprintf("Reverted to version %d", target.Version)
	if _, err := ReplacePrompt(gdb, agentID, target.SystemPrompt, models.ChangeSourceManual, summary); err != nil {
		return nil, err
	}
	return Get(gdb, agentID, userID)
}

func insertNextVersion(tx *gorm.DB, agentID, text, source, summary string) (*models.AgentVersion, error) {
	var current int
	err := tx.Model(&models.AgentVersion{}).
		Where("agent_id = ?", agentID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&current).Error
	if err != nil {
		return nil, err
	}

	v := models.AgentVersion{
		ID:            uuid.NewString(),
		AgentID:       agentID,
		Version:       current + 1,
		SystemPrompt:  text,
		ChangeSource:  source,
		ChangeSummary: summary,
	}
	if err := tx.Create(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func withVersionRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		err = fn()
		if err == nil || !db.IsUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("version number still contended after %d attempts: %w", maxVersionAttempts, err)
}

func validSource(source string) bool {
	switch source {
	case models.ChangeSourceInitial, models.ChangeSourceManual, models.ChangeSourceEvolution:
		return true
	}
	return false
}
