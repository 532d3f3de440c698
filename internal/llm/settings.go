package llm

import (
	"errors"
	"fmt"

	"github.com/zulandar/bullpen/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserDefault returns the user's default model ID, or "" when none is set.
func UserDefault(db *gorm.DB, userID string) (string, error) {
	var settings models.UserSettings
	err := db.Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("llm: load settings for %s: %w", userID, err)
	}
	return settings.DefaultModel, nil
}

// SetUserDefault stores the user's default model. An empty modelID clears
// it so resolution falls back to the system default.
func SetUserDefault(db *gorm.DB, userID, modelID string) error {
	if userID == "" {
		return fmt.Errorf("llm: user is required")
	}
	if modelID != "" {
		if _, _, err := ParseModelID(modelID); err != nil {
			return err
		}
	}
	settings := models.UserSettings{UserID: userID, DefaultModel: modelID}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"default_model", "updated_at"}),
	}).Create(&settings).Error
	if err != nil {
		return fmt.Errorf("llm: save settings for %s: %w", userID, err)
	}
	return nil
}
