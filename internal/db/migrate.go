package db

import (
	"fmt"

	"github.com/zulandar/bullpen/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model Bullpen persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.Agent{},
		&models.AgentVersion{},
		&models.AgentExecution{},
		&models.AgentFeedback{},
		&models.Conversation{},
		&models.TokenUsage{},
		&models.UserSettings{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
