package agent

import (
	"errors"
	"fmt"

	"github.com/zulandar/bullpen/internal/config"
	"github.com/zulandar/bullpen/internal/models"
	"gorm.io/gorm"
)

// SeedStarters creates the configured starter agents for userID. Starters
// whose slug already exists for the user, archived or not, are skipped, so
// seeding is safe to repeat. Returns the number of agents created.
func SeedStarters(gdb *gorm.DB, userID string, starters []config.StarterConfig) (int, error) {
	created := 0
	for _, s := range starters {
		slug := Slugify(s.Name)
		var count int64
		if err := gdb.Model(&models.Agent{}).Where("user_id = ? AND slug = ?", userID, slug).Count(&count).Error; err != nil {
			return created, fmt.Errorf("agent: seed starters for %s: %w", userID, err)
		}
		if count > 0 {
			continue
		}

		_, err := Create(gdb, CreateOpts{
			UserID:         userID,
			Name:           s.Name,
			Slug:           slug,
			Description:    s.Description,
			SystemPrompt:   s.SystemPrompt,
			PreferredModel: s.Model,
			IsStarter:      true,
		})
		if err != nil {
			if errors.Is(err, ErrSlugConflict) {
				continue
			}
			return created, fmt.Errorf("agent: seed starter %q: %w", s.Name, err)
		}
		created++
	}
	return created, nil
}
