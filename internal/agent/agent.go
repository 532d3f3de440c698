// Package agent manages specialist agent definitions and their append-only
// prompt version history.
package agent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/bullpen/internal/db"
	"github.com/zulandar/bullpen/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when an agent or version does not exist or
	// is not owned by the requesting user.
	ErrNotFound = errors.New("agent: not found")

	// ErrSlugConflict is returned when both the derived slug and its
	// time-suffixed fallback are taken.
	ErrSlugConflict = errors.New("agent: slug conflict")
)

// now is swapped in tests to pin the slug suffix.
var now = time.Now

// CreateOpts holds parameters for creating a new agent.
type CreateOpts struct {
	UserID         string
	Name           string
	Slug           string // derived from Name when empty
	Description    string
	SystemPrompt   string
	PreferredModel string
	IsStarter      bool
}

// UpdateOpts holds the editable non-prompt fields. Nil fields are left alone.
type UpdateOpts struct {
	Name           *string
	Description    *string
	PreferredModel *string
}

// ListFilters holds optional filters for listing agents.
type ListFilters struct {
	IncludeArchived bool
	StartersOnly    bool
}

// Create inserts an agent together with its initial version. A slug that is
// already taken for the user is retried once with a time suffix; a second
// collision returns ErrSlugConflict.
func Create(gdb *gorm.DB, opts CreateOpts) (*models.Agent, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("agent: user is required")
	}
	if strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("agent: name is required")
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		return nil, fmt.Errorf("agent: system prompt is required")
	}

	slug := opts.Slug
	if slug == "" {
		slug = Slugify(opts.Name)
	}

	a, err := insertWithInitialVersion(gdb, opts, slug)
	if err == nil {
		return a, nil
	}
	if !db.IsUniqueViolation(err) {
		return nil, fmt.Errorf("agent: create: %w", err)
	}

	slug = slug + "-" + strconv.FormatInt(now().UnixMilli(), 36)
	a, err = insertWithInitialVersion(gdb, opts, slug)
	if err == nil {
		return a, nil
	}
	if db.IsUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", ErrSlugConflict, slug)
	}
	return nil, fmt.Errorf("agent: create: %w", err)
}

func insertWithInitialVersion(gdb *gorm.DB, opts CreateOpts, slug string) (*models.Agent, error) {
	a := models.Agent{
		ID:             uuid.NewString(),
		UserID:         opts.UserID,
		Name:           strings.TrimSpace(opts.Name),
		Slug:           slug,
		Description:    opts.Description,
		SystemPrompt:   opts.SystemPrompt,
		PreferredModel: opts.PreferredModel,
		IsStarter:      opts.IsStarter,
	}
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&a).Error; err != nil {
			return err
		}
		_, err := insertNextVersion(tx, a.ID, a.SystemPrompt, models.ChangeSourceInitial, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Get retrieves an agent owned by userID, archived or not.
func Get(gdb *gorm.DB, id, userID string) (*models.Agent, error) {
	var a models.Agent
	err := gdb.Where("id = ? AND user_id = ?", id, userID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("agent: get %s: %w", id, err)
	}
	return &a, nil
}

// GetBySlug retrieves a live (non-archived) agent by its per-user slug.
func GetBySlug(gdb *gorm.DB, userID, slug string) (*models.Agent, error) {
	var a models.Agent
	err := gdb.Where("user_id = ? AND slug = ? AND archived_at IS NULL", userID, slug).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: slug %s", ErrNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("agent: get slug %s: %w", slug, err)
	}
	return &a, nil
}

// List returns the user's agents ordered by name.
func List(gdb *gorm.DB, userID string, filters ListFilters) ([]models.Agent, error) {
	q := gdb.Model(&models.Agent{}).Where("user_id = ?", userID)
	if !filters.IncludeArchived {
		q = q.Where("archived_at IS NULL")
	}
	if filters.StartersOnly {
		q = q.Where("is_starter = ?", true)
	}

	var agents []models.Agent
	if err := q.Order("name ASC, created_at ASC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("agent: list for %s: %w", userID, err)
	}
	return agents, nil
}

// Update changes an agent's name, description or preferred model. The slug
// is stable across renames so existing dispatch tool names keep working.
func Update(gdb *gorm.DB, id, userID string, opts UpdateOpts) (*models.Agent, error) {
	a, err := Get(gdb, id, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return nil, fmt.Errorf("agent: name is required")
		}
		updates["name"] = name
	}
	if opts.Description != nil {
		updates["description"] = *opts.Description
	}
	if opts.PreferredModel != nil {
		updates["preferred_model"] = *opts.PreferredModel
	}
	if len(updates) == 0 {
		return a, nil
	}

	if err := gdb.Model(a).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("agent: update %s: %w", id, err)
	}
	return Get(gdb, id, userID)
}

// UpdatePrompt is a manual edit of the live prompt. The previous text is
// snapshotted as a manual version first.
func UpdatePrompt(gdb *gorm.DB, id, userID, prompt, summary string) (*models.Agent, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("agent: system prompt is required")
	}
	if _, err := Get(gdb, id, userID); err != nil {
		return nil, err
	}
	if _, err := ReplacePrompt(gdb, id, prompt, models.ChangeSourceManual, summary); err != nil {
		return nil, err
	}
	return Get(gdb, id, userID)
}

// Archive soft-deletes an agent. Its versions, executions and feedback stay.
func Archive(gdb *gorm.DB, id, userID string) error {
	result := gdb.Model(&models.Agent{}).
		Where("id = ? AND user_id = ? AND archived_at IS NULL", id, userID).
		Update("archived_at", now())
	if result.Error != nil {
		return fmt.Errorf("agent: archive %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Slugify derives a URL- and tool-name-safe slug from a display name.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > 120 {
		slug = strings.TrimSuffix(slug[:120], "-")
	}
	if slug == "" {
		return "agent"
	}
	return slug
}
