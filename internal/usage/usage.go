// Package usage records per-call token usage and cost, and aggregates it
// per model.
package usage

import (
	"context"
	"fmt"

	"github.com/zulandar/bullpen/internal/llm"
	"github.com/zulandar/bullpen/internal/metrics"
	"github.com/zulandar/bullpen/internal/models"
	"gorm.io/gorm"
)

// Entry describes one model call to be recorded.
type Entry struct {
	UserID      string
	AgentID     string
	ExecutionID string
	Source      string
	Provider    string
	Model       string
	Usage       llm.Usage
}

// ModelTotal is the aggregated usage of one model.
type ModelTotal struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Calls        int64  `json:"calls"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	CostCents    int64  `json:"costCents"`
}

// Recorder writes TokenUsage rows priced with a Pricing table.
type Recorder struct {
	db      *gorm.DB
	pricing *llm.Pricing
	metrics *metrics.Metrics
}

// NewRecorder creates a Recorder. pricing and m may be nil.
func NewRecorder(db *gorm.DB, pricing *llm.Pricing, m *metrics.Metrics) *Recorder {
	return &Recorder{db: db, pricing: pricing, metrics: m}
}

// Record inserts one usage row.
func (r *Recorder) Record(ctx context.Context, e Entry) (*models.TokenUsage, error) {
	if e.UserID == "" {
		return nil, fmt.Errorf("usage: record: user is required")
	}
	switch e.Source {
	case models.UsageSpecialist, models.UsageEvolution:
	default:
		return nil, fmt.Errorf("usage: record: invalid source %q", e.Source)
	}

	row := models.TokenUsage{
		UserID:       e.UserID,
		AgentID:      e.AgentID,
		ExecutionID:  e.ExecutionID,
		Source:       e.Source,
		Provider:     e.Provider,
		Model:        e.Model,
		InputTokens:  e.Usage.InputTokens,
		OutputTokens: e.Usage.OutputTokens,
	}
	if r.pricing != nil {
		row.CostCents = r.pricing.CostCents(e.Model, e.Usage.InputTokens, e.Usage.OutputTokens)
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("usage: record %s call for %s: %w", e.Source, e.UserID, err)
	}
	if r.metrics != nil {
		r.metrics.RecordUsage(e.Source, e.Model, row.InputTokens, row.OutputTokens, row.CostCents)
	}
	return &row, nil
}

// Summarize returns the user's usage grouped by provider and model, most
// expensive first.
func Summarize(db *gorm.DB, userID string) ([]ModelTotal, error) {
	var totals []ModelTotal
	err := db.Model(&models.TokenUsage{}).
		Select("provider, model, COUNT(*) as calls, " +
			"COALESCE(SUM(input_tokens),0) as input_tokens, " +
			"COALESCE(SUM(output_tokens),0) as output_tokens, " +
			"COALESCE(SUM(cost_cents),0) as cost_cents").
		Where("user_id = ?", userID).
		Group("provider, model").
		Order("cost_cents DESC, model ASC").
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("usage: summarize for %s: %w", userID, err)
	}
	return totals, nil
}

// ForExecution returns the usage rows of one execution.
func ForExecution(db *gorm.DB, executionID string) ([]models.TokenUsage, error) {
	var rows []models.TokenUsage
	if err := db.Where("execution_id = ?", executionID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("usage: list for execution %s: %w", executionID, err)
	}
	return rows, nil
}
