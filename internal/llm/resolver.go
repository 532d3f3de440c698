package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChainResolver resolves a model by falling back through the preferred
// model, the user's default model and the system default, taking the first
// candidate the registry can serve.
type ChainResolver struct {
	db           *gorm.DB
	registry     *Registry
	defaultModel string
	logger       *zap.Logger
}

// NewChainResolver creates a ChainResolver.
func NewChainResolver(db *gorm.DB, registry *Registry, defaultModel string, logger *zap.Logger) *ChainResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainResolver{db: db, registry: registry, defaultModel: defaultModel, logger: logger}
}

// Resolve implements Resolver.
func (r *ChainResolver) Resolve(ctx context.Context, userID, preferredModelID string) (*Resolved, error) {
	userDefault, err := r.userDefault(ctx, userID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, id := range []string{preferredModelID, userDefault, r.defaultModel} {
		if id == "" {
			continue
		}
		resolved, err := r.registry.Model(id)
		if err != nil {
			r.logger.Debug("model candidate unavailable", zap.String("model", id), zap.Error(err))
			lastErr = err
			continue
		}
		return resolved, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no model configured")
	}
	return nil, fmt.Errorf("llm: resolve model for %s: %w", userID, lastErr)
}

func (r *ChainResolver) userDefault(ctx context.Context, userID string) (string, error) {
	if r.db == nil || userID == "" {
		return "", nil
	}
	return UserDefault(r.db.WithContext(ctx), userID)
}
