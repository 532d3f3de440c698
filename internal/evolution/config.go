package evolution

import (
	"time"

	"github.com/zulandar/bullpen/internal/config"
)

// Config tunes the evolution gate.
type Config struct {
	// MinFeedback is the fewest unprocessed feedback rows that can trigger
	// a revision.
	MinFeedback int

	// Cooldown is the minimum time between two evolutions of one agent.
	Cooldown time.Duration

	// TruncateChars bounds the task and result text quoted per feedback row.
	TruncateChars int

	// ModelID optionally pins the revision model ("provider:model"). Empty
	// falls back to the owner's default and then the system default.
	ModelID string
}

// Floors of the gate. A Config may be stricter but never looser.
const (
	MinFeedbackFloor = 3
	CooldownFloor    = time.Hour
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MinFeedback:   MinFeedbackFloor,
		Cooldown:      CooldownFloor,
		TruncateChars: 500,
	}
}

// FromConfig maps the YAML evolution section onto a Config.
func FromConfig(c config.EvolutionConfig) Config {
	cfg := DefaultConfig()
	if c.MinFeedback > 0 {
		cfg.MinFeedback = c.MinFeedback
	}
	if c.Cooldown > 0 {
		cfg.Cooldown = c.Cooldown
	}
	if c.TruncateChars > 0 {
		cfg.TruncateChars = c.TruncateChars
	}
	cfg.ModelID = c.Model
	return cfg
}

// withFloors raises MinFeedback and Cooldown to their floors and fills in
// TruncateChars.
func (c Config) withFloors() Config {
	if c.MinFeedback < MinFeedbackFloor {
		c.MinFeedback = MinFeedbackFloor
	}
	if c.Cooldown < CooldownFloor {
		c.Cooldown = CooldownFloor
	}
	if c.TruncateChars <= 0 {
		c.TruncateChars = DefaultConfig().TruncateChars
	}
	return c
}
