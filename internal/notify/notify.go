// Package notify posts finished dispatches to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/zulandar/bullpen/internal/config"
)

// maxResultRunes bounds the result excerpt posted to chat.
const maxResultRunes = 500

// colorCompleted is the accent color of a completed dispatch.
const colorCompleted = "#2eb67d"

// Event is one completed dispatch.
type Event struct {
	UserID       string
	AgentName    string
	ExecutionID  string
	TaskThreadID string
	ToolCallID   string
	Result       string
}

// Notifier delivers events somewhere a human will see them.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the notifiers enabled in cfg. It returns nil when none
// are configured. Tokens are read from the environment variables named in
// cfg.
func FromConfig(cfg config.NotifyConfig) (Notifier, error) {
	var m Multi
	if cfg.Slack.BotTokenEnv != "" {
		token := os.Getenv(cfg.Slack.BotTokenEnv)
		if token == "" {
			return nil, fmt.Errorf("notify: %s is not set", cfg.Slack.BotTokenEnv)
		}
		s, err := NewSlack(SlackOpts{BotToken: token, Channel: cfg.Slack.Channel})
		if err != nil {
			return nil, err
		}
		m = append(m, s)
	}
	if cfg.Discord.BotTokenEnv != "" {
		token := os.Getenv(cfg.Discord.BotTokenEnv)
		if token == "" {
			return nil, fmt.Errorf("notify: %s is not set", cfg.Discord.BotTokenEnv)
		}
		d, err := NewDiscord(DiscordOpts{BotToken: token, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		m = append(m, d)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func title(evt Event) string {
	return fmt.Sprintf("%s finished a task", evt.AgentName)
}

func excerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= maxResultRunes {
		return s
	}
	return string(runes[:maxResultRunes]) + "..."
}
