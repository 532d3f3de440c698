package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts events to a Slack channel.
type Slack struct {
	client  slackClient
	channel string
}

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	BotToken string // xoxb-... Slack bot token
	Channel  string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Slack{client: client, channel: opts.Channel}, nil
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, evt Event) error {
	options := buildSlackOptions(evt)
	err := retryOnSlackRateLimit(ctx, func() error {
		_, _, postErr := s.client.PostMessage(s.channel, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func buildSlackOptions(evt Event) []slackapi.MsgOption {
	att := slackapi.Attachment{
		Title:    title(evt),
		Text:     excerpt(evt.Result),
		Color:    colorCompleted,
		Fallback: title(evt),
		Fields: []slackapi.AttachmentField{
			{Title: "Execution", Value: evt.ExecutionID, Short: true},
			{Title: "Task thread", Value: evt.TaskThreadID, Short: true},
		},
	}
	return []slackapi.MsgOption{
		slackapi.MsgOptionText(title(evt), false),
		slackapi.MsgOptionAttachments(att),
	}
}

// retryOnSlackRateLimit calls fn and retries with backoff on Slack rate limit
// errors. It respects context cancellation and the RetryAfter duration from
// Slack.
func retryOnSlackRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
