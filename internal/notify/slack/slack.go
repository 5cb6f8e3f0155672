// Package slack posts factory notifications to a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/intellifactory/internal/notify"
)

// maxRetries is the max number of retries for rate-limited webhook posts.
const maxRetries = 3

// Opts configures a Notifier.
type Opts struct {
	WebhookURL string
	HTTPClient *http.Client // defaults to http.DefaultClient
}

// Notifier posts each event as a webhook message with one attachment.
type Notifier struct {
	url    string
	client *http.Client
}

// New creates a Slack Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.WebhookURL == "" {
		return nil, fmt.Errorf("slack: webhook url is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Notifier{url: opts.WebhookURL, client: opts.HTTPClient}, nil
}

// Name implements notify.Notifier.
func (n *Notifier) Name() string { return "slack" }

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, evt notify.FormattedEvent) error {
	msg := &slackapi.WebhookMessage{
		Text:        evt.Title,
		Attachments: []slackapi.Attachment{eventToAttachment(evt)},
	}
	err := retryOnRateLimit(ctx, func() error {
		return slackapi.PostWebhookCustomHTTPContext(ctx, n.url, n.client, msg)
	})
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	return nil
}

// eventToAttachment converts a FormattedEvent to a Slack Attachment.
func eventToAttachment(evt notify.FormattedEvent) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    evt.Title,
		Text:     evt.Body,
		Color:    evt.Color,
		Fallback: evt.Title,
	}
	for _, f := range evt.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
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
