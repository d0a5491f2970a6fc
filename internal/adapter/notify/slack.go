package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"switchd/internal/domain"
)

// SlackNotifier posts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
}

func NewSlackNotifier(webhookURL, channel, username string) *SlackNotifier {
	if username == "" {
		username = "switchd"
	}
	return &SlackNotifier{webhookURL: webhookURL, channel: channel, username: username}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Notify(ctx context.Context, title, subtitle string) error {
	msg := &slack.WebhookMessage{
		Channel:  s.channel,
		Username: s.username,
		Text:     fmt.Sprintf("*%s*: %s", title, subtitle),
	}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return domain.NewSubSystemError("notify", "SlackNotifier.Notify", domain.ErrNotifyFailed, err.Error())
	}
	return nil
}
