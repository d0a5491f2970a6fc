package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"

	"switchd/internal/domain"
)

// webhookExecutor is the slice of *discordgo.Session the notifier needs.
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts to a Discord channel webhook.
type DiscordNotifier struct {
	id       string
	token    string
	username string
	session  webhookExecutor
}

// NewDiscordNotifier parses a webhook URL of the form
// https://discord.com/api/webhooks/{id}/{token}.
func NewDiscordNotifier(webhookURL, username string) (*DiscordNotifier, error) {
	id, token, err := parseDiscordWebhook(webhookURL)
	if err != nil {
		return nil, err
	}
	// Webhook execution needs no bot token.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	if username == "" {
		username = "switchd"
	}
	return &DiscordNotifier{id: id, token: token, username: username, session: session}, nil
}

func parseDiscordWebhook(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", domain.NewSubSystemError("notify", "parseDiscordWebhook", domain.ErrInvalidInput, err.Error())
	}
	_, rest, ok := strings.Cut(u.Path, "/webhooks/")
	if !ok {
		return "", "", domain.NewSubSystemError("notify", "parseDiscordWebhook", domain.ErrInvalidInput,
			"webhook url has no /webhooks/ segment")
	}
	id, token, ok := strings.Cut(strings.Trim(rest, "/"), "/")
	if !ok || id == "" || token == "" || strings.Contains(token, "/") {
		return "", "", domain.NewSubSystemError("notify", "parseDiscordWebhook", domain.ErrInvalidInput,
			"webhook url must end in /webhooks/{id}/{token}")
	}
	return id, token, nil
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) Notify(ctx context.Context, title, subtitle string) error {
	params := &discordgo.WebhookParams{
		Username: d.username,
		Embeds: []*discordgo.MessageEmbed{{
			Title:       title,
			Description: subtitle,
		}},
	}
	if _, err := d.session.WebhookExecute(d.id, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return domain.NewSubSystemError("notify", "DiscordNotifier.Notify", domain.ErrNotifyFailed, err.Error())
	}
	return nil
}
