package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

// Backend is a named notifier.
type Backend interface {
	domain.Notifier
	Name() string
}

// Multi delivers every notification to all backends concurrently. Each
// backend gets its own timeout; failures are joined.
type Multi struct {
	backends []Backend
	timeout  time.Duration
	logger   *slog.Logger
}

func NewMulti(backends []Backend, timeout time.Duration, logger *slog.Logger) *Multi {
	return &Multi{backends: backends, timeout: timeout, logger: logger}
}

// Backends returns the configured backend names.
func (m *Multi) Backends() []string {
	names := make([]string, len(m.backends))
	for i, b := range m.backends {
		names[i] = b.Name()
	}
	return names
}

// Notify implements domain.Notifier.
func (m *Multi) Notify(ctx context.Context, title, subtitle string) error {
	if len(m.backends) == 0 {
		return nil
	}
	errs := make([]error, len(m.backends))
	var wg sync.WaitGroup
	for i, b := range m.backends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bctx := ctx
			if m.timeout > 0 {
				var cancel context.CancelFunc
				bctx, cancel = context.WithTimeout(ctx, m.timeout)
				defer cancel()
			}
			if err := b.Notify(bctx, title, subtitle); err != nil {
				m.logger.Debug("notifier failed", "backend", b.Name(), "error", err)
				errs[i] = fmt.Errorf("%s: %w", b.Name(), err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// New builds the notifier set enabled in cfg.
func New(cfg config.NotifyConfig, logger *slog.Logger) (*Multi, error) {
	var backends []Backend
	if cfg.Desktop.Enabled {
		backends = append(backends, NewDesktopNotifier(cfg.Desktop.Method))
	}
	if cfg.Log.Enabled {
		backends = append(backends, NewLogNotifier(logger))
	}
	if cfg.Webhook.Enabled {
		backends = append(backends, NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Headers, nil))
	}
	if cfg.Slack.Enabled {
		backends = append(backends, NewSlackNotifier(cfg.Slack.WebhookURL, cfg.Slack.Channel, cfg.Slack.Username))
	}
	if cfg.Discord.Enabled {
		d, err := NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.Discord.Username)
		if err != nil {
			return nil, err
		}
		backends = append(backends, d)
	}
	return NewMulti(backends, cfg.Timeout, logger), nil
}
