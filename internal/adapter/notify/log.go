package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Name() string { return "log" }

func (l *LogNotifier) Notify(ctx context.Context, title, subtitle string) error {
	l.logger.InfoContext(ctx, "notification", "title", title, "subtitle", subtitle)
	return nil
}
