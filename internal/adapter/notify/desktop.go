// Package notify delivers toggle outcomes to people: the desktop, the log,
// and chat or HTTP webhooks.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"switchd/internal/domain"
)

// Runner launches a notification helper program.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// DesktopNotifier posts a banner through osascript on macOS or notify-send
// elsewhere.
type DesktopNotifier struct {
	method string
	run    Runner
}

// DesktopOption configures a DesktopNotifier.
type DesktopOption func(*DesktopNotifier)

// WithRunner replaces the program launcher.
func WithRunner(r Runner) DesktopOption {
	return func(d *DesktopNotifier) { d.run = r }
}

// NewDesktopNotifier creates a desktop notifier. method is "auto",
// "osascript" or "notify-send".
func NewDesktopNotifier(method string, opts ...DesktopOption) *DesktopNotifier {
	if method == "" || method == "auto" {
		method = "notify-send"
		if runtime.GOOS == "darwin" {
			method = "osascript"
		}
	}
	d := &DesktopNotifier{method: method, run: execRunner}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *DesktopNotifier) Name() string { return "desktop" }

// Notify implements domain.Notifier.
func (d *DesktopNotifier) Notify(ctx context.Context, title, subtitle string) error {
	var err error
	switch d.method {
	case "osascript":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptQuote(subtitle), appleScriptQuote(title))
		err = d.run(ctx, "osascript", "-e", script)
	default:
		err = d.run(ctx, "notify-send", "--app-name=switchd", title, subtitle)
	}
	if err != nil {
		return domain.NewSubSystemError("notify", "DesktopNotifier.Notify", domain.ErrNotifyFailed, err.Error())
	}
	return nil
}

// appleScriptQuote renders s as an AppleScript string literal.
func appleScriptQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
