package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateSwitches(cfg, ve)
	validateExecutor(cfg, ve)
	validateNotify(cfg, ve)
	validateGateway(cfg, ve)
	validateScheduler(cfg, ve)
	validateHistory(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Warnings lists tolerated oddities that Validate accepts.
func Warnings(cfg *Config) []string {
	var out []string
	for _, s := range cfg.Switches {
		if strings.EqualFold(s.Type, "switch") && s.On == nil && !cfg.Toggle.StrictOnCommand {
			out = append(out, fmt.Sprintf("switch %q has no on command; turning it on will do nothing", s.ID))
		}
		if strings.EqualFold(s.Type, "button") && (s.On != nil || s.Off != nil || s.Status != nil) {
			out = append(out, fmt.Sprintf("button %q ignores its on, off and status commands", s.ID))
		}
	}
	return out
}

var validKinds = map[string]bool{
	"":            true,
	"shell":       true,
	"sh":          true,
	"script":      true,
	"applescript": true,
}

func validateSwitches(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, s := range cfg.Switches {
		label := fmt.Sprintf("switches[%d]", i)
		if s.ID == "" {
			ve.Add("%s.id must not be empty", label)
		} else {
			label = fmt.Sprintf("switch %q", s.ID)
			if seen[s.ID] {
				ve.Add("%s is defined more than once", label)
			}
			seen[s.ID] = true
		}
		if s.Name == "" {
			ve.Add("%s: name must not be empty", label)
		}

		for role, c := range map[string]*CommandConfig{"on": s.On, "off": s.Off, "single": s.Single, "status": s.Status} {
			if c == nil {
				continue
			}
			if !validKinds[strings.ToLower(c.Kind)] {
				ve.Add("%s: %s.kind %q is not one of shell, script", label, role, c.Kind)
			}
			if strings.TrimSpace(c.Command) == "" {
				ve.Add("%s: %s.command must not be empty", label, role)
			}
		}

		switch strings.ToLower(s.Type) {
		case "switch":
			if s.Status == nil {
				ve.Add("%s: switch items require a status command", label)
			} else if s.Status.ExpectedOnOutput == nil {
				ve.Add("%s: status.expected_on_output is required", label)
			}
			if s.Off == nil {
				ve.Add("%s: switch items require an off command", label)
			}
			if s.On == nil && cfg.Toggle.StrictOnCommand {
				ve.Add("%s: switch items require an on command (toggle.strict_on_command)", label)
			}
		case "button":
			if s.Single == nil {
				ve.Add("%s: button items require a single command", label)
			}
		default:
			ve.Add("%s: type %q must be switch or button", label, s.Type)
		}
	}
}

func validateExecutor(cfg *Config, ve *ValidationError) {
	if cfg.Executor.Shell == "" {
		ve.Add("executor.shell must not be empty")
	}
	if cfg.Executor.Timeout <= 0 {
		ve.Add("executor.timeout must be > 0")
	}
	if b := cfg.Executor.Breaker; b.Enabled {
		if b.MaxFailures == 0 {
			ve.Add("executor.breaker.max_failures must be > 0 when the breaker is enabled")
		}
		if b.Timeout <= 0 {
			ve.Add("executor.breaker.timeout must be > 0 when the breaker is enabled")
		}
	}
}

var validDesktopMethods = map[string]bool{
	"":            true,
	"auto":        true,
	"osascript":   true,
	"notify-send": true,
}

func validateNotify(cfg *Config, ve *ValidationError) {
	n := cfg.Notify
	if !validDesktopMethods[n.Desktop.Method] {
		ve.Add("notify.desktop.method %q must be auto, osascript or notify-send", n.Desktop.Method)
	}
	if n.Webhook.Enabled && n.Webhook.URL == "" {
		ve.Add("notify.webhook.url is required when the webhook notifier is enabled")
	}
	if n.Slack.Enabled && n.Slack.WebhookURL == "" {
		ve.Add("notify.slack.webhook_url is required when the slack notifier is enabled")
	}
	if n.Discord.Enabled {
		if n.Discord.WebhookURL == "" {
			ve.Add("notify.discord.webhook_url is required when the discord notifier is enabled")
		} else if !strings.Contains(n.Discord.WebhookURL, "/webhooks/") {
			ve.Add("notify.discord.webhook_url must look like https://discord.com/api/webhooks/{id}/{token}")
		}
	}
	if n.Timeout < 0 {
		ve.Add("notify.timeout must not be negative")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if !g.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(g.Addr); err != nil {
		ve.Add("gateway.addr %q is not host:port: %v", g.Addr, err)
	}
	names := make(map[string]bool)
	for i, tok := range g.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
		}
		if tok.Name != "" {
			if names[tok.Name] {
				ve.Add("gateway.auth.tokens: duplicate name %q", tok.Name)
			}
			names[tok.Name] = true
		}
	}
	if g.RateLimit.RequestsPerMin < 0 || g.RateLimit.Burst < 0 {
		ve.Add("gateway.rate_limit values must not be negative")
	}
	for _, p := range g.TrustedProxies {
		if net.ParseIP(p) == nil {
			ve.Add("gateway.trusted_proxies: %q is not an IP address", p)
		}
	}
	if g.Audit.MaxAge < 0 {
		ve.Add("gateway.audit.max_age must not be negative")
	}
	if _, err := ParseSize(g.Audit.MaxSize); err != nil {
		ve.Add("gateway.audit.max_size: %v", err)
	}
}

// ParseSize parses a human-readable size such as "512KB", "10MB" or "1GB".
// An empty string means zero.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	multiplier := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.mult
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * multiplier, nil
}

var validActions = map[string]bool{
	"toggle":        true,
	"refresh":       true,
	"refresh_all":   true,
	"history_prune": true,
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	s := cfg.Scheduler
	if !s.Enabled {
		return
	}
	if s.TaskTimeout <= 0 {
		ve.Add("scheduler.task_timeout must be > 0")
	}
	ids := make(map[string]bool, len(cfg.Switches))
	for _, sw := range cfg.Switches {
		ids[sw.ID] = true
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	names := make(map[string]bool)
	for i, task := range s.Tasks {
		label := fmt.Sprintf("scheduler.tasks[%d]", i)
		if task.Name == "" {
			ve.Add("%s.name must not be empty", label)
		} else if names[task.Name] {
			ve.Add("%s: duplicate task name %q", label, task.Name)
		}
		names[task.Name] = true

		if task.Schedule == "" {
			ve.Add("%s.schedule must not be empty", label)
		} else if _, err := parser.Parse(task.Schedule); err != nil && !isPositiveDuration(task.Schedule) {
			ve.Add("%s.schedule %q is neither a cron expression nor a positive duration", label, task.Schedule)
		}

		if !validActions[task.Action] {
			ve.Add("%s.action %q must be toggle, refresh, refresh_all or history_prune", label, task.Action)
			continue
		}
		if task.Action == "toggle" || task.Action == "refresh" {
			if task.Switch == "" {
				ve.Add("%s: action %s requires switch", label, task.Action)
			}
			// Gallery switches are not known yet.
			if task.Switch != "" && len(cfg.Gallery.Dirs) == 0 && !ids[task.Switch] {
				ve.Add("%s: unknown switch %q", label, task.Switch)
			}
		}
	}
}

func validateHistory(cfg *Config, ve *ValidationError) {
	switch cfg.History.Backend {
	case "sqlite":
		if cfg.History.Path == "" {
			ve.Add("history.path is required for the sqlite backend")
		}
	case "memory", "none", "":
	default:
		ve.Add("history.backend %q must be sqlite, memory or none", cfg.History.Backend)
	}
	if cfg.History.Retention < 0 {
		ve.Add("history.retention must not be negative")
	}
}

func isPositiveDuration(s string) bool {
	d, err := time.ParseDuration(s)
	return err == nil && d > 0
}
