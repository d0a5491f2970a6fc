package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Switches  []SwitchConfig  `yaml:"switches"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Toggle    ToggleConfig    `yaml:"toggle"`
	Notify    NotifyConfig    `yaml:"notify"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	History   HistoryConfig   `yaml:"history"`
	Gallery   GalleryConfig   `yaml:"gallery"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Includes  []string        `yaml:"includes,omitempty"`
}

// SwitchConfig declares one switch item.
type SwitchConfig struct {
	ID     string         `yaml:"id"`
	Name   string         `yaml:"name"`
	Icon   string         `yaml:"icon,omitempty"`
	Type   string         `yaml:"type"` // "switch" or "button"
	On     *CommandConfig `yaml:"on,omitempty"`
	Off    *CommandConfig `yaml:"off,omitempty"`
	Single *CommandConfig `yaml:"single,omitempty"`
	Status *CommandConfig `yaml:"status,omitempty"`
}

// CommandConfig declares one command of a switch.
type CommandConfig struct {
	Kind    string `yaml:"kind,omitempty"` // "shell" (default) or "script"
	Command string `yaml:"command"`
	// ExpectedOnOutput is only read for status commands. A nil pointer means
	// the key was absent; an empty string is a valid expectation.
	ExpectedOnOutput *string `yaml:"expected_on_output,omitempty"`
}

// ExecutorConfig configures the local command executor.
type ExecutorConfig struct {
	Shell               string        `yaml:"shell"`
	ScriptHost          string        `yaml:"script_host"`
	ScriptArgs          []string      `yaml:"script_args"`
	Timeout             time.Duration `yaml:"timeout"`
	WorkDir             string        `yaml:"work_dir,omitempty"`
	Env                 []string      `yaml:"env,omitempty"`
	TrimTrailingNewline bool          `yaml:"trim_trailing_newline"`
	Breaker             BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures per-command circuit breaking.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`  // open -> half-open
	Interval    time.Duration `yaml:"interval"` // closed-state count reset
}

// ToggleConfig tunes the toggle engine.
type ToggleConfig struct {
	Serialize       bool `yaml:"serialize"`
	StrictOnCommand bool `yaml:"strict_on_command"`
}

// NotifyConfig selects notification backends. Every enabled backend receives
// every notification.
type NotifyConfig struct {
	Desktop DesktopNotifyConfig `yaml:"desktop"`
	Log     LogNotifyConfig     `yaml:"log"`
	Webhook WebhookNotifyConfig `yaml:"webhook"`
	Slack   SlackNotifyConfig   `yaml:"slack"`
	Discord DiscordNotifyConfig `yaml:"discord"`
	Timeout time.Duration       `yaml:"timeout"`
}

type DesktopNotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Method  string `yaml:"method"` // "auto", "osascript", "notify-send"
}

type LogNotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

type WebhookNotifyConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type SlackNotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel,omitempty"`
	Username   string `yaml:"username,omitempty"`
}

type DiscordNotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"` // https://discord.com/api/webhooks/{id}/{token}
	Username   string `yaml:"username,omitempty"`
}

// GatewayConfig configures the remote control plane.
type GatewayConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Addr           string            `yaml:"addr"`
	Auth           GatewayAuthConfig `yaml:"auth"`
	RateLimit      RateLimitConfig   `yaml:"rate_limit"`
	TrustedProxies []string          `yaml:"trusted_proxies,omitempty"`
	MDNS           MDNSConfig        `yaml:"mdns"`
	Audit          AuditConfig       `yaml:"audit"`
}

// AuditConfig enables the JSONL audit trail of remote calls. An empty
// Path disables it.
type AuditConfig struct {
	Path    string        `yaml:"path"`
	MaxAge  time.Duration `yaml:"max_age"`
	MaxSize string        `yaml:"max_size"` // e.g. "10MB"
}

// GatewayAuthConfig holds static bearer tokens. No tokens means no auth.
type GatewayAuthConfig struct {
	Tokens []GatewayToken `yaml:"tokens"`
}

type GatewayToken struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`
	Burst          int `yaml:"burst"`
}

type MDNSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

// SchedulerConfig holds recurring toggles and refreshes.
type SchedulerConfig struct {
	Enabled     bool                  `yaml:"enabled"`
	TaskTimeout time.Duration         `yaml:"task_timeout"`
	Tasks       []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig is one scheduler entry. Schedule is a cron expression
// ("0 22 * * *", "@hourly") or a duration ("30m").
type ScheduledTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Action   string `yaml:"action"` // toggle, refresh, refresh_all, history_prune
	Switch   string `yaml:"switch,omitempty"`
	OneShot  bool   `yaml:"one_shot,omitempty"`
}

// HistoryConfig selects the toggle history backend.
type HistoryConfig struct {
	Backend   string        `yaml:"backend"` // "sqlite", "memory", "none"
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// GalleryConfig lists directories of JSON switch definitions.
type GalleryConfig struct {
	Dirs []string `yaml:"dirs"`
}

// LoggerConfig holds logger settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "switchd")
	}
	return ".switchd"
}

// Defaults returns a Config populated with sensible defaults.
func Defaults() *Config {
	return &Config{
		Executor: ExecutorConfig{
			Shell:               "/bin/sh",
			ScriptHost:          "osascript",
			ScriptArgs:          []string{"-e"},
			Timeout:             30 * time.Second,
			TrimTrailingNewline: true,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Toggle: ToggleConfig{
			Serialize: true,
		},
		Notify: NotifyConfig{
			Desktop: DesktopNotifyConfig{Enabled: true, Method: "auto"},
			Timeout: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:8787",
			RateLimit: RateLimitConfig{
				RequestsPerMin: 120,
				Burst:          20,
			},
			MDNS: MDNSConfig{Name: "switchd"},
		},
		Scheduler: SchedulerConfig{
			TaskTimeout: 2 * time.Minute,
		},
		History: HistoryConfig{
			Backend:   "sqlite",
			Path:      filepath.Join(defaultDataDir(), "history.db"),
			Retention: 30 * 24 * time.Hour,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		own := cfg.Switches
		cfg.Switches = nil

		patterns := cfg.Includes
		cfg.Includes = nil
		if err := newIncludeWalker(absPath).walk(cfg, filepath.Dir(absPath), patterns, 0); err != nil {
			return nil, err
		}
		included := cfg.Switches

		// Second pass: the main file takes precedence over includes for
		// scalar settings. Switch lists are merged by id instead.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
		cfg.Switches = mergeSwitches(own, included)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("SWITCHD_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeSwitches appends extra switches whose id is not already in base.
func mergeSwitches(base, extra []SwitchConfig) []SwitchConfig {
	seen := make(map[string]bool, len(base))
	out := make([]SwitchConfig, 0, len(base)+len(extra))
	for _, s := range base {
		seen[s.ID] = true
		out = append(out, s)
	}
	for _, s := range extra {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}

// ApplyEnvOverrides maps SWITCHD_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SWITCHD_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SWITCHD_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SWITCHD_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("SWITCHD_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SWITCHD_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("SWITCHD_EXECUTOR_SHELL"); v != "" {
		cfg.Executor.Shell = v
	}
	if v := os.Getenv("SWITCHD_EXECUTOR_SCRIPT_HOST"); v != "" {
		cfg.Executor.ScriptHost = v
	}
	if v := os.Getenv("SWITCHD_EXECUTOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Executor.Timeout = d
		}
	}
	if v := os.Getenv("SWITCHD_TOGGLE_SERIALIZE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Toggle.Serialize = b
		}
	}
	if v := os.Getenv("SWITCHD_GATEWAY_ENABLED"); v == "true" {
		cfg.Gateway.Enabled = true
	}
	if v := os.Getenv("SWITCHD_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("SWITCHD_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, GatewayToken{Name: "env", Token: v})
	}
	if v := os.Getenv("SWITCHD_HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = v
	}
	if v := os.Getenv("SWITCHD_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("SWITCHD_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.Slack.Enabled = true
		cfg.Notify.Slack.WebhookURL = v
	}
	if v := os.Getenv("SWITCHD_DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Notify.Discord.Enabled = true
		cfg.Notify.Discord.WebhookURL = v
	}
	if v := os.Getenv("SWITCHD_GALLERY_DIRS"); v != "" {
		cfg.Gallery.Dirs = splitAndTrim(v, ",")
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." values in notifier and gateway secrets and
// decrypts them in place.
func decryptSecrets(cfg *Config, passphrase string) error {
	fields := map[string]*string{
		"notify.webhook.url":         &cfg.Notify.Webhook.URL,
		"notify.slack.webhook_url":   &cfg.Notify.Slack.WebhookURL,
		"notify.discord.webhook_url": &cfg.Notify.Discord.WebhookURL,
	}
	for k := range cfg.Notify.Webhook.Headers {
		v := cfg.Notify.Webhook.Headers[k]
		if strings.HasPrefix(v, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(v, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("notify.webhook.headers.%s: %w", k, err)
			}
			cfg.Notify.Webhook.Headers[k] = decrypted
		}
	}
	for name, fp := range fields {
		if strings.HasPrefix(*fp, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*fp = decrypted
		}
	}

	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
			}
			cfg.Gateway.Auth.Tokens[i].Token = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
