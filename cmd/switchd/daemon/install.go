// Package daemon installs switchd as a per-user background service. Switches
// usually change desktop settings, so the service runs in the user's session
// (systemd --user on Linux, a LaunchAgent on macOS) rather than system-wide.
package daemon

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"text/template"
)

// ServiceConfig holds parameters for service installation.
type ServiceConfig struct {
	Name       string
	BinaryPath string
	ConfigPath string
	LogPath    string
	HomeDir    string
	// Env is written into the unit as extra environment, e.g. SWITCHD_CONFIG_KEY.
	Env map[string]string
}

// ServiceStatus is the state of an installed service.
type ServiceStatus struct {
	Installed bool
	Running   bool
	PID       int
}

// Runner executes a service manager command and returns its combined output.
type Runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Manager installs and inspects the service for one platform.
type Manager struct {
	goos string
	run  Runner
}

// NewManager returns a Manager for the running platform.
func NewManager() *Manager {
	return &Manager{goos: runtime.GOOS, run: execRunner}
}

// DefaultConfig returns a ServiceConfig with auto-detected paths.
func DefaultConfig() ServiceConfig {
	binary, _ := os.Executable()
	if binary == "" {
		binary = "/usr/local/bin/switchd"
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return ServiceConfig{
		Name:       "switchd",
		BinaryPath: binary,
		ConfigPath: filepath.Join(home, ".config", "switchd", "switchd.yaml"),
		LogPath:    filepath.Join(home, ".local", "state", "switchd"),
		HomeDir:    home,
	}
}

// Validate checks that the binary exists and is executable.
func (c *ServiceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("service name is required")
	}
	info, err := os.Stat(c.BinaryPath)
	if err != nil {
		return fmt.Errorf("binary %q: %w", c.BinaryPath, err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("binary %q is not executable", c.BinaryPath)
	}
	return nil
}

// UnitPath returns where the service definition is written.
func (m *Manager) UnitPath(cfg ServiceConfig) (string, error) {
	switch m.goos {
	case "linux":
		return filepath.Join(cfg.HomeDir, ".config", "systemd", "user", cfg.Name+".service"), nil
	case "darwin":
		return filepath.Join(cfg.HomeDir, "Library", "LaunchAgents", launchdLabel(cfg.Name)+".plist"), nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", m.goos)
	}
}

// Install writes the unit and starts the service.
func (m *Manager) Install(cfg ServiceConfig) error {
	unitPath, err := m.UnitPath(cfg)
	if err != nil {
		return err
	}
	var content string
	if m.goos == "darwin" {
		content, err = RenderLaunchdPlist(cfg)
	} else {
		content, err = RenderSystemdUnit(cfg)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogPath, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return fmt.Errorf("create unit dir: %w", err)
	}
	// The unit may carry SWITCHD_CONFIG_KEY.
	if err := os.WriteFile(unitPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}

	var cmds [][]string
	if m.goos == "darwin" {
		cmds = [][]string{{"launchctl", "load", "-w", unitPath}}
	} else {
		cmds = [][]string{
			{"systemctl", "--user", "daemon-reload"},
			{"systemctl", "--user", "enable", "--now", cfg.Name},
		}
	}
	for _, args := range cmds {
		if out, err := m.run(args[0], args[1:]...); err != nil {
			return fmt.Errorf("%s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
		}
	}
	return nil
}

// Uninstall stops the service and removes its unit. Missing units are not an error.
func (m *Manager) Uninstall(cfg ServiceConfig) error {
	unitPath, err := m.UnitPath(cfg)
	if err != nil {
		return err
	}
	if m.goos == "darwin" {
		m.run("launchctl", "unload", unitPath)
	} else {
		m.run("systemctl", "--user", "disable", "--now", cfg.Name)
	}
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit: %w", err)
	}
	if m.goos == "linux" {
		m.run("systemctl", "--user", "daemon-reload")
	}
	return nil
}

// Status reports whether the service is installed and running.
func (m *Manager) Status(cfg ServiceConfig) (*ServiceStatus, error) {
	unitPath, err := m.UnitPath(cfg)
	if err != nil {
		return nil, err
	}
	st := &ServiceStatus{}
	if _, err := os.Stat(unitPath); err == nil {
		st.Installed = true
	}
	if m.goos == "darwin" {
		out, err := m.run("launchctl", "list", launchdLabel(cfg.Name))
		if err != nil {
			return st, nil
		}
		st.Running = true
		st.PID = parseLaunchctlPID(string(out))
		return st, nil
	}

	out, _ := m.run("systemctl", "--user", "is-active", cfg.Name)
	st.Running = strings.TrimSpace(string(out)) == "active"
	if st.Running {
		if out, err := m.run("systemctl", "--user", "show", "--property=MainPID", cfg.Name); err == nil {
			if _, v, ok := strings.Cut(strings.TrimSpace(string(out)), "="); ok {
				st.PID, _ = strconv.Atoi(v)
			}
		}
	}
	return st, nil
}

// --- systemd ---

const systemdTemplate = `[Unit]
Description=switchd switch daemon
After=graphical-session.target

[Service]
Type=simple
ExecStart={{.BinaryPath}} serve --config {{.ConfigPath}}
Restart=on-failure
RestartSec=5
StandardOutput=append:{{.LogPath}}/{{.Name}}.log
StandardError=append:{{.LogPath}}/{{.Name}}.log
{{- range $k, $v := .Env}}
Environment={{$k}}={{$v}}
{{- end}}

[Install]
WantedBy=default.target
`

// RenderSystemdUnit renders the systemd user unit.
func RenderSystemdUnit(cfg ServiceConfig) (string, error) {
	return render("systemd", systemdTemplate, cfg)
}

// --- launchd ---

func launchdLabel(name string) string { return "io.switchd." + name }

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{label .Name}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.BinaryPath}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{.ConfigPath}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.LogPath}}/{{.Name}}.log</string>
    <key>StandardErrorPath</key>
    <string>{{.LogPath}}/{{.Name}}.log</string>
{{- if .Env}}
    <key>EnvironmentVariables</key>
    <dict>
{{- range $k, $v := .Env}}
        <key>{{$k}}</key>
        <string>{{$v}}</string>
{{- end}}
    </dict>
{{- end}}
</dict>
</plist>
`

// RenderLaunchdPlist renders the LaunchAgent plist.
func RenderLaunchdPlist(cfg ServiceConfig) (string, error) {
	return render("launchd", launchdTemplate, cfg)
}

func render(name, text string, cfg ServiceConfig) (string, error) {
	tmpl, err := template.New(name).Funcs(template.FuncMap{"label": launchdLabel}).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func parseLaunchctlPID(out string) int {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, `"PID"`) {
			continue
		}
		_, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(strings.Trim(strings.TrimSpace(v), ";"))
		if err == nil {
			return pid
		}
	}
	return 0
}
