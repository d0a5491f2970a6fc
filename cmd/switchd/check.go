package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
	"switchd/internal/infra/logger"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runCheck validates the config and the host, then probes every status
// command once.
func runCheck() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Switches", Fn: checkSwitches},
		{Name: "Shell", Fn: checkShell},
		{Name: "Script host", Fn: checkScriptHost},
		{Name: "Desktop notifications", Fn: checkDesktopNotify},
		{Name: "History", Fn: checkHistory},
		{Name: "Gallery", Fn: checkGallery},
		{Name: "Gateway", Fn: checkGateway},
		{Name: "Audit log", Fn: checkAudit},
		{Name: "Status probes", Fn: checkStatusProbes},
	}

	fmt.Println(titleStyle.Render("switchd check"))
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return onStyle.Render("[PASS]")
	case StatusWarn:
		return warnStyle.Render("[WARN]")
	case StatusFail:
		return errorStyle.Render("[FAIL]")
	default:
		return "[????]"
	}
}

var errNoConfig = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Fix the errors listed above in " + cfgPath,
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Create switchd.yaml or pass --config",
			}
		}
		return CheckResult{Status: StatusPass, Message: "config loaded from " + cfgPath}
	}
}

func checkSwitches(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if len(cfg.Switches) == 0 && len(cfg.Gallery.Dirs) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no switches configured",
			Fix:     "Add entries under switches: or point gallery.dirs at definition files",
		}
	}
	if w := config.Warnings(cfg); len(w) > 0 {
		return CheckResult{Status: StatusWarn, Message: strings.Join(w, "; ")}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d switch(es) configured", len(cfg.Switches))}
}

func usesKind(cfg *config.Config, kind domain.ExecuteKind) bool {
	for _, s := range cfg.Switches {
		for _, c := range []*config.CommandConfig{s.On, s.Off, s.Single, s.Status} {
			if c == nil {
				continue
			}
			if k, err := domain.ParseExecuteKind(c.Kind); err == nil && k == kind {
				return true
			}
		}
	}
	return false
}

func checkShell(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	path, err := exec.LookPath(cfg.Executor.Shell)
	if err != nil {
		status := StatusWarn
		if usesKind(cfg, domain.ExecuteShell) {
			status = StatusFail
		}
		return CheckResult{
			Status:  status,
			Message: fmt.Sprintf("shell %q not found", cfg.Executor.Shell),
			Fix:     "Set executor.shell to an installed shell",
		}
	}
	return CheckResult{Status: StatusPass, Message: path}
}

func checkScriptHost(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	path, err := exec.LookPath(cfg.Executor.ScriptHost)
	if err == nil {
		return CheckResult{Status: StatusPass, Message: path}
	}
	if !usesKind(cfg, domain.ExecuteScript) {
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s not installed, no script commands configured", cfg.Executor.ScriptHost)}
	}
	return CheckResult{
		Status:  StatusFail,
		Message: fmt.Sprintf("script host %q not found but script commands are configured", cfg.Executor.ScriptHost),
		Fix:     "Install it or set executor.script_host (osascript is macOS only)",
	}
}

func checkDesktopNotify(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if !cfg.Notify.Desktop.Enabled {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}
	method := cfg.Notify.Desktop.Method
	if method == "" || method == "auto" {
		method = "notify-send"
		if runtime.GOOS == "darwin" {
			method = "osascript"
		}
	}
	if _, err := exec.LookPath(method); err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: method + " not found, desktop notifications will fail",
			Fix:     "Install " + method + " or set notify.desktop.enabled: false",
		}
	}
	return CheckResult{Status: StatusPass, Message: "via " + method}
}

func checkHistory(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if cfg.History.Backend != "sqlite" {
		return CheckResult{Status: StatusPass, Message: "backend " + cfg.History.Backend}
	}
	if err := writableDir(filepath.Dir(cfg.History.Path)); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Set history.path to a writable location",
		}
	}
	return CheckResult{Status: StatusPass, Message: "sqlite at " + cfg.History.Path}
}

func checkAudit(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if !cfg.Gateway.Enabled || cfg.Gateway.Audit.Path == "" {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}
	if err := writableDir(filepath.Dir(cfg.Gateway.Audit.Path)); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Set gateway.audit.path to a writable location",
		}
	}
	return CheckResult{Status: StatusPass, Message: "writing to " + cfg.Gateway.Audit.Path}
}

// writableDir creates dir if needed and proves a file can be created in it.
func writableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %v", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".switchd-check-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %v", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

func checkGallery(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if len(cfg.Gallery.Dirs) == 0 {
		return CheckResult{Status: StatusPass, Message: "no gallery directories"}
	}
	var missing []string
	for _, d := range cfg.Gallery.Dirs {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "missing: " + strings.Join(missing, ", "),
			Fix:     "Create the directories or remove them from gallery.dirs",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d director(ies)", len(cfg.Gallery.Dirs))}
}

func checkGateway(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if !cfg.Gateway.Enabled {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}
	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot listen on %s: %v", cfg.Gateway.Addr, err),
			Fix:     "Stop the other process or change gateway.addr",
		}
	}
	ln.Close()

	host, _, _ := net.SplitHostPort(cfg.Gateway.Addr)
	ip := net.ParseIP(host)
	loopback := host == "localhost" || (ip != nil && ip.IsLoopback())
	if len(cfg.Gateway.Auth.Tokens) == 0 && !loopback {
		return CheckResult{
			Status:  StatusWarn,
			Message: "listening on " + cfg.Gateway.Addr + " without auth tokens",
			Fix:     "Add gateway.auth.tokens or bind to 127.0.0.1",
		}
	}
	return CheckResult{Status: StatusPass, Message: "can listen on " + cfg.Gateway.Addr}
}

// checkStatusProbes runs every status command once. Nothing is toggled.
func checkStatusProbes(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	local := *cfg
	local.Notify = config.NotifyConfig{}
	local.History = config.HistoryConfig{Backend: "none"}

	c, cleanup, err := initCore(&local, logger.Discard())
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sum, err := c.Catalog.RefreshAll(ctx)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	if sum.Failed > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%d of %d status command(s) failed", sum.Failed, sum.Refreshed+sum.Failed),
			Fix:     "Run 'switchd test <id> status' to see the output",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d status command(s) answered", sum.Refreshed)}
}
