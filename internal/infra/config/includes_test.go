package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

const wifiSwitch = `
  - id: wifi
    name: Wi-Fi
    type: switch
    on: {command: "networksetup -setairportpower en0 on"}
    off: {command: "networksetup -setairportpower en0 off"}
    status:
      command: "networksetup -getairportpower en0 | awk '{print $4}'"
      expected_on_output: "On"
`

func TestIncludesSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "logging.yaml", `
logger:
  level: debug
  format: json
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "logging.yaml"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "debug" || cfg.Logger.Format != "json" {
		t.Errorf("logger not loaded from include: %+v", cfg.Logger)
	}
}

func TestIncludesGlobMergesSwitches(t *testing.T) {
	dir := t.TempDir()
	subdir := filepath.Join(dir, "switches.d")
	if err := os.Mkdir(subdir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfigFile(t, subdir, "wifi.yaml", "switches:"+wifiSwitch)
	writeConfigFile(t, subdir, "flush.yaml", `
switches:
  - id: flush-dns
    name: Flush DNS
    type: button
    single: {command: "dscacheutil -flushcache"}
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "switches.d/*.yaml"
switches:
  - id: dark
    name: Dark mode
    type: button
    single: {kind: script, command: "tell application \"System Events\" to tell appearance preferences to set dark mode to not dark mode"}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Switches) != 3 {
		t.Fatalf("Switches = %d, want 3: %+v", len(cfg.Switches), cfg.Switches)
	}
	if cfg.Switches[0].ID != "dark" {
		t.Errorf("main switches come first, got %q", cfg.Switches[0].ID)
	}
	ids := map[string]bool{}
	for _, s := range cfg.Switches {
		ids[s.ID] = true
	}
	for _, want := range []string{"dark", "wifi", "flush-dns"} {
		if !ids[want] {
			t.Errorf("missing switch %q", want)
		}
	}
}

func TestIncludesMainSwitchWinsOnIDClash(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "wifi.yaml", "switches:"+wifiSwitch)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "wifi.yaml"
switches:
  - id: wifi
    name: My Wi-Fi
    type: button
    single: {command: "true"}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Switches) != 1 || cfg.Switches[0].Name != "My Wi-Fi" {
		t.Errorf("Switches = %+v, want only the main definition", cfg.Switches)
	}
}

func TestIncludesMainPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "override.yaml", `
executor:
  timeout: 5s
  shell: /bin/bash
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "override.yaml"
executor:
  timeout: 9s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Executor.Timeout.String() != "9s" {
		t.Errorf("Timeout = %v, want 9s (main should win)", cfg.Executor.Timeout)
	}
	if cfg.Executor.Shell != "/bin/bash" {
		t.Errorf("Shell = %q, want %q", cfg.Executor.Shell, "/bin/bash")
	}
}

func TestIncludesCircularDetection(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", `
includes:
  - "b.yaml"
`)
	writeConfigFile(t, dir, "b.yaml", `
includes:
  - "a.yaml"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "a.yaml"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected circular include error")
	}
	if !strings.Contains(err.Error(), "circular include") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIncludesSelfReference(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "config.yaml"
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "circular include") {
		t.Fatalf("expected circular include error, got %v", err)
	}
}

func TestIncludesPathTraversal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "../../../etc/passwd"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected path traversal error")
	}
}

func TestIncludesFileNotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "missing.yaml"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing include")
	}
}

func TestIncludesGlobNoMatch(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "conf.d/*.yaml"
`)

	if _, err := Load(path); err != nil {
		t.Fatalf("a glob matching nothing is not an error: %v", err)
	}
}

func TestIncludesNested(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "leaf.yaml", "switches:"+wifiSwitch)
	writeConfigFile(t, dir, "middle.yaml", `
includes:
  - "leaf.yaml"
logger:
  level: warn
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "middle.yaml"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "warn" {
		t.Errorf("Logger.Level = %q, want warn", cfg.Logger.Level)
	}
	if len(cfg.Switches) != 1 || cfg.Switches[0].ID != "wifi" {
		t.Errorf("nested switch not merged: %+v", cfg.Switches)
	}
}

func TestIncludesMaxDepth(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i <= maxIncludeDepth+1; i++ {
		writeConfigFile(t, dir, fmt.Sprintf("level%d.yaml", i), fmt.Sprintf(`
includes:
  - "level%d.yaml"
`, i+1))
	}
	writeConfigFile(t, dir, fmt.Sprintf("level%d.yaml", maxIncludeDepth+2), "logger:\n  level: debug\n")
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "level0.yaml"
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "max depth") {
		t.Fatalf("expected max depth error, got %v", err)
	}
}

func TestIncludesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "empty.yaml", "")
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "empty.yaml"
`)

	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
