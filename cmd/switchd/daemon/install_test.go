package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testConfig(home string) ServiceConfig {
	return ServiceConfig{
		Name:       "switchd",
		BinaryPath: "/usr/local/bin/switchd",
		ConfigPath: "/home/u/.config/switchd/switchd.yaml",
		LogPath:    filepath.Join(home, "logs"),
		HomeDir:    home,
		Env:        map[string]string{"SWITCHD_CONFIG_KEY": "k"},
	}
}

type recorder struct {
	calls []string
	fail  map[string]error
	out   map[string]string
}

func (r *recorder) run(name string, args ...string) ([]byte, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, cmd)
	return []byte(r.out[cmd]), r.fail[cmd]
}

func TestSystemdUnitRender(t *testing.T) {
	content, err := RenderSystemdUnit(testConfig("/home/u"))
	if err != nil {
		t.Fatalf("RenderSystemdUnit: %v", err)
	}
	for _, want := range []string{
		"ExecStart=/usr/local/bin/switchd serve --config /home/u/.config/switchd/switchd.yaml",
		"StandardOutput=append:/home/u/logs/switchd.log",
		"Environment=SWITCHD_CONFIG_KEY=k",
		"WantedBy=default.target",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("unit missing %q:\n%s", want, content)
		}
	}
}

func TestLaunchdPlistRender(t *testing.T) {
	cfg := testConfig("/Users/u")
	content, err := RenderLaunchdPlist(cfg)
	if err != nil {
		t.Fatalf("RenderLaunchdPlist: %v", err)
	}
	for _, want := range []string{
		"<string>io.switchd.switchd</string>",
		"<string>serve</string>",
		"<key>SWITCHD_CONFIG_KEY</key>",
		"KeepAlive",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("plist missing %q", want)
		}
	}

	cfg.Env = nil
	content, _ = RenderLaunchdPlist(cfg)
	if strings.Contains(content, "EnvironmentVariables") {
		t.Error("empty env should not render EnvironmentVariables")
	}
}

func TestInstallLinux(t *testing.T) {
	home := t.TempDir()
	rec := &recorder{}
	m := &Manager{goos: "linux", run: rec.run}

	if err := m.Install(testConfig(home)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	unit := filepath.Join(home, ".config", "systemd", "user", "switchd.service")
	info, err := os.Stat(unit)
	if err != nil {
		t.Fatalf("unit not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("unit mode = %v", info.Mode().Perm())
	}
	want := []string{"systemctl --user daemon-reload", "systemctl --user enable --now switchd"}
	if strings.Join(rec.calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v", rec.calls)
	}
}

func TestInstallReportsCommandOutput(t *testing.T) {
	rec := &recorder{
		fail: map[string]error{"systemctl --user daemon-reload": errors.New("exit status 1")},
		out:  map[string]string{"systemctl --user daemon-reload": "Failed to connect to bus\n"},
	}
	m := &Manager{goos: "linux", run: rec.run}
	err := m.Install(testConfig(t.TempDir()))
	if err == nil || !strings.Contains(err.Error(), "Failed to connect to bus") {
		t.Fatalf("err = %v", err)
	}
}

func TestUninstallMissingUnit(t *testing.T) {
	rec := &recorder{}
	m := &Manager{goos: "linux", run: rec.run}
	if err := m.Uninstall(testConfig(t.TempDir())); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
}

func TestStatusLinux(t *testing.T) {
	home := t.TempDir()
	rec := &recorder{out: map[string]string{
		"systemctl --user is-active switchd":               "active\n",
		"systemctl --user show --property=MainPID switchd": "MainPID=4242\n",
	}}
	m := &Manager{goos: "linux", run: rec.run}
	st, err := m.Status(testConfig(home))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Installed || !st.Running || st.PID != 4242 {
		t.Errorf("status = %+v", st)
	}
}

func TestStatusDarwin(t *testing.T) {
	rec := &recorder{out: map[string]string{
		"launchctl list io.switchd.switchd": "{\n\t\"PID\" = 77;\n\t\"Label\" = \"io.switchd.switchd\";\n};\n",
	}}
	m := &Manager{goos: "darwin", run: rec.run}
	st, err := m.Status(testConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Running || st.PID != 77 {
		t.Errorf("status = %+v", st)
	}
}

func TestUnsupportedPlatform(t *testing.T) {
	m := &Manager{goos: "plan9", run: (&recorder{}).run}
	if err := m.Install(testConfig(t.TempDir())); err == nil {
		t.Error("expected error")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "switchd" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if !strings.HasSuffix(cfg.ConfigPath, filepath.Join("switchd", "switchd.yaml")) {
		t.Errorf("ConfigPath = %q", cfg.ConfigPath)
	}
}
