package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"switchd/cmd/switchd/daemon"
)

func runDaemon(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: switchd daemon <install|uninstall|status>")
	}
	cfg := daemon.DefaultConfig()
	if p := flagValue(os.Args, "config"); p != "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		cfg.ConfigPath = abs
	}
	if key := os.Getenv("SWITCHD_CONFIG_KEY"); key != "" {
		cfg.Env = map[string]string{"SWITCHD_CONFIG_KEY": key}
	}
	m := daemon.NewManager()

	switch args[0] {
	case "install":
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := m.Install(cfg); err != nil {
			return err
		}
		unit, _ := m.UnitPath(cfg)
		fmt.Println(onStyle.Render("installed"), unit)
	case "uninstall":
		if err := m.Uninstall(cfg); err != nil {
			return err
		}
		fmt.Println("uninstalled")
	case "status":
		st, err := m.Status(cfg)
		if err != nil {
			return err
		}
		switch {
		case st.Running:
			fmt.Printf("%s (pid %d)\n", onStyle.Render("running"), st.PID)
		case st.Installed:
			fmt.Println(warnStyle.Render("installed, not running"))
		default:
			fmt.Println(dimStyle.Render("not installed"))
		}
	default:
		return fmt.Errorf("unknown daemon subcommand %q", args[0])
	}
	return nil
}
