package main

import (
	"fmt"

	"switchd/internal/adapter/mcpserver"
	"switchd/internal/infra/config"
	"switchd/internal/infra/logger"
)

// runMCP serves the switches over stdio. Stdout carries the protocol, so
// logs never go there.
func runMCP() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Logger.Output == "stdout" {
		cfg.Logger.Output = "stderr"
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	c, cleanup, err := initCore(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	var history mcpserver.HistoryReader
	if historyEnabled(cfg) {
		history = c.Recorder
	}
	return mcpserver.New(c.Catalog, history, version, log).ServeStdio()
}
