package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"switchd/internal/infra/config"
	"switchd/internal/infra/logger"
	"switchd/internal/infra/tracer"
)

func runServe() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, w := range config.Warnings(cfg) {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Switches, engine, history
	c, coreCleanup, err := initCore(cfg, log)
	if err != nil {
		return err
	}
	defer coreCleanup()

	// 4. Scheduler & gateway
	rt, rtCleanup, err := initDaemon(cfg, c, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rtCleanup(shutdownCtx); err != nil {
			log.Error("runtime cleanup error", "error", err)
		}
	}()

	// 5. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 6. Load the initial state of every switch.
	sum, err := c.Catalog.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}

	// 7. Start scheduler
	if rt.Scheduler != nil {
		if err := rt.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	// 8. Start gateway
	errCh := make(chan error, 1)
	if rt.Gateway != nil {
		go func() {
			if err := rt.Gateway.Start(ctx); err != nil {
				errCh <- err
			}
		}()
		if rt.Advertiser != nil {
			go advertise(ctx, cfg, rt.Gateway.BoundAddr, rt.Advertiser, log)
		}
	}

	log.Info("switchd starting",
		"version", version,
		"switches", c.Registry.Len(),
		"refreshed", sum.Refreshed,
		"refresh_failures", sum.Failed,
		"history", cfg.History.Backend,
		"scheduler", rt.Scheduler != nil,
		"gateway", rt.Gateway != nil,
	)

	select {
	case <-ctx.Done():
		log.Info("switchd shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

// announcer is the mDNS side of advertise.
type announcer interface {
	Advertise(ctx context.Context, name, boundAddr string, metadata map[string]string) error
}

// advertise waits for the gateway to bind, then announces it over mDNS.
// Failures are logged; the daemon keeps serving without advertisement.
func advertise(ctx context.Context, cfg *config.Config, boundAddr func() string, a announcer, log *slog.Logger) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for boundAddr() == "" {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	meta := map[string]string{
		"version": version,
		"auth":    strconv.FormatBool(len(cfg.Gateway.Auth.Tokens) > 0),
	}
	if err := a.Advertise(ctx, cfg.Gateway.MDNS.Name, boundAddr(), meta); err != nil {
		log.Warn("mdns advertisement failed", "name", cfg.Gateway.MDNS.Name, "error", err)
	}
}
