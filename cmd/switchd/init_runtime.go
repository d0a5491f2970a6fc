package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"switchd/internal/adapter/audit"
	"switchd/internal/adapter/executor"
	"switchd/internal/adapter/gallery"
	"switchd/internal/adapter/gateway"
	historystore "switchd/internal/adapter/history"
	"switchd/internal/adapter/notify"
	"switchd/internal/adapter/registry"
	"switchd/internal/domain"
	"switchd/internal/infra/config"
	"switchd/internal/usecase/catalog"
	"switchd/internal/usecase/eventbus"
	"switchd/internal/usecase/history"
	"switchd/internal/usecase/scheduling"
	"switchd/internal/usecase/toggle"
)

// core holds the components every subcommand that touches switches needs.
type core struct {
	Bus      *eventbus.Bus
	Registry *registry.Registry
	Engine   *toggle.Engine
	Catalog  *catalog.Service
	Store    domain.HistoryStore
	Recorder *history.Recorder
}

// initCore builds the switch registry, executor stack, toggle engine and
// history recorder. The returned cleanup closes the bus and history store.
func initCore(cfg *config.Config, log *slog.Logger) (*core, func(), error) {
	switches := cfg.Switches
	if len(cfg.Gallery.Dirs) > 0 {
		loader, err := gallery.NewLoader(log)
		if err != nil {
			return nil, nil, fmt.Errorf("gallery: %w", err)
		}
		defs, err := loader.LoadDirs(cfg.Gallery.Dirs)
		if err != nil {
			return nil, nil, fmt.Errorf("gallery: %w", err)
		}
		switches = loader.Merge(switches, defs)
	}

	reg, err := registry.FromConfig(switches)
	if err != nil {
		return nil, nil, fmt.Errorf("switches: %w", err)
	}

	var exec domain.CommandExecutor = executor.NewLocalExecutor(cfg.Executor, log)
	if cfg.Executor.Breaker.Enabled {
		exec = executor.NewBreakerExecutor(exec, cfg.Executor.Breaker, log)
	}

	notifier, err := notify.New(cfg.Notify, log)
	if err != nil {
		return nil, nil, fmt.Errorf("notify: %w", err)
	}

	bus := eventbus.New(log)
	engine := toggle.NewEngine(exec, notifier, bus, log,
		toggle.WithSerialization(cfg.Toggle.Serialize),
		toggle.WithStrictOnCommand(cfg.Toggle.StrictOnCommand),
	)

	store, err := historystore.Open(cfg.History)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("history: %w", err)
	}
	recorder := history.NewRecorder(store, cfg.History.Retention, log)
	recorder.Attach(bus)

	c := &core{
		Bus:      bus,
		Registry: reg,
		Engine:   engine,
		Catalog:  catalog.NewService(reg, engine, log),
		Store:    store,
		Recorder: recorder,
	}
	cleanup := func() {
		// Drain pending history writes before closing the store.
		bus.Flush()
		recorder.Detach()
		bus.Close()
		if err := store.Close(); err != nil {
			log.Warn("history store close failed", "error", err)
		}
	}
	return c, cleanup, nil
}

// daemonRuntime holds the long-running services of `switchd serve`.
type daemonRuntime struct {
	Scheduler  *scheduling.Scheduler
	Gateway    *gateway.Server
	Advertiser *gateway.Advertiser
}

func initDaemon(cfg *config.Config, c *core, log *slog.Logger) (*daemonRuntime, func(context.Context) error, error) {
	rt := &daemonRuntime{}

	if cfg.Scheduler.Enabled {
		sched := scheduling.NewScheduler(log, scheduling.WithTaskTimeout(cfg.Scheduler.TaskTimeout))
		var pruner scheduling.Pruner
		if historyEnabled(cfg) {
			pruner = c.Recorder
		}
		scheduling.RegisterSwitchActions(sched, c.Catalog, pruner)
		if err := sched.AddConfigured(cfg.Scheduler.Tasks); err != nil {
			return nil, nil, fmt.Errorf("scheduler: %w", err)
		}
		rt.Scheduler = sched
	}

	var auditLog *audit.FileLogger
	if cfg.Gateway.Enabled {
		opts := []gateway.Option{
			gateway.WithRateLimit(cfg.Gateway.RateLimit.RequestsPerMin, cfg.Gateway.RateLimit.Burst, cfg.Gateway.TrustedProxies),
		}
		if cfg.Gateway.Audit.Path != "" {
			var err error
			auditLog, err = audit.Open(cfg.Gateway.Audit)
			if err != nil {
				return nil, nil, fmt.Errorf("audit log: %w", err)
			}
			if n, err := auditLog.EnforceRetention(context.Background()); err != nil {
				log.Warn("audit retention failed", "error", err)
			} else if n > 0 {
				log.Info("audit retention applied", "removed", n)
			}
			opts = append(opts, gateway.WithAudit(auditLog))
		}
		srv := gateway.NewServer(c.Bus, gateway.NewAuthenticator(cfg.Gateway.Auth.Tokens), cfg.Gateway.Addr, log, opts...)
		deps := gateway.HandlerDeps{
			Catalog: c.Catalog,
			Bus:     c.Bus,
			Logger:  log,
		}
		if historyEnabled(cfg) {
			deps.History = c.Recorder
		}
		if rt.Scheduler != nil {
			deps.Scheduler = rt.Scheduler
		}
		gateway.RegisterDefaultHandlers(srv, deps)
		gateway.RegisterRESTHandlers(srv, deps, version)
		rt.Gateway = srv
		if cfg.Gateway.MDNS.Enabled {
			rt.Advertiser = gateway.NewAdvertiser(log)
		}
	}

	cleanup := func(ctx context.Context) error {
		var errs []error
		if rt.Scheduler != nil {
			errs = append(errs, rt.Scheduler.Stop())
		}
		if rt.Gateway != nil {
			errs = append(errs, rt.Gateway.Stop(ctx))
		}
		if auditLog != nil {
			errs = append(errs, auditLog.Close())
		}
		return errors.Join(errs...)
	}
	return rt, cleanup, nil
}

func historyEnabled(cfg *config.Config) bool {
	return cfg.History.Backend != "none" && cfg.History.Backend != ""
}
