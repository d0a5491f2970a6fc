package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"switchd/internal/adapter/gateway"
	"switchd/internal/domain"
	"switchd/internal/infra/config"
	"switchd/internal/infra/logger"
)

// localSession is a one-shot CLI environment: config, a quiet logger and the
// switch core, torn down by close.
type localSession struct {
	cfg   *config.Config
	log   *slog.Logger
	core  *core
	close func()
}

func openLocal() (*localSession, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	// Keep one-shot output readable unless the user asked for more.
	if os.Getenv("SWITCHD_LOGGER_LEVEL") == "" {
		cfg.Logger.Level = "warn"
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	c, cleanup, err := initCore(cfg, log)
	if err != nil {
		logCloser()
		return nil, err
	}
	return &localSession{
		cfg:  cfg,
		log:  log,
		core: c,
		close: func() {
			cleanup()
			logCloser()
		},
	}, nil
}

func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runList(_ []string) error {
	s, err := openLocal()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := interruptible()
	defer cancel()

	// Cached state is empty in a fresh process, so probe first.
	if _, err := s.core.Catalog.RefreshAll(ctx); err != nil {
		return err
	}
	list, err := s.core.Catalog.List(ctx)
	if err != nil {
		return err
	}
	fmt.Println(renderSwitches(list))
	return nil
}

func requireID(args []string, usage string) (string, error) {
	pos := positional(args)
	if len(pos) < 1 {
		return "", fmt.Errorf("usage: %s", usage)
	}
	return pos[0], nil
}

func runToggle(args []string) error {
	id, err := requireID(args, "switchd toggle <id> [--remote URL --token TOKEN]")
	if err != nil {
		return err
	}
	ctx, cancel := interruptible()
	defer cancel()

	if remote := flagValue(args, "remote"); remote != "" {
		return toggleRemote(ctx, remote, id, flagValue(args, "token"))
	}

	s, err := openLocal()
	if err != nil {
		return err
	}
	defer s.close()

	out, err := s.core.Catalog.Toggle(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(renderToggle(out.SwitchID, out.ControlType, out.Active, out.ActionError()))
	return nil
}

func toggleRemote(ctx context.Context, url, id, token string) error {
	if token == "" {
		token = os.Getenv("SWITCHD_GATEWAY_TOKEN")
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := gateway.Dial(dialCtx, url, token)
	if err != nil {
		return err
	}
	defer client.Close()

	out, err := client.Toggle(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(renderToggle(out.SwitchID, out.ControlType, out.Active, out.ActionError))
	return nil
}

func runRefresh(args []string) error {
	id, err := requireID(args, "switchd refresh <id>")
	if err != nil {
		return err
	}
	s, err := openLocal()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := interruptible()
	defer cancel()

	res, err := s.core.Catalog.Refresh(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(renderRefresh(res))
	return nil
}

func runTest(args []string) error {
	pos := positional(args)
	if len(pos) < 2 {
		return errors.New("usage: switchd test <id> <on|off|single|status>")
	}
	role, err := domain.ParseCommandRole(pos[1])
	if err != nil {
		return err
	}
	s, err := openLocal()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := interruptible()
	defer cancel()

	res, err := s.core.Catalog.TestCommand(ctx, pos[0], role)
	if err != nil {
		return err
	}
	fmt.Println(renderTest(res))
	return nil
}

func runHistory(args []string) error {
	id, err := requireID(args, "switchd history <id> [--limit N]")
	if err != nil {
		return err
	}
	limit := 20
	if v := flagValue(args, "limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return fmt.Errorf("--limit must be a positive integer")
		}
	}
	s, err := openLocal()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := interruptible()
	defer cancel()

	if _, err := s.core.Catalog.Get(ctx, id); err != nil {
		return err
	}
	recs, err := s.core.Recorder.List(ctx, id, limit)
	if err != nil {
		return err
	}
	fmt.Println(renderHistory(recs))
	return nil
}

func runEncrypt(args []string) error {
	pos := positional(args)
	if len(pos) < 1 {
		return errors.New("usage: SWITCHD_CONFIG_KEY=... switchd encrypt <value>")
	}
	passphrase := os.Getenv("SWITCHD_CONFIG_KEY")
	if passphrase == "" {
		return errors.New("SWITCHD_CONFIG_KEY is not set")
	}
	enc, err := config.EncryptValue(pos[0], passphrase)
	if err != nil {
		return err
	}
	fmt.Println("enc:" + enc)
	return nil
}

func runDiscover(args []string) error {
	timeout := 3 * time.Second
	if v := flagValue(args, "timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("--timeout must be a positive duration")
		}
		timeout = d
	}
	ctx, cancel := interruptible()
	defer cancel()

	found, err := gateway.Discover(ctx, timeout)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println(dimStyle.Render("no gateways found"))
		return nil
	}
	t := newTable("NAME", "URL", "VERSION", "AUTH")
	for _, inst := range found {
		t.Row(inst.Name, inst.URL(), inst.Metadata["version"], inst.Metadata["auth"])
	}
	fmt.Println(t.String())
	return nil
}
