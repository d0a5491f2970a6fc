package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"switchd/internal/infra/config"
)

type failingAnnouncer struct {
	gotAddr string
	gotMeta map[string]string
}

func (f *failingAnnouncer) Advertise(_ context.Context, _, addr string, meta map[string]string) error {
	f.gotAddr, f.gotMeta = addr, meta
	return errors.New("mdns register: no multicast interface")
}

func TestAdvertiseLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := config.Defaults()
	cfg.Gateway.MDNS.Name = "desk"

	a := &failingAnnouncer{}
	advertise(context.Background(), cfg, func() string { return "127.0.0.1:8787" }, a, log)

	if a.gotAddr != "127.0.0.1:8787" {
		t.Errorf("addr = %q", a.gotAddr)
	}
	if a.gotMeta["auth"] != "false" {
		t.Errorf("auth metadata = %q", a.gotMeta["auth"])
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "no multicast interface") {
		t.Errorf("expected a warn line with the error, got %q", out)
	}
}

func TestAdvertiseGivesUpWhenCancelledBeforeBind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &failingAnnouncer{}
	advertise(ctx, config.Defaults(), func() string { return "" }, a, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if a.gotAddr != "" {
		t.Error("announcer called before the gateway bound")
	}
}
