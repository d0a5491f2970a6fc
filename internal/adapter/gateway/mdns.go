package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	mdnsServiceType = "_switchd._tcp"
	mdnsDomain      = "local."
)

// Advertiser announces the gateway on the local network via mDNS/DNS-SD.
type Advertiser struct {
	logger *slog.Logger
}

// NewAdvertiser creates an Advertiser.
func NewAdvertiser(logger *slog.Logger) *Advertiser {
	return &Advertiser{logger: logger}
}

// Advertise registers this instance and blocks until ctx is cancelled.
// Call it in a goroutine.
func (a *Advertiser) Advertise(ctx context.Context, name, boundAddr string, metadata map[string]string) error {
	_, portStr, err := net.SplitHostPort(boundAddr)
	if err != nil {
		return fmt.Errorf("mdns: bad address %q: %w", boundAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("mdns: bad port %q: %w", portStr, err)
	}

	txt := make([]string, 0, len(metadata))
	for k, v := range metadata {
		txt = append(txt, k+"="+v)
	}

	server, err := zeroconf.Register(name, mdnsServiceType, mdnsDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.logger.Info("mdns advertising", "name", name, "port", port)
	<-ctx.Done()
	server.Shutdown()
	return nil
}

// Instance is a gateway found on the local network.
type Instance struct {
	Name     string            `json:"name"`
	Address  string            `json:"address"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// URL returns the websocket URL of the instance.
func (i Instance) URL() string {
	return "ws://" + i.Address + "/ws"
}

// Discover browses the local network for gateways until timeout elapses.
func Discover(ctx context.Context, timeout time.Duration) ([]Instance, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu    sync.Mutex
		found []Instance
		wg    sync.WaitGroup
	)

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			inst, ok := entryToInstance(entry)
			if !ok {
				continue
			}
			mu.Lock()
			found = append(found, inst)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(scanCtx, mdnsServiceType, mdnsDomain, entries); err != nil {
		cancel()
		wg.Wait()
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-scanCtx.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return found, nil
}

func entryToInstance(entry *zeroconf.ServiceEntry) (Instance, bool) {
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		return Instance{}, false
	}
	return Instance{
		Name:     entry.ServiceRecord.Instance,
		Address:  net.JoinHostPort(host, strconv.Itoa(entry.Port)),
		Metadata: parseTXT(entry.Text),
	}, true
}

func parseTXT(records []string) map[string]string {
	m := make(map[string]string, len(records))
	for _, r := range records {
		k, v, ok := strings.Cut(r, "=")
		if !ok {
			continue
		}
		m[k] = v
	}
	return m
}
