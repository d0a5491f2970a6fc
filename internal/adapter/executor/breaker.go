package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// BreakerExecutor guards each distinct command with its own circuit breaker.
// A command whose backend keeps timing out or cannot be launched is failed
// fast with domain.ErrCommandUnavailable until the breaker half-opens.
//
// A non-zero exit does not count against the breaker: status probes such as
// "pgrep foo" routinely exit 1 and the process did run.
type BreakerExecutor struct {
	inner    domain.CommandExecutor
	settings config.BreakerConfig
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[string]
}

// NewBreakerExecutor wraps inner. Zero-valued settings fall back to defaults.
func NewBreakerExecutor(inner domain.CommandExecutor, cfg config.BreakerConfig, logger *slog.Logger) *BreakerExecutor {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultBreakerMaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultBreakerTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultBreakerInterval
	}
	return &BreakerExecutor{
		inner:    inner,
		settings: cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[string]),
	}
}

// Execute implements domain.CommandExecutor.
func (b *BreakerExecutor) Execute(ctx context.Context, c *domain.Command) (string, error) {
	key := breakerKey(c)
	cb := b.breaker(key)
	out, err := cb.Execute(func() (string, error) {
		return b.inner.Execute(ctx, c)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrCommandUnavailable, key, err)
	}
	return out, err
}

// State reports the breaker state for c, or closed if c never ran.
func (b *BreakerExecutor) State(c *domain.Command) gobreaker.State {
	b.mu.Lock()
	cb, ok := b.breakers[breakerKey(c)]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

func (b *BreakerExecutor) breaker(key string) *gobreaker.CircuitBreaker[string] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[key]; ok {
		return cb
	}
	maxFailures := b.settings.MaxFailures
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    b.settings.Interval,
		Timeout:     b.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("command breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNonZeroExit)
		},
	})
	b.breakers[key] = cb
	return cb
}

func breakerKey(c *domain.Command) string {
	return string(c.Kind()) + ":" + c.Text()
}
