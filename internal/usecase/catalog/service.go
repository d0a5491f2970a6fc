// Package catalog is the switch service used by every outer surface: the
// CLI, the gateway, the MCP server and the scheduler.
package catalog

import (
	"context"
	"errors"
	"log/slog"

	"switchd/internal/domain"
	"switchd/internal/usecase/toggle"
)

// Service resolves switch ids and drives the toggle engine.
type Service struct {
	store  domain.SwitchStore
	engine *toggle.Engine
	logger *slog.Logger
}

// NewService creates a switch service.
func NewService(store domain.SwitchStore, engine *toggle.Engine, logger *slog.Logger) *Service {
	return &Service{store: store, engine: engine, logger: logger}
}

// List returns snapshots of every switch in configuration order.
func (s *Service) List(ctx context.Context) ([]domain.SwitchSnapshot, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, domain.WrapOp("catalog.list", err)
	}
	out := make([]domain.SwitchSnapshot, len(items))
	for i, it := range items {
		out[i] = it.Snapshot()
	}
	return out, nil
}

// Get returns the snapshot of one switch.
func (s *Service) Get(ctx context.Context, id string) (domain.SwitchSnapshot, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.SwitchSnapshot{}, err
	}
	return item.Snapshot(), nil
}

// Toggle runs the engine on the switch with the given id.
func (s *Service) Toggle(ctx context.Context, id string) (*domain.ToggleOutcome, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Toggle(ctx, item)
}

// RefreshResult is the outcome of a status refresh.
type RefreshResult struct {
	SwitchID string `json:"switch_id"`
	Active   bool   `json:"active"`
	Changed  bool   `json:"changed"`
}

// Refresh re-probes one switch and updates its cached state.
func (s *Service) Refresh(ctx context.Context, id string) (RefreshResult, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return RefreshResult{}, err
	}
	active, changed, err := s.engine.Refresh(ctx, item)
	return RefreshResult{SwitchID: id, Active: active, Changed: changed}, err
}

// RefreshSummary counts the results of RefreshAll.
type RefreshSummary struct {
	Refreshed int `json:"refreshed"`
	Changed   int `json:"changed"`
	Failed    int `json:"failed"`
}

// RefreshAll refreshes every switch-type item. Individual failures are
// logged and counted; only a store failure or cancellation is returned.
func (s *Service) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	var sum RefreshSummary
	items, err := s.store.List(ctx)
	if err != nil {
		return sum, domain.WrapOp("catalog.refresh_all", err)
	}
	for _, it := range items {
		if it.ControlType != domain.ControlSwitch {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		_, changed, err := s.engine.Refresh(ctx, it)
		if err != nil {
			sum.Failed++
			level := slog.LevelWarn
			if errors.Is(err, domain.ErrToggleAborted) {
				level = slog.LevelInfo
			}
			s.logger.Log(ctx, level, "refresh failed", "switch", it.ID, "error", err)
			continue
		}
		sum.Refreshed++
		if changed {
			sum.Changed++
		}
	}
	return sum, nil
}

// TestResult is the outcome of an on-demand command run.
type TestResult struct {
	SwitchID   string                 `json:"switch_id"`
	Role       domain.CommandRole     `json:"role"`
	Output     string                 `json:"output"`
	Diagnostic domain.DiagnosticState `json:"diagnostic"`
	Error      string                 `json:"error,omitempty"`
}

// TestCommand executes one command of a switch and reports its output and
// diagnostic state. Execution failures are reported in the result, not as an
// error; the error is reserved for unknown switches and missing commands.
func (s *Service) TestCommand(ctx context.Context, id string, role domain.CommandRole) (TestResult, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return TestResult{}, err
	}
	output, runErr := s.engine.Diagnose(ctx, item, role)
	if runErr != nil && !domain.IsExecutionFailure(runErr) {
		return TestResult{}, runErr
	}
	res := TestResult{SwitchID: id, Role: role, Output: output}
	if cmd := item.Command(role); cmd != nil {
		res.Diagnostic = cmd.Diagnostic()
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}
	return res, nil
}
