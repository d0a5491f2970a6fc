// Package history turns switch events into persisted history records.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"switchd/internal/domain"
)

// Recorder subscribes to toggle and test events and appends them to a store.
type Recorder struct {
	store     domain.HistoryStore
	logger    *slog.Logger
	retention time.Duration

	mu    sync.Mutex
	unsub []func()
}

// NewRecorder creates a recorder. retention <= 0 disables pruning.
func NewRecorder(store domain.HistoryStore, retention time.Duration, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, retention: retention, logger: logger}
}

// Attach subscribes the recorder to bus. Call Detach to stop recording.
func (r *Recorder) Attach(bus domain.EventBus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsub = append(r.unsub,
		bus.Subscribe(domain.EventSwitchToggled, r.handle),
		bus.Subscribe(domain.EventCommandTested, r.handle),
	)
}

// Detach removes every subscription made by Attach.
func (r *Recorder) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fn := range r.unsub {
		fn()
	}
	r.unsub = nil
}

func (r *Recorder) handle(ctx context.Context, ev domain.Event) {
	rec, ok := r.recordFor(ev)
	if !ok {
		return
	}
	if err := r.store.Append(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn("history append failed", "switch", rec.SwitchID, "error", err)
	}
}

func (r *Recorder) recordFor(ev domain.Event) (domain.HistoryRecord, bool) {
	rec := domain.HistoryRecord{SwitchID: ev.SwitchID, CreatedAt: ev.Timestamp}
	switch ev.Type {
	case domain.EventSwitchToggled:
		var p domain.SwitchToggledPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.logger.Debug("history: bad toggle payload", "error", err)
			return rec, false
		}
		rec.Action = domain.HistoryToggle
		rec.Role = p.ExecutedRole
		rec.TurnedOn = p.TurnedOn
		rec.OK = p.ActionError == ""
		rec.Error = p.ActionError
	case domain.EventCommandTested:
		var p domain.CommandExecutedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.logger.Debug("history: bad test payload", "error", err)
			return rec, false
		}
		rec.Action = domain.HistoryTest
		rec.Role = p.Role
		rec.OK = p.OK
		rec.Error = p.Error
	default:
		return rec, false
	}
	return rec, true
}

// List returns the newest records of a switch.
func (r *Recorder) List(ctx context.Context, switchID string, limit int) ([]domain.HistoryRecord, error) {
	return r.store.List(ctx, switchID, limit)
}

// Prune removes records older than the retention window.
func (r *Recorder) Prune(ctx context.Context) (int, error) {
	if r.retention <= 0 {
		return 0, nil
	}
	n, err := r.store.Prune(ctx, time.Now().Add(-r.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("history pruned", "removed", n, "retention", r.retention)
	}
	return n, nil
}
