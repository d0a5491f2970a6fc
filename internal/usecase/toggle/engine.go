// Package toggle decides, at toggle time, which of a switch item's commands
// to run and reports the outcome through the notifier and the event bus.
package toggle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"switchd/internal/domain"
	"switchd/internal/infra/tracer"
)

// Engine runs toggles against a command executor.
type Engine struct {
	executor domain.CommandExecutor
	notifier domain.Notifier
	bus      domain.EventBus
	locker   *ItemLocker
	logger   *slog.Logger
	strictOn bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSerialization enables or disables per-item mutual exclusion.
// It is enabled by default.
func WithSerialization(enabled bool) Option {
	return func(e *Engine) {
		if enabled {
			e.locker = NewItemLocker()
		} else {
			e.locker = nil
		}
	}
}

// WithLocker shares a locker between engines or with other callers.
func WithLocker(l *ItemLocker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithStrictOnCommand makes a missing on command a configuration error
// instead of a silent no-op.
func WithStrictOnCommand(strict bool) Option {
	return func(e *Engine) { e.strictOn = strict }
}

// NewEngine creates a toggle engine. notifier and bus may be nil.
func NewEngine(executor domain.CommandExecutor, notifier domain.Notifier, bus domain.EventBus, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		executor: executor,
		notifier: notifier,
		bus:      bus,
		locker:   NewItemLocker(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Toggle performs one user-initiated action on item.
//
// The returned error is non-nil only for configuration problems
// (domain.ErrMissingCommand) and for a failed status probe
// (domain.ErrToggleAborted). Failures of the on, off or single command are
// recorded on the command and in the outcome, never returned.
func (e *Engine) Toggle(ctx context.Context, item *domain.SwitchItem) (*domain.ToggleOutcome, error) {
	ctx, span := tracer.StartSpan(ctx, "toggle.toggle", tracer.SwitchAttrs(item.ID, string(item.ControlType)))
	defer span.End()

	unlock, err := e.lock(ctx, item.ID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	defer unlock()

	// Only the lock wait honors cancellation. Once started, a toggle runs to
	// completion; each command is still bounded by the executor timeout.
	ctx = context.WithoutCancel(ctx)

	var out *domain.ToggleOutcome
	switch item.ControlType {
	case domain.ControlButton:
		out, err = e.toggleButton(ctx, item)
	case domain.ControlSwitch:
		out, err = e.toggleSwitch(ctx, item)
	default:
		err = domain.NewSubSystemError("switch", "Engine.Toggle", domain.ErrInvalidInput,
			fmt.Sprintf("%s: unknown control type %q", item.ID, item.ControlType))
	}
	if err != nil {
		tracer.RecordError(span, err)
		return out, err
	}
	span.SetAttributes(
		tracer.BoolAttr("toggle.was_on", out.WasOn),
		tracer.BoolAttr("toggle.turned_on", out.TurnedOn),
	)
	if out.ActionErr != nil {
		span.AddEvent("action failed", trace.WithAttributes(tracer.StringAttr("error", out.ActionErr.Error())))
	}
	tracer.SetOK(span)
	return out, nil
}

func (e *Engine) toggleButton(ctx context.Context, item *domain.SwitchItem) (*domain.ToggleOutcome, error) {
	if item.Single == nil || item.Single.Role() != domain.RoleSingle {
		return nil, domain.NewDomainError("Engine.Toggle", domain.ErrMissingCommand, item.ID+": single command")
	}

	out := &domain.ToggleOutcome{SwitchID: item.ID, ControlType: item.ControlType}
	_, err := e.run(ctx, item, item.Single)
	out.ExecutedRole = domain.RoleSingle
	out.ActionErr = err

	out.Subtitle = domain.SubtitleRunning
	e.notify(ctx, item, out.Subtitle)
	e.emit(ctx, item, out)

	out.Active = item.Active()
	return out, nil
}

func (e *Engine) toggleSwitch(ctx context.Context, item *domain.SwitchItem) (*domain.ToggleOutcome, error) {
	expected, ok := statusExpectation(item)
	if !ok {
		return nil, domain.NewDomainError("Engine.Toggle", domain.ErrMissingCommand,
			item.ID+": status command with expected output")
	}

	output, err := e.probe(ctx, item)
	if err != nil {
		e.logger.Info("status probe failed, toggle aborted", "switch", item.ID, "error", err)
		return &domain.ToggleOutcome{
			SwitchID:    item.ID,
			ControlType: item.ControlType,
			Aborted:     true,
			Active:      item.Active(),
		}, fmt.Errorf("%w: %w", domain.ErrToggleAborted, err)
	}

	isOn := output == expected
	shouldTurnOn := !isOn
	out := &domain.ToggleOutcome{
		SwitchID:    item.ID,
		ControlType: item.ControlType,
		WasOn:       isOn,
		TurnedOn:    shouldTurnOn,
	}

	var action *domain.Command
	if shouldTurnOn {
		action = item.On
		if action == nil {
			if e.strictOn {
				return nil, domain.NewDomainError("Engine.Toggle", domain.ErrMissingCommand, item.ID+": on command")
			}
			e.logger.Warn("switch has no on command, nothing executed", "switch", item.ID)
		}
	} else {
		action = item.Off
		if action == nil {
			return nil, domain.NewDomainError("Engine.Toggle", domain.ErrMissingCommand, item.ID+": off command")
		}
	}

	newState := isOn
	if action != nil {
		_, err := e.run(ctx, item, action)
		out.ExecutedRole = action.Role()
		out.ActionErr = err
		if err == nil {
			newState = shouldTurnOn
		}
	}
	item.SetActive(newState)
	out.Active = newState

	if shouldTurnOn {
		out.Subtitle = domain.SubtitleTurnOff
	} else {
		out.Subtitle = domain.SubtitleTurnOn
	}
	e.notify(ctx, item, out.Subtitle)
	e.emit(ctx, item, out)
	return out, nil
}

// Refresh runs only the status probe of a switch item and updates its cached
// state. A settings-changed event is emitted when the state moved.
func (e *Engine) Refresh(ctx context.Context, item *domain.SwitchItem) (active, changed bool, err error) {
	if item.ControlType != domain.ControlSwitch {
		return false, false, domain.NewSubSystemError("switch", "Engine.Refresh", domain.ErrInvalidInput,
			item.ID+": only switch items have a status")
	}
	expected, ok := statusExpectation(item)
	if !ok {
		return false, false, domain.NewDomainError("Engine.Refresh", domain.ErrMissingCommand,
			item.ID+": status command with expected output")
	}

	ctx, span := tracer.StartSpan(ctx, "toggle.refresh", tracer.SwitchAttrs(item.ID, string(item.ControlType)))
	defer span.End()

	unlock, err := e.lock(ctx, item.ID)
	if err != nil {
		tracer.RecordError(span, err)
		return false, false, err
	}
	defer unlock()

	output, err := e.probe(ctx, item)
	if err != nil {
		tracer.RecordError(span, err)
		return item.Active(), false, fmt.Errorf("%w: %w", domain.ErrToggleAborted, err)
	}

	active = output == expected
	changed = item.SetActive(active)
	span.SetAttributes(
		tracer.IntAttr("probe.output_bytes", len(output)),
		tracer.BoolAttr("switch.active", active),
		tracer.BoolAttr("switch.changed", changed),
	)
	if changed {
		e.publish(ctx, domain.NewEvent(domain.EventSettingsChanged, "", nil))
	}
	e.publish(ctx, domain.NewEvent(domain.EventSwitchRefreshed, item.ID, domain.SwitchRefreshedPayload{
		SwitchID: item.ID,
		Active:   active,
		Changed:  changed,
	}))
	tracer.SetOK(span)
	return active, changed, nil
}

// Diagnose runs a single command of item on demand, records its diagnostic
// state and returns the raw output. Unlike Toggle, execution errors are
// returned to the caller.
func (e *Engine) Diagnose(ctx context.Context, item *domain.SwitchItem, role domain.CommandRole) (string, error) {
	cmd := item.Command(role)
	if cmd == nil {
		return "", domain.NewDomainError("Engine.Diagnose", domain.ErrMissingCommand, fmt.Sprintf("%s: %s command", item.ID, role))
	}

	unlock, err := e.lock(ctx, item.ID)
	if err != nil {
		return "", err
	}
	defer unlock()

	start := time.Now()
	output, err := e.executor.Execute(ctx, cmd)
	cmd.RecordResult(err)
	e.publish(ctx, domain.NewEvent(domain.EventCommandTested, item.ID, executedPayload(item, cmd, err, time.Since(start))))
	if err != nil {
		return output, domain.WrapOp("diagnose "+item.ID+"/"+string(role), err)
	}
	return output, nil
}

func statusExpectation(item *domain.SwitchItem) (string, bool) {
	if item.Status == nil {
		return "", false
	}
	return item.Status.ExpectedOnOutput()
}

func (e *Engine) lock(ctx context.Context, id string) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	unlock, err := e.locker.Lock(ctx, id)
	if err != nil {
		return nil, domain.WrapOp("toggle", err)
	}
	return unlock, nil
}

// probe runs the status command. Its outcome is recorded but no event is
// published so that a failed probe leaves no trace on the bus.
func (e *Engine) probe(ctx context.Context, item *domain.SwitchItem) (string, error) {
	start := time.Now()
	output, err := e.executor.Execute(ctx, item.Status)
	item.Status.RecordResult(err)
	e.logger.Debug("status probe", "switch", item.ID, "output", output, "error", err, "duration", time.Since(start))
	return output, err
}

// run executes an action command and records its outcome.
func (e *Engine) run(ctx context.Context, item *domain.SwitchItem, cmd *domain.Command) (string, error) {
	start := time.Now()
	output, err := e.executor.Execute(ctx, cmd)
	elapsed := time.Since(start)
	cmd.RecordResult(err)
	if err != nil {
		e.logger.Warn("command failed", "switch", item.ID, "role", string(cmd.Role()), "error", err, "duration", elapsed)
	} else {
		e.logger.Debug("command executed", "switch", item.ID, "role", string(cmd.Role()), "duration", elapsed)
	}
	e.publish(ctx, domain.NewEvent(domain.EventCommandExecuted, item.ID, executedPayload(item, cmd, err, elapsed)))
	return output, err
}

func (e *Engine) notify(ctx context.Context, item *domain.SwitchItem, subtitle string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, item.Name, subtitle); err != nil {
		e.logger.Warn("notification failed", "switch", item.ID, "error", err)
	}
}

func (e *Engine) emit(ctx context.Context, item *domain.SwitchItem, out *domain.ToggleOutcome) {
	e.publish(ctx, domain.NewEvent(domain.EventSettingsChanged, "", nil))
	e.publish(ctx, domain.NewEvent(domain.EventSwitchToggled, item.ID, domain.SwitchToggledPayload{
		SwitchID:     out.SwitchID,
		ControlType:  out.ControlType,
		WasOn:        out.WasOn,
		TurnedOn:     out.TurnedOn,
		ExecutedRole: out.ExecutedRole,
		ActionError:  out.ActionError(),
	}))
}

func (e *Engine) publish(ctx context.Context, ev domain.Event) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, ev)
}

func executedPayload(item *domain.SwitchItem, cmd *domain.Command, err error, elapsed time.Duration) domain.CommandExecutedPayload {
	p := domain.CommandExecutedPayload{
		SwitchID:   item.ID,
		Role:       cmd.Role(),
		Kind:       cmd.Kind(),
		OK:         err == nil,
		DurationMS: elapsed.Milliseconds(),
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}
