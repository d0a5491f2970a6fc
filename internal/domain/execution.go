package domain

import (
	"context"
	"fmt"
)

// CommandExecutor runs a command's text through the backend named by its kind
// and returns the textual output. Timeouts are the executor's policy.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd *Command) (string, error)
}

// ExecutionReason classifies an execution failure.
type ExecutionReason string

const (
	ReasonNotFound        ExecutionReason = "not_found"
	ReasonNonZeroExit     ExecutionReason = "non_zero_exit"
	ReasonTimeout         ExecutionReason = "timeout"
	ReasonMalformedOutput ExecutionReason = "malformed_output"
)

// ExecutionError is returned by a CommandExecutor when a command fails.
// errors.Is matches it against the sentinel of its reason.
type ExecutionError struct {
	Reason   ExecutionReason
	ExitCode int    // set for ReasonNonZeroExit
	Detail   string // stderr excerpt or backend message
	Err      error  // underlying cause, may be nil
}

// NewExecutionError creates an ExecutionError.
func NewExecutionError(reason ExecutionReason, detail string, cause error) *ExecutionError {
	return &ExecutionError{Reason: reason, Detail: detail, Err: cause}
}

func (e *ExecutionError) Error() string {
	msg := "command execution: " + string(e.Reason)
	if e.Reason == ReasonNonZeroExit {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is matches the reason sentinel.
func (e *ExecutionError) Is(target error) bool {
	return target == e.Reason.Sentinel()
}

// Sentinel returns the package-level error matching this reason.
func (r ExecutionReason) Sentinel() error {
	switch r {
	case ReasonNotFound:
		return ErrCommandNotFound
	case ReasonNonZeroExit:
		return ErrNonZeroExit
	case ReasonTimeout:
		return ErrCommandTimeout
	case ReasonMalformedOutput:
		return ErrMalformedOutput
	}
	return nil
}

// Notifier surfaces a human-readable outcome. Delivery is best-effort: callers
// log and discard the returned error.
type Notifier interface {
	Notify(ctx context.Context, title, subtitle string) error
}

// Notification subtitles used by the toggle engine. The switch labels name the
// opposite of the transition being performed.
const (
	SubtitleRunning = "Running"
	SubtitleTurnOff = "Turn off"
	SubtitleTurnOn  = "Turn on"
)

// ToggleOutcome reports what one toggle invocation did.
type ToggleOutcome struct {
	SwitchID    string      `json:"switch_id"`
	ControlType ControlType `json:"control_type"`

	// Aborted is set when the status probe failed and nothing else ran.
	Aborted bool `json:"aborted,omitempty"`
	// WasOn is the probed state before the transition (switch items only).
	WasOn bool `json:"was_on"`
	// TurnedOn is true when the on command was selected.
	TurnedOn bool `json:"turned_on"`
	// ExecutedRole is the action command that ran, empty when none ran.
	ExecutedRole CommandRole `json:"executed_role,omitempty"`
	// ActionErr is the swallowed action failure, recorded for diagnostics.
	ActionErr error `json:"-"`
	// Subtitle is the notification text sent, empty if none was sent.
	Subtitle string `json:"subtitle,omitempty"`
	// Active is the cached state after the toggle.
	Active bool `json:"active"`
}

// ActionError returns the recorded action failure text, or "".
func (o *ToggleOutcome) ActionError() string {
	if o == nil || o.ActionErr == nil {
		return ""
	}
	return o.ActionErr.Error()
}
