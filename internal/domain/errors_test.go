package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Engine.Toggle", ErrMissingCommand, "wifi: off")
	want := "Engine.Toggle: wifi: off: required command missing"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Store.Get", ErrSwitchNotFound, "")
	want := "Store.Get: switch not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Engine.Toggle", ErrMissingCommand, "dark-mode")
	if !errors.Is(err, ErrMissingCommand) {
		t.Error("errors.Is should match ErrMissingCommand")
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
}

func TestExecutionErrorIs(t *testing.T) {
	tests := []struct {
		reason   ExecutionReason
		sentinel error
		code     ErrorCode
	}{
		{ReasonNotFound, ErrCommandNotFound, CodeCommandNotFound},
		{ReasonNonZeroExit, ErrNonZeroExit, CodeNonZeroExit},
		{ReasonTimeout, ErrCommandTimeout, CodeCommandTimeout},
		{ReasonMalformedOutput, ErrMalformedOutput, CodeMalformedOutput},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewExecutionError(tt.reason, "boom", nil))
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.code, ErrorCodeOf(err))
			assert.True(t, IsExecutionFailure(err))
		})
	}
}

func TestExecutionErrorMessage(t *testing.T) {
	err := &ExecutionError{Reason: ReasonNonZeroExit, ExitCode: 2, Detail: "no such interface"}
	assert.Equal(t, "command execution: non_zero_exit (exit 2): no such interface", err.Error())
}

func TestExecutionErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("exec: \"nope\": executable file not found")
	err := NewExecutionError(ReasonNotFound, "", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrCommandNotFound)
	assert.NotErrorIs(t, err, ErrNonZeroExit)
}

// --- ErrorCode tests ---

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeMissingCommand, ErrorCodeOf(ErrMissingCommand))
	assert.Equal(t, CodeSwitchNotFound, ErrorCodeOf(ErrSwitchNotFound))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("other")))
}

func TestErrorCodeOf_AbortedWinsOverCause(t *testing.T) {
	probe := NewExecutionError(ReasonTimeout, "", nil)
	err := fmt.Errorf("%w: %w", ErrToggleAborted, probe)
	assert.Equal(t, CodeToggleAborted, ErrorCodeOf(err))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	tests := []struct {
		subsystem string
		sentinel  error
		want      ErrorCode
	}{
		{"switch", ErrNotFound, CodeSwitchNotFound},
		{"history", ErrNotFound, CodeHistoryNotFound},
		{"gallery", ErrInvalidInput, CodeGalleryInvalid},
		{"command", ErrInvalidInput, CodeInvalidCommand},
		{"scheduler", ErrTimeout, CodeSchedulerTimeout},
		{"other", ErrNotFound, CodeNotFound},
	}
	for _, tt := range tests {
		err := NewSubSystemError(tt.subsystem, "op", tt.sentinel, "")
		assert.Equal(t, tt.want, ErrorCodeOf(err), tt.subsystem)
		assert.Equal(t, tt.want, err.Code(), tt.subsystem)
	}
}

func TestErrorCodeOf_DomainErrorWrapped(t *testing.T) {
	inner := NewDomainError("Engine.Toggle", ErrMissingCommand, "x")
	err := fmt.Errorf("rpc: %w", inner)
	require.Error(t, err)
	assert.Equal(t, CodeMissingCommand, ErrorCodeOf(err))
}
