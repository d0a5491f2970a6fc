package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrDisabled         = fmt.Errorf("disabled")
	ErrInvalidInput     = fmt.Errorf("invalid input")
)

// Sentinel errors for the domain layer.
var (
	// ErrMissingCommand is a configuration error: a command required by the
	// control type or transition is absent. Raised before any execution.
	ErrMissingCommand = fmt.Errorf("required command missing")
	// ErrToggleAborted signals that the status probe failed and no action ran.
	ErrToggleAborted = fmt.Errorf("toggle aborted: status probe failed")
	ErrSwitchNotFound = fmt.Errorf("switch not found")

	// Execution failures reported by a CommandExecutor.
	ErrCommandNotFound = fmt.Errorf("command not found")
	ErrNonZeroExit     = fmt.Errorf("command exited non-zero")
	ErrCommandTimeout  = fmt.Errorf("command timed out")
	ErrMalformedOutput = fmt.Errorf("command output malformed")
	// ErrCommandUnavailable is returned while a command's breaker is open.
	ErrCommandUnavailable = fmt.Errorf("command temporarily unavailable")

	ErrConfigLoad   = fmt.Errorf("failed to load configuration")
	ErrDecryption   = fmt.Errorf("decryption failed")
	ErrEncryption   = fmt.Errorf("encryption operation failed")
	ErrHistoryWrite = fmt.Errorf("history write failed")
	ErrAuditWrite   = fmt.Errorf("audit log write failed")
	ErrNotifyFailed = fmt.Errorf("notification delivery failed")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Engine.Toggle")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "switch", "gallery"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsExecutionFailure reports whether err came from running a command, as
// opposed to configuration or breaker errors.
func IsExecutionFailure(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// ErrorCode is a machine-parseable error category for monitoring and API bodies.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeMissingCommand     ErrorCode = "MISSING_COMMAND"
	CodeToggleAborted      ErrorCode = "TOGGLE_ABORTED"
	CodeSwitchNotFound     ErrorCode = "SWITCH_NOT_FOUND"
	CodeCommandNotFound    ErrorCode = "COMMAND_NOT_FOUND"
	CodeNonZeroExit        ErrorCode = "NON_ZERO_EXIT"
	CodeCommandTimeout     ErrorCode = "COMMAND_TIMEOUT"
	CodeMalformedOutput    ErrorCode = "MALFORMED_OUTPUT"
	CodeCommandUnavailable ErrorCode = "COMMAND_UNAVAILABLE"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeEncryption         ErrorCode = "ENCRYPTION"
	CodeHistoryWrite       ErrorCode = "HISTORY_WRITE"
	CodeAuditWrite         ErrorCode = "AUDIT_WRITE"
	CodeNotifyFailed       ErrorCode = "NOTIFY_FAILED"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth        ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound  ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload  ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeInvalidSwitch    ErrorCode = "INVALID_SWITCH"
	CodeInvalidCommand   ErrorCode = "INVALID_COMMAND"
	CodeGalleryInvalid   ErrorCode = "GALLERY_INVALID"
	CodeHistoryNotFound  ErrorCode = "HISTORY_NOT_FOUND"
	CodeSchedulerTimeout ErrorCode = "SCHEDULER_TIMEOUT"

	// Category error codes, the fallback when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeLimitReached     ErrorCode = "LIMIT_REACHED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeDisabled         ErrorCode = "DISABLED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrLimitReached:     CodeLimitReached,
	ErrPermissionDenied: CodePermissionDenied,
	ErrDisabled:         CodeDisabled,
	ErrInvalidInput:     CodeInvalidInput,

	ErrMissingCommand:     CodeMissingCommand,
	ErrToggleAborted:      CodeToggleAborted,
	ErrSwitchNotFound:     CodeSwitchNotFound,
	ErrCommandNotFound:    CodeCommandNotFound,
	ErrNonZeroExit:        CodeNonZeroExit,
	ErrCommandTimeout:     CodeCommandTimeout,
	ErrMalformedOutput:    CodeMalformedOutput,
	ErrCommandUnavailable: CodeCommandUnavailable,
	ErrConfigLoad:         CodeConfigLoad,
	ErrDecryption:         CodeDecryption,
	ErrEncryption:         CodeEncryption,
	ErrHistoryWrite:       CodeHistoryWrite,
	ErrAuditWrite:         CodeAuditWrite,
	ErrNotifyFailed:       CodeNotifyFailed,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrGatewayAuthFailed:  CodeGatewayAuth,
	ErrRPCMethodNotFound:  CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:  CodeRPCInvalidPayload,
	ErrRateLimit:          CodeRateLimit,
}

// codePriority fixes the order of the errors.Is walk so that wrapped chains
// resolve to the most specific code. ErrToggleAborted wraps an execution
// error and must win over it.
var codePriority = []error{
	ErrToggleAborted,
	ErrMissingCommand,
	ErrSwitchNotFound,
	ErrCommandUnavailable,
	ErrCommandNotFound,
	ErrNonZeroExit,
	ErrCommandTimeout,
	ErrMalformedOutput,
	ErrGatewayAuthFailed,
	ErrAuthInvalid,
	ErrRPCMethodNotFound,
	ErrRPCInvalidPayload,
	ErrRateLimit,
	ErrConfigLoad,
	ErrDecryption,
	ErrEncryption,
	ErrHistoryWrite,
	ErrAuditWrite,
	ErrNotifyFailed,
	ErrNotFound,
	ErrDuplicate,
	ErrTimeout,
	ErrLimitReached,
	ErrPermissionDenied,
	ErrDisabled,
	ErrInvalidInput,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"switch":  CodeSwitchNotFound,
		"history": CodeHistoryNotFound,
	},
	ErrInvalidInput: {
		"switch":  CodeInvalidSwitch,
		"command": CodeInvalidCommand,
		"gallery": CodeGalleryInvalid,
	},
	ErrTimeout: {
		"scheduler": CodeSchedulerTimeout,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := sentinelCode(err); ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for _, sentinel := range codePriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	code, ok := sentinelCode(e.Err)
	if !ok {
		return CodeUnknown
	}
	if sc, ok := subSystemCodeMap[e.Err][e.SubSystem]; ok && e.SubSystem != "" {
		return sc
	}
	return code
}

// sentinelCode matches err by identity only. Errors built with several %w
// verbs are not hashable, so the map is walked instead of indexed.
func sentinelCode(err error) (ErrorCode, bool) {
	for _, sentinel := range codePriority {
		if err == sentinel {
			return errorCodeMap[sentinel], true
		}
	}
	return CodeUnknown, false
}
