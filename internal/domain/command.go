package domain

import (
	"fmt"
	"strings"
	"sync"
)

// ExecuteKind selects the backend that interprets a command's text.
type ExecuteKind string

const (
	// ExecuteShell runs the text through a POSIX shell.
	ExecuteShell ExecuteKind = "shell"
	// ExecuteScript runs the text through the platform scripting host.
	ExecuteScript ExecuteKind = "script"
)

// ParseExecuteKind converts a config string to an ExecuteKind.
// "applescript" is accepted as an alias for script.
func ParseExecuteKind(s string) (ExecuteKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shell", "sh", "":
		return ExecuteShell, nil
	case "script", "applescript":
		return ExecuteScript, nil
	default:
		return "", NewSubSystemError("command", "ParseExecuteKind", ErrInvalidInput,
			fmt.Sprintf("unknown execute kind %q", s))
	}
}

// CommandRole is the purpose a command serves inside a switch item.
type CommandRole string

const (
	RoleOn     CommandRole = "on"
	RoleOff    CommandRole = "off"
	RoleSingle CommandRole = "single"
	RoleStatus CommandRole = "status"
)

// AllRoles lists every role in display order.
var AllRoles = []CommandRole{RoleOn, RoleOff, RoleSingle, RoleStatus}

// ParseCommandRole converts a config string to a CommandRole.
func ParseCommandRole(s string) (CommandRole, error) {
	r := CommandRole(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleOn, RoleOff, RoleSingle, RoleStatus:
		return r, nil
	}
	return "", NewSubSystemError("command", "ParseCommandRole", ErrInvalidInput,
		fmt.Sprintf("unknown command role %q", s))
}

// Title is the human label shown next to a command of this role.
func (r CommandRole) Title() string {
	switch r {
	case RoleOn:
		return "Turn on"
	case RoleOff:
		return "Turn off"
	case RoleSingle:
		return "Button"
	case RoleStatus:
		return "Check status"
	}
	return string(r)
}

// DiagnosticState is the last observed outcome of running a command.
// It is informational only and never drives a toggle decision.
type DiagnosticState string

const (
	DiagnosticUnknown   DiagnosticState = "unknown"
	DiagnosticFailed    DiagnosticState = "failed"
	DiagnosticSucceeded DiagnosticState = "succeeded"
)

// Command is one executable action bound to a role. The kind, role, text and
// expected output are fixed at construction; only the diagnostic state moves.
//
// Build commands with NewActionCommand or NewStatusCommand. A zero Command
// carries no role and is treated as absent by the toggle engine.
type Command struct {
	kind        ExecuteKind
	role        CommandRole
	text        string
	expected    string
	hasExpected bool

	mu         sync.Mutex
	diagnostic DiagnosticState
}

// NewActionCommand builds an on, off or single command.
func NewActionCommand(role CommandRole, kind ExecuteKind, text string) (*Command, error) {
	switch role {
	case RoleOn, RoleOff, RoleSingle:
	case RoleStatus:
		return nil, NewSubSystemError("command", "NewActionCommand", ErrInvalidInput,
			"status commands must be built with NewStatusCommand")
	default:
		return nil, NewSubSystemError("command", "NewActionCommand", ErrInvalidInput,
			fmt.Sprintf("unknown role %q", role))
	}
	if err := checkKind("NewActionCommand", kind); err != nil {
		return nil, err
	}
	return &Command{kind: kind, role: role, text: text, diagnostic: DiagnosticUnknown}, nil
}

// NewStatusCommand builds a status probe. expectedOnOutput is the exact output
// that means the switch is currently on; the empty string is a valid value.
func NewStatusCommand(kind ExecuteKind, text, expectedOnOutput string) (*Command, error) {
	if err := checkKind("NewStatusCommand", kind); err != nil {
		return nil, err
	}
	return &Command{
		kind:        kind,
		role:        RoleStatus,
		text:        text,
		expected:    expectedOnOutput,
		hasExpected: true,
		diagnostic:  DiagnosticUnknown,
	}, nil
}

func checkKind(op string, kind ExecuteKind) error {
	switch kind {
	case ExecuteShell, ExecuteScript:
		return nil
	}
	return NewSubSystemError("command", op, ErrInvalidInput, fmt.Sprintf("unknown execute kind %q", kind))
}

func (c *Command) Kind() ExecuteKind { return c.kind }
func (c *Command) Role() CommandRole { return c.role }
func (c *Command) Text() string      { return c.text }

// ExpectedOnOutput returns the expected "on" output and whether one is set.
// Only status commands built by NewStatusCommand carry it.
func (c *Command) ExpectedOnOutput() (string, bool) {
	if c.role != RoleStatus {
		return "", false
	}
	return c.expected, c.hasExpected
}

// Diagnostic returns the last recorded outcome.
func (c *Command) Diagnostic() DiagnosticState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.diagnostic == "" {
		return DiagnosticUnknown
	}
	return c.diagnostic
}

// RecordResult stores the outcome of a run: Failed when err is non-nil,
// Succeeded otherwise.
func (c *Command) RecordResult(err error) {
	state := DiagnosticSucceeded
	if err != nil {
		state = DiagnosticFailed
	}
	c.mu.Lock()
	c.diagnostic = state
	c.mu.Unlock()
}

// View returns a serializable copy of the command.
func (c *Command) View() CommandView {
	v := CommandView{
		Role:       c.role,
		Kind:       c.kind,
		Text:       c.text,
		Diagnostic: c.Diagnostic(),
	}
	if exp, ok := c.ExpectedOnOutput(); ok {
		v.ExpectedOnOutput = &exp
	}
	return v
}

// CommandView is the read-only, JSON-friendly form of a Command.
type CommandView struct {
	Role             CommandRole     `json:"role"`
	Kind             ExecuteKind     `json:"kind"`
	Text             string          `json:"text"`
	ExpectedOnOutput *string         `json:"expected_on_output,omitempty"`
	Diagnostic       DiagnosticState `json:"diagnostic"`
}
