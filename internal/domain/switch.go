package domain

import (
	"fmt"
	"strings"
	"sync"
)

// ControlType tells the engine how a switch item is operated.
type ControlType string

const (
	// ControlSwitch is a stateful item with on, off and status commands.
	ControlSwitch ControlType = "switch"
	// ControlButton is a momentary item with a single command.
	ControlButton ControlType = "button"
)

// ParseControlType converts a config string to a ControlType.
func ParseControlType(s string) (ControlType, error) {
	switch ControlType(strings.ToLower(strings.TrimSpace(s))) {
	case ControlSwitch:
		return ControlSwitch, nil
	case ControlButton:
		return ControlButton, nil
	}
	return "", NewSubSystemError("switch", "ParseControlType", ErrInvalidInput,
		fmt.Sprintf("unknown control type %q", s))
}

// SwitchItem groups up to four commands under one user-facing entry.
// Structure is fixed after construction; only the active flag and the
// commands' diagnostic states change.
type SwitchItem struct {
	ID          string
	Name        string
	IconName    string
	ControlType ControlType

	On     *Command
	Off    *Command
	Single *Command
	Status *Command

	mu     sync.RWMutex
	active bool
}

// Active returns the last known state. It is advisory only.
func (s *SwitchItem) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive updates the cached state and reports whether it changed.
func (s *SwitchItem) SetActive(active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.active != active
	s.active = active
	return changed
}

// Command returns the command bound to role, or nil.
func (s *SwitchItem) Command(role CommandRole) *Command {
	switch role {
	case RoleOn:
		return s.On
	case RoleOff:
		return s.Off
	case RoleSingle:
		return s.Single
	case RoleStatus:
		return s.Status
	}
	return nil
}

// Validate checks that each bound command sits in the slot of its role and
// that the commands required by the control type are present. A missing on
// command is tolerated for switch items; see MissingOptional.
func (s *SwitchItem) Validate() error {
	if s.ID == "" {
		return NewSubSystemError("switch", "SwitchItem.Validate", ErrInvalidInput, "id is required")
	}
	for _, role := range AllRoles {
		cmd := s.Command(role)
		if cmd != nil && cmd.Role() != role {
			return NewSubSystemError("switch", "SwitchItem.Validate", ErrInvalidInput,
				fmt.Sprintf("%s: %s slot holds a %q command", s.ID, role, cmd.Role()))
		}
	}

	var missing []string
	switch s.ControlType {
	case ControlButton:
		if s.Single == nil {
			missing = append(missing, string(RoleSingle))
		}
	case ControlSwitch:
		if s.Status == nil {
			missing = append(missing, string(RoleStatus))
		} else if _, ok := s.Status.ExpectedOnOutput(); !ok {
			missing = append(missing, "status.expected_on_output")
		}
		if s.Off == nil {
			missing = append(missing, string(RoleOff))
		}
	default:
		return NewSubSystemError("switch", "SwitchItem.Validate", ErrInvalidInput,
			fmt.Sprintf("%s: unknown control type %q", s.ID, s.ControlType))
	}
	if len(missing) > 0 {
		return NewDomainError("SwitchItem.Validate", ErrMissingCommand,
			fmt.Sprintf("%s: missing %s", s.ID, strings.Join(missing, ", ")))
	}
	return nil
}

// MissingOptional lists roles that are absent but tolerated at toggle time.
func (s *SwitchItem) MissingOptional() []CommandRole {
	if s.ControlType == ControlSwitch && s.On == nil {
		return []CommandRole{RoleOn}
	}
	return nil
}

// Snapshot returns a consistent, serializable view of the item.
func (s *SwitchItem) Snapshot() SwitchSnapshot {
	snap := SwitchSnapshot{
		ID:          s.ID,
		Name:        s.Name,
		IconName:    s.IconName,
		ControlType: s.ControlType,
		Active:      s.Active(),
	}
	for _, role := range AllRoles {
		if cmd := s.Command(role); cmd != nil {
			snap.Commands = append(snap.Commands, cmd.View())
		}
	}
	return snap
}

// SwitchSnapshot is the read-only form of a SwitchItem used by outer surfaces.
type SwitchSnapshot struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	IconName    string        `json:"icon_name,omitempty"`
	ControlType ControlType   `json:"control_type"`
	Active      bool          `json:"active"`
	Commands    []CommandView `json:"commands"`
}
