// Package registry holds the switch items the daemon controls.
package registry

import (
	"fmt"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

// BuildItem turns a declared switch into a validated domain item.
func BuildItem(sc config.SwitchConfig) (*domain.SwitchItem, error) {
	ct, err := domain.ParseControlType(sc.Type)
	if err != nil {
		return nil, err
	}
	item := &domain.SwitchItem{
		ID:          sc.ID,
		Name:        sc.Name,
		IconName:    sc.Icon,
		ControlType: ct,
	}

	slots := []struct {
		role domain.CommandRole
		cfg  *config.CommandConfig
		dst  **domain.Command
	}{
		{domain.RoleOn, sc.On, &item.On},
		{domain.RoleOff, sc.Off, &item.Off},
		{domain.RoleSingle, sc.Single, &item.Single},
	}
	for _, s := range slots {
		if s.cfg == nil {
			continue
		}
		kind, err := domain.ParseExecuteKind(s.cfg.Kind)
		if err != nil {
			return nil, fmt.Errorf("switch %q %s: %w", sc.ID, s.role, err)
		}
		cmd, err := domain.NewActionCommand(s.role, kind, s.cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("switch %q %s: %w", sc.ID, s.role, err)
		}
		*s.dst = cmd
	}

	if sc.Status != nil {
		kind, err := domain.ParseExecuteKind(sc.Status.Kind)
		if err != nil {
			return nil, fmt.Errorf("switch %q status: %w", sc.ID, err)
		}
		switch {
		case sc.Status.ExpectedOnOutput != nil:
			item.Status, err = domain.NewStatusCommand(kind, sc.Status.Command, *sc.Status.ExpectedOnOutput)
			if err != nil {
				return nil, fmt.Errorf("switch %q status: %w", sc.ID, err)
			}
		case ct == domain.ControlSwitch:
			return nil, domain.NewDomainError("BuildItem", domain.ErrMissingCommand,
				fmt.Sprintf("%s: missing status.expected_on_output", sc.ID))
		}
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}
