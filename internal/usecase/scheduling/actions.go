package scheduling

import (
	"context"

	"switchd/internal/domain"
	"switchd/internal/usecase/catalog"
)

// Pruner removes expired history.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// RegisterSwitchActions binds the switch actions to svc and history_prune to
// pruner. A nil pruner leaves history_prune unregistered.
func RegisterSwitchActions(s *Scheduler, svc *catalog.Service, pruner Pruner) {
	s.RegisterAction(ActionToggle, func(ctx context.Context, task ScheduledTask) error {
		out, err := svc.Toggle(ctx, task.SwitchID)
		if err != nil {
			return err
		}
		if out.ActionErr != nil {
			// Recorded on the command and in history; the task itself ran.
			s.logger.Warn("scheduled toggle command failed", "task", task.Name, "switch", task.SwitchID, "error", out.ActionErr)
		}
		return nil
	})
	s.RegisterAction(ActionRefresh, func(ctx context.Context, task ScheduledTask) error {
		_, err := svc.Refresh(ctx, task.SwitchID)
		return err
	})
	s.RegisterAction(ActionRefreshAll, func(ctx context.Context, task ScheduledTask) error {
		sum, err := svc.RefreshAll(ctx)
		if err != nil {
			return err
		}
		s.logger.Debug("refresh_all finished", "task", task.Name,
			"refreshed", sum.Refreshed, "changed", sum.Changed, "failed", sum.Failed)
		return nil
	})
	if pruner != nil {
		s.RegisterAction(ActionHistoryPrune, func(ctx context.Context, _ ScheduledTask) error {
			_, err := pruner.Prune(ctx)
			return domain.WrapOp("history_prune", err)
		})
	}
}
