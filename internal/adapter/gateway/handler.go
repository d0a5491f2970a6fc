package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"switchd/internal/domain"
	"switchd/internal/usecase/catalog"
	"switchd/internal/usecase/scheduling"
)

// HistoryReader lists persisted history records.
type HistoryReader interface {
	List(ctx context.Context, switchID string, limit int) ([]domain.HistoryRecord, error)
}

// TaskLister reports scheduled tasks.
type TaskLister interface {
	Tasks() []scheduling.TaskStatus
}

// HandlerDeps holds dependencies needed by RPC and REST handlers.
type HandlerDeps struct {
	Catalog   *catalog.Service
	History   HistoryReader // can be nil
	Scheduler TaskLister    // can be nil
	Bus       domain.EventBus
	Logger    *slog.Logger
}

const defaultHistoryLimit = 50

// RegisterDefaultHandlers registers the switch RPC methods on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("switch.list", switchListHandler(deps))
	s.RegisterHandler("switch.get", switchGetHandler(deps))
	s.RegisterHandler("switch.toggle", switchToggleHandler(deps))
	s.RegisterHandler("switch.refresh", switchRefreshHandler(deps))
	s.RegisterHandler("switch.test", switchTestHandler(deps))
	if deps.History != nil {
		s.RegisterHandler("switch.history", switchHistoryHandler(deps))
	}
	if deps.Scheduler != nil {
		s.RegisterHandler("scheduler.tasks", func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
			return json.Marshal(deps.Scheduler.Tasks())
		})
	}
}

type switchIDRequest struct {
	ID string `json:"id"`
}

func decode(method string, payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return domain.NewDomainError(method, domain.ErrRPCInvalidPayload, err.Error())
	}
	return nil
}

func switchListHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		list, err := deps.Catalog.List(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(list)
	}
}

func switchGetHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req switchIDRequest
		if err := decode("switch.get", payload, &req); err != nil {
			return nil, err
		}
		snap, err := deps.Catalog.Get(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(snap)
	}
}

// ToggleResponse is the result of switch.toggle and the REST toggle route.
type ToggleResponse struct {
	SwitchID     string             `json:"switch_id"`
	ControlType  domain.ControlType `json:"control_type"`
	WasOn        bool               `json:"was_on"`
	TurnedOn     bool               `json:"turned_on"`
	Active       bool               `json:"active"`
	ExecutedRole domain.CommandRole `json:"executed_role,omitempty"`
	Subtitle     string             `json:"subtitle"`
	ActionError  string             `json:"action_error,omitempty"`
}

func toToggleResponse(out *domain.ToggleOutcome) ToggleResponse {
	return ToggleResponse{
		SwitchID:     out.SwitchID,
		ControlType:  out.ControlType,
		WasOn:        out.WasOn,
		TurnedOn:     out.TurnedOn,
		Active:       out.Active,
		ExecutedRole: out.ExecutedRole,
		Subtitle:     out.Subtitle,
		ActionError:  out.ActionError(),
	}
}

func switchToggleHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req switchIDRequest
		if err := decode("switch.toggle", payload, &req); err != nil {
			return nil, err
		}
		deps.Logger.Info("remote toggle", "switch", req.ID, "client", client.Name)
		out, err := deps.Catalog.Toggle(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(toToggleResponse(out))
	}
}

// switch.refresh without an id refreshes every switch.
func switchRefreshHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req switchIDRequest
		if err := decode("switch.refresh", payload, &req); err != nil {
			return nil, err
		}
		if req.ID == "" {
			sum, err := deps.Catalog.RefreshAll(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(sum)
		}
		res, err := deps.Catalog.Refresh(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
}

type switchTestRequest struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func switchTestHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req switchTestRequest
		if err := decode("switch.test", payload, &req); err != nil {
			return nil, err
		}
		role, err := domain.ParseCommandRole(req.Role)
		if err != nil {
			return nil, domain.NewDomainError("switch.test", domain.ErrRPCInvalidPayload, err.Error())
		}
		res, err := deps.Catalog.TestCommand(ctx, req.ID, role)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
}

type switchHistoryRequest struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
}

func switchHistoryHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req switchHistoryRequest
		if err := decode("switch.history", payload, &req); err != nil {
			return nil, err
		}
		if req.ID != "" {
			if _, err := deps.Catalog.Get(ctx, req.ID); err != nil {
				return nil, err
			}
		}
		if req.Limit <= 0 {
			req.Limit = defaultHistoryLimit
		}
		recs, err := deps.History.List(ctx, req.ID, req.Limit)
		if err != nil {
			return nil, err
		}
		if recs == nil {
			recs = []domain.HistoryRecord{}
		}
		return json.Marshal(recs)
	}
}
