// Package mcpserver exposes the switch catalog as MCP tools so assistants
// can list, toggle and refresh switches over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"switchd/internal/domain"
	"switchd/internal/usecase/catalog"
)

// HistoryReader lists recorded history for a switch.
type HistoryReader interface {
	List(ctx context.Context, switchID string, limit int) ([]domain.HistoryRecord, error)
}

// Server wraps an MCP server bound to the catalog.
type Server struct {
	mcp     *server.MCPServer
	catalog *catalog.Service
	history HistoryReader
	logger  *slog.Logger
	tools   []string
}

// New registers the switch tools. history may be nil.
func New(svc *catalog.Service, history HistoryReader, version string, logger *slog.Logger) *Server {
	s := &Server{
		mcp:     server.NewMCPServer("switchd", version, server.WithToolCapabilities(false)),
		catalog: svc,
		history: history,
		logger:  logger,
	}

	s.add(mcp.NewTool("list_switches",
		mcp.WithDescription("List every configured switch with its cached on/off state."),
	), s.listSwitches)

	s.add(mcp.NewTool("toggle_switch",
		mcp.WithDescription("Toggle a switch or press a button. Returns the new state."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Switch id")),
	), s.toggleSwitch)

	s.add(mcp.NewTool("refresh_switch",
		mcp.WithDescription("Re-run the status command of a switch and update its cached state."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Switch id")),
	), s.refreshSwitch)

	s.add(mcp.NewTool("test_command",
		mcp.WithDescription("Run one command of a switch and report its output."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Switch id")),
		mcp.WithString("role", mcp.Required(), mcp.Enum(roleNames()...), mcp.Description("Command role")),
	), s.testCommand)

	if history != nil {
		s.add(mcp.NewTool("switch_history",
			mcp.WithDescription("Show the most recent toggles and tests of a switch."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Switch id")),
			mcp.WithNumber("limit", mcp.Description("Maximum records, default 20")),
		), s.switchHistory)
	}
	return s
}

func roleNames() []string {
	names := make([]string, len(domain.AllRoles))
	for i, r := range domain.AllRoles {
		names[i] = string(r)
	}
	return names
}

func (s *Server) add(tool mcp.Tool, h server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, h)
	s.tools = append(s.tools, tool.Name)
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string { return s.tools }

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server listening on stdio", "tools", len(s.tools))
	return server.ServeStdio(s.mcp)
}

func (s *Server) listSwitches(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.catalog.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(list)
}

func (s *Server) toggleSwitch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.catalog.Toggle(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	state := "off"
	if out.Active {
		state = "on"
	}
	text := fmt.Sprintf("%s is now %s", id, state)
	if out.ControlType == domain.ControlButton {
		text = id + " ran"
	}
	if msg := out.ActionError(); msg != "" {
		text += " (command failed: " + msg + ")"
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) refreshSwitch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.catalog.Refresh(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (s *Server) testCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawRole, err := req.RequireString("role")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	role, err := domain.ParseCommandRole(rawRole)
	if err != nil {
		return toolError(err), nil
	}
	res, err := s.catalog.TestCommand(ctx, id, role)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (s *Server) switchHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.catalog.Get(ctx, id); err != nil {
		return toolError(err), nil
	}
	limit := req.GetInt("limit", 20)
	if limit <= 0 || limit > 1000 {
		return mcp.NewToolResultError("limit must be between 1 and 1000"), nil
	}
	recs, err := s.history.List(ctx, id, limit)
	if err != nil {
		return toolError(err), nil
	}
	if recs == nil {
		recs = []domain.HistoryRecord{}
	}
	return jsonResult(recs)
}

// Tool failures are reported in the result so the model can read them;
// the error return is reserved for protocol faults.
func toolError(err error) *mcp.CallToolResult {
	code := domain.ErrorCodeOf(err)
	var de *domain.DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", code, de.Detail))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", code, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
