package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"switchd/internal/domain"
	"switchd/internal/infra/middleware"
)

// WithAudit records remote calls and rejected credentials to a.
func WithAudit(a domain.AuditLogger) Option {
	return func(s *Server) { s.audit = a }
}

func (s *Server) record(ctx context.Context, event domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.Warn("audit log write failed", "action", event.Action, "error", err)
	}
}

func (s *Server) recordDenied(r *http.Request) {
	s.record(r.Context(), domain.AuditEvent{
		Type:    domain.AuditAuthDenied,
		Actor:   middleware.ClientIP(r, s.rateLimit.TrustedProxies),
		Action:  r.Method + " " + r.URL.Path,
		Outcome: "denied",
	})
}

func (s *Server) recordCall(ctx context.Context, client *ClientInfo, method string, payload json.RawMessage, err error) {
	var target struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(payload, &target)
	s.record(ctx, domain.AuditEvent{
		Type:     domain.AuditRemoteCall,
		Actor:    clientName(client),
		Action:   method,
		Resource: target.ID,
		Outcome:  outcome(err),
	})
}

func clientName(c *ClientInfo) string {
	if c == nil {
		return ""
	}
	return c.Name
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.ErrorCodeOf(err))
}

// statusWriter remembers the status a REST handler wrote.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) outcome() string {
	if w.status == 0 || w.status < 400 {
		return "ok"
	}
	return http.StatusText(w.status)
}
