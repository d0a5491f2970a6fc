package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"switchd/internal/domain"
)

// RegisterRESTHandlers registers the HTTP endpoints on the gateway server and
// returns the counters behind /api/v1/status and /metrics.
func RegisterRESTHandlers(s *Server, deps HandlerDeps, version string) *Metrics {
	startTime := time.Now()
	metrics := &Metrics{}

	if deps.Bus != nil {
		deps.Bus.Subscribe(domain.EventSwitchToggled, func(_ context.Context, _ domain.Event) {
			metrics.TogglesTotal.Add(1)
		})
		deps.Bus.Subscribe(domain.EventSwitchRefreshed, func(_ context.Context, _ domain.Event) {
			metrics.RefreshesTotal.Add(1)
		})
		deps.Bus.Subscribe(domain.EventCommandExecuted, func(_ context.Context, e domain.Event) {
			metrics.CommandsTotal.Add(1)
			if commandFailed(e) {
				metrics.CommandFailuresTotal.Add(1)
			}
		})
	}

	// Reads are not audited; POST actions are, with the response status.
	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			client, err := s.auth.Authenticate(requestToken(r))
			if err != nil {
				s.recordDenied(r)
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			if r.Method == http.MethodGet {
				next(w, r)
				return
			}
			sw := &statusWriter{ResponseWriter: w}
			next(sw, r)
			s.record(r.Context(), domain.AuditEvent{
				Type:     domain.AuditRemoteCall,
				Actor:    clientName(client),
				Action:   r.Method + " " + r.URL.Path,
				Resource: r.PathValue("id"),
				Outcome:  sw.outcome(),
			})
		}
	}

	s.RegisterHTTPRoute("GET /health", healthHandler())
	s.RegisterHTTPRoute("GET /api/v1/status", authMiddleware(statusHandler(deps, s, startTime, metrics, version)))
	s.RegisterHTTPRoute("GET /metrics", authMiddleware(metricsHandler(deps, startTime, metrics)))

	s.RegisterHTTPRoute("GET /api/v1/switches", authMiddleware(listSwitches(deps)))
	s.RegisterHTTPRoute("GET /api/v1/switches/{id}", authMiddleware(getSwitch(deps)))
	s.RegisterHTTPRoute("POST /api/v1/switches/{id}/toggle", authMiddleware(toggleSwitch(deps)))
	s.RegisterHTTPRoute("POST /api/v1/switches/{id}/refresh", authMiddleware(refreshSwitch(deps)))
	if deps.History != nil {
		s.RegisterHTTPRoute("GET /api/v1/switches/{id}/history", authMiddleware(switchHistory(deps)))
	}

	return metrics
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func listSwitches(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Catalog.List(r.Context())
		if err != nil {
			writeError(w, httpStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getSwitch(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Catalog.Get(r.Context(), pathID(r))
		if err != nil {
			writeError(w, httpStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func toggleSwitch(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Catalog.Toggle(r.Context(), pathID(r))
		if err != nil {
			writeError(w, httpStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, toToggleResponse(out))
	}
}

func refreshSwitch(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Catalog.Refresh(r.Context(), pathID(r))
		if err != nil {
			writeError(w, httpStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func switchHistory(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r)
		if _, err := deps.Catalog.Get(r.Context(), id); err != nil {
			writeError(w, httpStatus(err), err)
			return
		}
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 1000 {
				writeError(w, http.StatusBadRequest,
					domain.NewDomainError("history", domain.ErrRPCInvalidPayload, "limit must be between 1 and 1000"))
				return
			}
			limit = n
		}
		recs, err := deps.History.List(r.Context(), id, limit)
		if err != nil {
			writeError(w, httpStatus(err), err)
			return
		}
		if recs == nil {
			recs = []domain.HistoryRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}
