package gateway

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"switchd/internal/domain"
	"switchd/internal/usecase/scheduling"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Daemon    DaemonStatus            `json:"daemon"`
	Switches  SwitchStatus            `json:"switches"`
	Commands  CommandStatus           `json:"commands"`
	Clients   int                     `json:"clients"`
	Scheduler []scheduling.TaskStatus `json:"scheduler,omitempty"`
}

// DaemonStatus holds process overview info.
type DaemonStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// SwitchStatus holds switch counts.
type SwitchStatus struct {
	Registered int   `json:"registered"`
	Active     int   `json:"active"`
	Toggles    int64 `json:"toggles_total"`
	Refreshes  int64 `json:"refreshes_total"`
}

// CommandStatus holds command execution counters.
type CommandStatus struct {
	Total    int64 `json:"total"`
	Failures int64 `json:"failures_total"`
}

// Metrics tracks counters for the status API and the metrics endpoint.
type Metrics struct {
	TogglesTotal         atomic.Int64
	RefreshesTotal       atomic.Int64
	CommandsTotal        atomic.Int64
	CommandFailuresTotal atomic.Int64
}

func commandFailed(e domain.Event) bool {
	var p domain.CommandExecutedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return false
	}
	return !p.OK
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(deps HandlerDeps, srv *Server, startTime time.Time, metrics *Metrics, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Catalog.List(r.Context())
		if err != nil {
			writeError(w, httpStatus(err), err)
			return
		}
		active := 0
		for _, s := range list {
			if s.Active {
				active++
			}
		}

		resp := StatusResponse{
			Daemon: DaemonStatus{
				Name:          "switchd",
				Version:       version,
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Switches: SwitchStatus{
				Registered: len(list),
				Active:     active,
				Toggles:    metrics.TogglesTotal.Load(),
				Refreshes:  metrics.RefreshesTotal.Load(),
			},
			Commands: CommandStatus{
				Total:    metrics.CommandsTotal.Load(),
				Failures: metrics.CommandFailuresTotal.Load(),
			},
			Clients: srv.ClientCount(),
		}
		if deps.Scheduler != nil {
			resp.Scheduler = deps.Scheduler.Tasks()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
