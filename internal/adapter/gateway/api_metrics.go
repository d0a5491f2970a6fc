package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
// This uses the lightweight text format to avoid pulling in the full prometheus client.
func metricsHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Catalog.List(r.Context())
		if err != nil {
			writeError(w, httpStatus(err), err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		fmt.Fprintf(w, "# HELP switchd_switches_registered Number of configured switches.\n")
		fmt.Fprintf(w, "# TYPE switchd_switches_registered gauge\n")
		fmt.Fprintf(w, "switchd_switches_registered %d\n", len(list))

		fmt.Fprintf(w, "# HELP switchd_switch_active Cached state of each switch (1 = on).\n")
		fmt.Fprintf(w, "# TYPE switchd_switch_active gauge\n")
		for _, s := range list {
			active := 0
			if s.Active {
				active = 1
			}
			fmt.Fprintf(w, "switchd_switch_active{id=%q,type=%q} %d\n", s.ID, s.ControlType, active)
		}

		fmt.Fprintf(w, "# HELP switchd_toggles_total Completed toggles.\n")
		fmt.Fprintf(w, "# TYPE switchd_toggles_total counter\n")
		fmt.Fprintf(w, "switchd_toggles_total %d\n", metrics.TogglesTotal.Load())

		fmt.Fprintf(w, "# HELP switchd_refreshes_total Completed status refreshes.\n")
		fmt.Fprintf(w, "# TYPE switchd_refreshes_total counter\n")
		fmt.Fprintf(w, "switchd_refreshes_total %d\n", metrics.RefreshesTotal.Load())

		fmt.Fprintf(w, "# HELP switchd_commands_total Action commands executed.\n")
		fmt.Fprintf(w, "# TYPE switchd_commands_total counter\n")
		fmt.Fprintf(w, "switchd_commands_total %d\n", metrics.CommandsTotal.Load())

		fmt.Fprintf(w, "# HELP switchd_command_failures_total Action commands that failed.\n")
		fmt.Fprintf(w, "# TYPE switchd_command_failures_total counter\n")
		fmt.Fprintf(w, "switchd_command_failures_total %d\n", metrics.CommandFailuresTotal.Load())

		fmt.Fprintf(w, "# HELP switchd_uptime_seconds Seconds since the daemon started.\n")
		fmt.Fprintf(w, "# TYPE switchd_uptime_seconds gauge\n")
		fmt.Fprintf(w, "switchd_uptime_seconds %.0f\n", time.Since(startTime).Seconds())

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		fmt.Fprintf(w, "# HELP go_goroutines Number of goroutines.\n")
		fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
		fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())

		fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Bytes of allocated heap objects.\n")
		fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
		fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n", mem.Alloc)
	}
}
