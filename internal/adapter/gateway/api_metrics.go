package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"wiiblue/internal/domain"
)

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
// This uses the lightweight text format to avoid pulling in the full prometheus client.
func metricsHandler(deps APIDeps, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		st := deps.Manager.Status()

		connected := 0
		if st.State == domain.StateConnected {
			connected = 1
		}
		fmt.Fprintf(w, "# HELP wiiblue_remote_connected Whether a remote is currently connected.\n")
		fmt.Fprintf(w, "# TYPE wiiblue_remote_connected gauge\n")
		fmt.Fprintf(w, "wiiblue_remote_connected %d\n", connected)

		fmt.Fprintf(w, "# HELP wiiblue_connects_total Total successful connections.\n")
		fmt.Fprintf(w, "# TYPE wiiblue_connects_total counter\n")
		fmt.Fprintf(w, "wiiblue_connects_total %d\n", st.ConnectsTotal)

		fmt.Fprintf(w, "# HELP wiiblue_disconnects_total Total disconnections.\n")
		fmt.Fprintf(w, "# TYPE wiiblue_disconnects_total counter\n")
		fmt.Fprintf(w, "wiiblue_disconnects_total %d\n", st.DisconnectsTotal)

		fmt.Fprintf(w, "# HELP wiiblue_input_events_total Total input events observed.\n")
		fmt.Fprintf(w, "# TYPE wiiblue_input_events_total counter\n")
		fmt.Fprintf(w, "wiiblue_input_events_total %d\n", st.ActivityTotal)

		if connected == 1 {
			fmt.Fprintf(w, "# HELP wiiblue_idle_seconds Seconds since the last input event.\n")
			fmt.Fprintf(w, "# TYPE wiiblue_idle_seconds gauge\n")
			fmt.Fprintf(w, "wiiblue_idle_seconds %.0f\n", st.IdleFor.Seconds())
		}

		// Uptime.
		fmt.Fprintf(w, "# HELP wiiblue_uptime_seconds Seconds since the daemon started.\n")
		fmt.Fprintf(w, "# TYPE wiiblue_uptime_seconds gauge\n")
		fmt.Fprintf(w, "wiiblue_uptime_seconds %.0f\n", time.Since(startTime).Seconds())

		// Go runtime metrics.
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		fmt.Fprintf(w, "# HELP go_goroutines Number of goroutines.\n")
		fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
		fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())

		fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Bytes of allocated heap objects.\n")
		fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
		fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n", mem.Alloc)

		fmt.Fprintf(w, "# HELP go_memstats_sys_bytes Total bytes of memory obtained from the OS.\n")
		fmt.Fprintf(w, "# TYPE go_memstats_sys_bytes gauge\n")
		fmt.Fprintf(w, "go_memstats_sys_bytes %d\n", mem.Sys)
	}
}
