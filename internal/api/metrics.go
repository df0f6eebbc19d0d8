package api

import (
	"fmt"
	"net/http"
	"time"
)

// handleMetrics implements §6.1 GET /metrics: hand-rolled Prometheus
// text exposition. No client_golang import exists anywhere in the
// surveyed corpus, so this follows the same plain-text-over-io.Writer
// shape the teacher uses for its other static text responses
// (handleOpenAPIYAML) rather than reaching for an unintroduced library.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	uptime := time.Since(s.startedAt).Seconds()

	fmt.Fprintf(w, "# HELP splpulse_up Whether the service process is running.\n")
	fmt.Fprintf(w, "# TYPE splpulse_up gauge\n")
	fmt.Fprintf(w, "splpulse_up 1\n")

	fmt.Fprintf(w, "# HELP splpulse_uptime_seconds Seconds since process start.\n")
	fmt.Fprintf(w, "# TYPE splpulse_uptime_seconds counter\n")
	fmt.Fprintf(w, "splpulse_uptime_seconds %f\n", uptime)
}
