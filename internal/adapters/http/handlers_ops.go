package web

import (
	"net/http"
	"time"

	"hear/internal/application/orchestrators"
)

// perfWindow is how far back /api/perf aggregates.
const perfWindow = 15 * time.Minute

type healthResponse struct {
	Status   string  `json:"status"`
	Rows     int     `json:"rows"`
	Category string  `json:"category,omitempty"`
	Detail   string  `json:"detail,omitempty"`
	TookMs   float64 `json:"took_ms"`
}

// handleHealth checks the backend with a consultations head count.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := orchestrators.ExecuteHealthCheck(r.Context(), s.HealthClient)
	resp := healthResponse{
		Status:   "ok",
		Rows:     rep.Rows,
		Category: rep.Category,
		Detail:   rep.Detail,
		TookMs:   float64(rep.Took.Microseconds()) / 1000.0,
	}
	status := http.StatusOK
	if !rep.OK {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handlePerf serves the collector's snapshot of the last 15 minutes.
func (s *server) handlePerf(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Collector.Snapshot(time.Now().Add(-perfWindow), 10))
}
