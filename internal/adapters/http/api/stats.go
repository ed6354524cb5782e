package api

import (
	"net/http"
)

// StatsProvider exposes operational counters: persist mode, queue depth,
// worker count, ledger configuration and lifetime scans.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves the operator view of the service at /stats. The public
// scan count lives at /api/stats.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}
