package handlers

import (
	"net/http"
)

// Health answers liveness probes. It deliberately touches no dependencies;
// a database or Redis outage should fail jobs, not liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "service": "loopingflow"})
}
