package handlers

import "net/http"

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, nil, "ok")
}
