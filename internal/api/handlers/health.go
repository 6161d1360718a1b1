// Package handlers contains the HTTP handlers for the read-only status
// surface.
package handlers

import (
	"encoding/json"
	"net/http"
)

// Health reports process liveness
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
