package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"watchlistarr/internal/models"
	"watchlistarr/internal/search"
)

// StatusHandler exposes the engine's counters for inspection.
type StatusHandler struct {
	db      *models.Database
	counter *search.DailyCounter
	limits  search.Limits
	logger  *logrus.Logger
}

// NewStatusHandler creates the status handler.
func NewStatusHandler(db *models.Database, counter *search.DailyCounter, limits search.Limits, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{db: db, counter: counter, limits: limits, logger: logger}
}

type statusResponse struct {
	CachedRecords int  `json:"cachedRecords"`
	SearchesToday int  `json:"searchesToday"`
	MaxDailyLimit *int `json:"maxDailyLimit"`
	PerRunLimit   *int `json:"perRunLimit"`
}

// ServeHTTP reports the cache size, today's search count, and the configured
// admission limits. Limits serialize as null when unlimited.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	count, err := h.db.Count()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count cache records")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		CachedRecords: count,
		SearchesToday: h.counter.Read(),
		MaxDailyLimit: h.limits.GlobalDaily,
		PerRunLimit:   h.limits.PerRun,
	})
}
