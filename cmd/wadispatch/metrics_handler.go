package main

import (
	"encoding/json"
	"net/http"

	"wadispatch/internal/metrics"
)

// handleMetrics returns a JSON snapshot of the metrics registry
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(metrics.GetRegistry().Snapshot()); err != nil {
			s.logger.WithError(err).Error("Failed to encode metrics response")
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}
