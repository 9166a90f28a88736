package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Tensors       int            `json:"tensors"`
	Models        int            `json:"models"`
	TotalRuns     int            `json:"total_runs"`
	RunsByStatus  map[string]int `json:"runs_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetRunStats(r.Context())
	if err != nil {
		s.logger.Error("get run stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	tensors, err := s.backend.TensorCount(r.Context())
	if err != nil {
		s.writeBackendError(w, "count tensors", err)
		return
	}
	models, err := s.backend.ModelCount(r.Context())
	if err != nil {
		s.writeBackendError(w, "count models", err)
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Tensors:       tensors,
		Models:        models,
		TotalRuns:     stats.Total,
		RunsByStatus:  stats.CountByStatus,
		AvgDurationMS: stats.AvgDurationMS,
	})
}
