package api

import (
	"context"
	"net/http"
	"time"
)

// healthProbeTimeout bounds the host-loop round trip; a loop that cannot
// answer within this is wedged and the daemon should be restarted.
const healthProbeTimeout = time.Second

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// handleHealthz reports liveness. A listening socket is not enough: every
// operation funnels through the host loop, so the probe round-trips a cheap
// registry query and fails with 503 when the loop does not answer.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	if _, err := s.backend.ModelCount(ctx); err != nil {
		s.logger.Error("health probe", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "host loop unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}
