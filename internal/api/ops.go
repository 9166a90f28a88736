package api

import (
	"encoding/json"
	"net/http"

	"github.com/seantiz/tensord/internal/compute"
	"github.com/seantiz/tensord/internal/model"
)

// executeOpRequest is the JSON body for POST /v1/ops.
type executeOpRequest struct {
	Op         string         `json:"op"`
	Attrs      compute.Attrs  `json:"attrs"`
	Inputs     []model.Handle `json:"inputs"`
	NumOutputs int            `json:"num_outputs"`
}

// executeOpResponse lists the registered output tensors in op order.
type executeOpResponse struct {
	Outputs []tensorResponse `json:"outputs"`
}

func (s *Server) handleExecuteOp(w http.ResponseWriter, r *http.Request) {
	var req executeOpRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Op == "" {
		s.writeError(w, http.StatusBadRequest, "op is required")
		return
	}
	if req.NumOutputs == 0 {
		req.NumOutputs = 1
	}

	infos, err := s.backend.ExecuteOp(r.Context(), req.Op, req.Attrs, req.Inputs, req.NumOutputs)
	if err != nil {
		s.writeBackendError(w, "execute op", err)
		return
	}

	outputs := make([]tensorResponse, len(infos))
	for i, info := range infos {
		outputs[i] = tensorInfoResponse(info)
	}
	s.writeJSON(w, http.StatusOK, executeOpResponse{Outputs: outputs})
}
