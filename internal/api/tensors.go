package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/tensord/internal/compute"
	"github.com/seantiz/tensord/internal/host"
	"github.com/seantiz/tensord/internal/model"
	"github.com/seantiz/tensord/internal/registry"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 64 << 20 // tensor payloads are base64-encoded buffers
)

// createTensorRequest is the JSON body for POST /v1/tensors. Data carries
// the little-endian element buffer, base64-encoded.
type createTensorRequest struct {
	DType model.DType `json:"dtype"`
	Shape []int64     `json:"shape"`
	Data  []byte      `json:"data"`
}

// tensorResponse describes a registered tensor. Data is included only when
// the bytes were requested.
type tensorResponse struct {
	ID    model.Handle `json:"id"`
	DType model.DType  `json:"dtype"`
	Shape []int64      `json:"shape"`
	Data  string       `json:"data,omitempty"`
}

func tensorInfoResponse(info model.TensorInfo) tensorResponse {
	return tensorResponse{ID: info.ID, DType: info.DType, Shape: info.Shape}
}

func (s *Server) handleCreateTensor(w http.ResponseWriter, r *http.Request) {
	var req createTensorRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.DType == "" {
		s.writeError(w, http.StatusBadRequest, "dtype is required")
		return
	}

	info, err := s.backend.CreateTensor(r.Context(), req.DType, req.Shape, req.Data)
	if err != nil {
		s.writeBackendError(w, "create tensor", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, tensorInfoResponse(info))
}

func (s *Server) handleGetTensor(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseHandle(w, r)
	if !ok {
		return
	}

	info, data, err := s.backend.GetTensorData(r.Context(), id)
	if err != nil {
		s.writeBackendError(w, "get tensor", err)
		return
	}

	resp := tensorInfoResponse(info)
	resp.Data = base64.StdEncoding.EncodeToString(data)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteTensor(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseHandle(w, r)
	if !ok {
		return
	}

	if err := s.backend.DeleteTensor(r.Context(), id); err != nil {
		s.writeBackendError(w, "delete tensor", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseHandle reads the {id} route parameter as a resource handle, writing
// a 400 response on failure.
func (s *Server) parseHandle(w http.ResponseWriter, r *http.Request) (model.Handle, bool) {
	raw := chi.URLParam(r, "id")
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid handle")
		return 0, false
	}
	return model.Handle(v), true
}

// writeBackendError maps backend errors onto HTTP status codes: unknown
// handles are 404, in-flight model deletes are 409, bad arguments and
// unknown ops are 400, and a stopped host loop is 503.
func (s *Server) writeBackendError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrBusy):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, compute.ErrInvalidArgument), errors.Is(err, compute.ErrUnknownOp):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, host.ErrStopped):
		s.writeError(w, http.StatusServiceUnavailable, "backend is shutting down")
	default:
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
